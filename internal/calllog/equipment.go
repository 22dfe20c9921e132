package calllog

import "fmt"

// Brands are the manufacturers offered on the capture form.
var Brands = []string{
	"Atlantic", "Daikin", "Mitsubishi Electric", "Toshiba", "Hitachi",
	"Panasonic", "LG", "Fujitsu", "Aldes", "Haier", "Midea", "Autre",
}

// ProductTypes are the equipment kinds offered on the capture form.
var ProductTypes = []string{"Passerelle", "Centrale", "Thermostat", "Moteur", "Registre"}

// Equipment is the context passed to the summarization model.
type Equipment struct {
	ProductType string
	Brand       string
}

// String renders "brand - product" as used in prompts and the copy template.
func (e Equipment) String() string {
	return e.Brand + " - " + e.ProductType
}

// Validate rejects brands or product types that are not on the form.
func (e Equipment) Validate() error {
	if !contains(Brands, e.Brand) {
		return fmt.Errorf("unknown brand %q", e.Brand)
	}
	if !contains(ProductTypes, e.ProductType) {
		return fmt.Errorf("unknown product type %q", e.ProductType)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
