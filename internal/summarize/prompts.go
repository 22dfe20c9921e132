package summarize

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/hpungsan/sav-assist/internal/calllog"
)

func fastPrompt(notes string, eq calllog.Equipment) string {
	return fmt.Sprintf(`Tu es un expert SAV CVC (Chauffage Ventilation Climatisation).
Contexte technique - Marque: %s, Produit: %s.
Instructions : Analyse les notes suivantes et produis un rapport structuré au format JSON uniquement.
Notes à analyser : %s`, eq.Brand, eq.ProductType, notes)
}

func deepPrompt(notes string, eq calllog.Equipment) string {
	return fmt.Sprintf(`ANALYSE EXPERTE SAV.
Notes du technicien : %s
Équipement : %s.
Produis un diagnostic approfondi en JSON.`, notes, eq)
}

// summarySchema builds the response schema. Descriptions are empty for
// fields the prompt leaves to the model.
func summarySchema(subject, issue, solution, nextSteps string) *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	sentiments := make([]string, len(calllog.Sentiments))
	for i, s := range calllog.Sentiments {
		sentiments[i] = string(s)
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"subject":   str(subject),
			"issue":     str(issue),
			"solution":  str(solution),
			"nextSteps": str(nextSteps),
			"sentiment": {Type: genai.TypeString, Enum: sentiments},
		},
		Required: []string{"subject", "issue", "solution", "nextSteps", "sentiment"},
	}
}

var (
	fastSchema = summarySchema(
		"Titre court de l'intervention",
		"Description du problème rencontré",
		"Actions entreprises par le technicien",
		"Préconisations ou pièces à commander",
	)
	deepSchema = summarySchema(
		"",
		"Analyse des causes racines et probabilités",
		"Tests avancés et mesures électriques à effectuer",
		"Solution définitive préconisée",
	)
)
