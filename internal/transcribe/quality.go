package transcribe

import "time"

// Quality is the advisory signal classification shown during dictation.
type Quality string

const (
	QualityOptimal Quality = "optimal"
	QualityNoisy   Quality = "bruyant"
	QualityWeak    Quality = "faible"
)

// Thresholds are the classification limits on the meter scale.
type Thresholds struct {
	Noisy         float64
	Weak          float64
	SilenceWindow time.Duration
}

// DefaultThresholds returns the stock limits.
func DefaultThresholds() Thresholds {
	return Thresholds{Noisy: 65, Weak: 3, SilenceWindow: 2 * time.Second}
}

// Classify reports noisy above th.Noisy, weak when quiet for longer than
// the silence window since the last transcript, else optimal.
func Classify(level float64, sinceActivity time.Duration, th Thresholds) Quality {
	switch {
	case level > th.Noisy:
		return QualityNoisy
	case level < th.Weak && sinceActivity > th.SilenceWindow:
		return QualityWeak
	default:
		return QualityOptimal
	}
}
