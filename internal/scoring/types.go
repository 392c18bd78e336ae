// Package scoring turns a catalog product into a deterministic verdict: a
// regulatory policy evaluation of its ingredients followed by a nutrition
// (food) or safety (beauty) score with HUD metrics and spoken summaries.
//
// Everything here is pure and safe for concurrent use.
package scoring

import "github.com/MrWong99/nutrivision/internal/locale"

// Category classifies a regulatory policy flag.
type Category string

const (
	CategoryAuthorized      Category = "authorized"
	CategoryRestricted      Category = "restricted"
	CategoryWarningRequired Category = "warning_required"
	CategoryNotAuthorized   Category = "not_authorized"
	CategoryUncertain       Category = "uncertain"
)

// Severity ranks a flag. It drives the score penalty.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Band is the traffic-light colour of a HUD metric.
type Band string

const (
	BandGreen  Band = "green"
	BandAmber  Band = "amber"
	BandOrange Band = "orange"
	BandRed    Band = "red"
)

// Flag is a single policy finding.
type Flag struct {
	Category Category
	Severity Severity
	Message  string
	Citation string
}

// PolicyResult is the output of [Evaluate].
type PolicyResult struct {
	Flags              []Flag
	Version            string
	UncertaintyMarkers []string
}

// Uncertain reports whether the evaluation lacked enough signal.
func (r PolicyResult) Uncertain() bool { return len(r.UncertaintyMarkers) > 0 }

// Warning is a flag as shown on the HUD.
type Warning struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
}

// Metric is one HUD gauge.
type Metric struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Band  Band   `json:"band"`
	Score int    `json:"score"`
}

// Verdict is the deterministic scoring outcome for one product.
type Verdict struct {
	SummaryDE     string
	SummaryEN     string
	PolicyVersion string
	Grade         string
	Confidence    float64
	Warnings      []Warning
	Metrics       []Metric
	Bullets       []string
	Sources       []string
}

// Summary returns the spoken summary in lang.
func (v Verdict) Summary(lang string) string {
	return locale.Pick(lang, v.SummaryDE, v.SummaryEN)
}

// BandFor maps a 0..100 score to a band. With reverse set, a high score is
// good (protein) rather than bad (sugar).
func BandFor(score int, reverse bool) Band {
	effective := score
	if reverse {
		effective = 100 - score
	}
	switch {
	case effective >= 80:
		return BandRed
	case effective >= 60:
		return BandOrange
	case effective >= 35:
		return BandAmber
	default:
		return BandGreen
	}
}

// GradeFor maps a 0..100 score to a letter grade A..E.
func GradeFor(score int) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 65:
		return "B"
	case score >= 50:
		return "C"
	case score >= 35:
		return "D"
	default:
		return "E"
	}
}
