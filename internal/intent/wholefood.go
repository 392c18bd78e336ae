package intent

import (
	"fmt"
	"math"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/locale"
	"github.com/MrWong99/nutrivision/internal/scoring"
)

// WholeFoodPolicyVersion tags verdicts built from a static produce profile.
const WholeFoodPolicyVersion = "whole_food_v1"

// Profile holds per-100g reference values for an unpackaged food.
type Profile struct {
	ID      string
	NameEN  string
	NameDE  string
	Aliases []string
	Kcal    float64
	Carbs   float64
	Fiber   float64
	Sugar   float64
	Protein float64
}

// Name returns the display name in lang.
func (p Profile) Name(lang string) string {
	return locale.Pick(lang, p.NameDE, p.NameEN)
}

// Identity returns the product identity shown on the HUD.
func (p Profile) Identity(lang string) catalog.Identity {
	return catalog.Identity{ID: p.ID, Name: p.Name(lang), Brand: "Fresh produce"}
}

var wholeFoods = []Profile{
	{
		ID: "fresh-apple", NameEN: "Apple", NameDE: "Apfel",
		Aliases: []string{"apple", "apples", "apfel", "aepfel", "appel", "red apple", "green apple", "fresh apple"},
		Kcal:    52, Carbs: 13.8, Fiber: 2.4, Sugar: 10.4, Protein: 0.3,
	},
	{
		ID: "fresh-banana", NameEN: "Banana", NameDE: "Banane",
		Aliases: []string{"banana", "bananas", "banane", "bananen"},
		Kcal:    89, Carbs: 22.8, Fiber: 2.6, Sugar: 12.2, Protein: 1.1,
	},
	{
		ID: "fresh-orange", NameEN: "Orange", NameDE: "Orange",
		Aliases: []string{"orange", "oranges"},
		Kcal:    47, Carbs: 11.8, Fiber: 2.4, Sugar: 9.4, Protein: 0.9,
	},
}

// packagedHintTokens mark a query as being about a packaged product even if
// it names a fruit ("apple juice drink", "banana chips").
var packagedHintTokens = newTokenSet(
	"chips", "packet", "pack", "drink", "cola", "cookie", "bar", "cereal",
	"yogurt", "chocolate", "snack", "bottle", "can",
)

const maxWholeFoodTokens = 8

// LookupWholeFood matches a short query against the built-in produce
// profiles. Queries with packaging vocabulary or more than eight tokens never
// match.
func LookupWholeFood(query string) (Profile, bool) {
	tokens := words(query)
	if len(tokens) == 0 || len(tokens) > maxWholeFoodTokens {
		return Profile{}, false
	}
	if packagedHintTokens.any(tokens) {
		return Profile{}, false
	}
	padded := pad(tokens)
	for _, p := range wholeFoods {
		if anyPhrase(padded, p.Aliases) {
			return p, true
		}
	}
	return Profile{}, false
}

// produceBand grades a "higher is better" produce score.
func produceBand(score int) scoring.Band {
	switch {
	case score >= 75:
		return scoring.BandGreen
	case score >= 55:
		return scoring.BandAmber
	case score >= 35:
		return scoring.BandOrange
	default:
		return scoring.BandRed
	}
}

func clampInt(lo, hi, v int) int {
	return max(lo, min(hi, v))
}

// WholeFoodVerdict builds the static verdict for a produce profile. The
// summaries double as the spoken text of the turn.
func WholeFoodVerdict(p Profile, lang string) scoring.Verdict {
	kcal := int(math.Round(p.Kcal))
	energy := clampInt(30, 95, int(100-min(p.Kcal, 120)*0.6))
	fiber := clampInt(25, 95, int(p.Fiber*20))
	sugar := clampInt(25, 95, int(95-min(p.Sugar, 20)*3))
	protein := clampInt(20, 95, int(20+min(p.Protein, 10)*7))

	warnings := []scoring.Warning{{
		Category: scoring.CategoryAuthorized,
		Label:    locale.Pick(lang, "Frischware-Profil genutzt (kein Barcode erforderlich)", "Whole-food profile used (package barcode not required)"),
		Severity: scoring.SeverityLow,
	}}
	if p.Sugar >= 12 {
		warnings = append(warnings, scoring.Warning{
			Category: scoring.CategoryWarningRequired,
			Label:    locale.Pick(lang, "Natuerlicher Zucker enthalten; auf Portionsgroesse achten", "Natural sugars present; portion-aware use recommended"),
			Severity: scoring.SeverityLow,
		})
	}

	return scoring.Verdict{
		SummaryDE: fmt.Sprintf("%s hat rund %d Kilokalorien pro 100 Gramm und ist naehrstoffreich. "+
			"Das passt im Regelfall gut als alltagsnaher Snack.", p.NameDE, kcal),
		SummaryEN: fmt.Sprintf("%s has around %d kcal per 100 grams and is nutrient-dense. "+
			"It is generally a strong everyday snack option.", p.NameEN, kcal),
		PolicyVersion: WholeFoodPolicyVersion,
		Grade:         "authorized",
		Confidence:    0.86,
		Warnings:      warnings,
		Metrics: []scoring.Metric{
			{Name: "Calories", Value: fmt.Sprintf("%d kcal/100g", kcal), Band: produceBand(energy), Score: energy},
			{Name: "Fiber", Value: fmt.Sprintf("%.1f g/100g", p.Fiber), Band: produceBand(fiber), Score: fiber},
			{Name: "Natural sugars", Value: fmt.Sprintf("%.1f g/100g", p.Sugar), Band: produceBand(sugar), Score: sugar},
			{Name: "Protein", Value: fmt.Sprintf("%.1f g/100g", p.Protein), Band: produceBand(protein), Score: protein},
		},
		Bullets: []string{
			"Fallback profile for unpackaged produce query",
			"Values are per 100g reference, rounded for readability",
		},
		Sources: []string{"whole_food_profile_v1"},
	}
}
