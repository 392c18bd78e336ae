package scoring

import (
	"fmt"
	"strings"

	"github.com/MrWong99/nutrivision/internal/catalog"
)

// Nutrient keys read from the product's nutriments.
const (
	KeySugars       = "sugars_100g"
	KeySalt         = "salt_100g"
	KeySaturatedFat = "saturated-fat_100g"
	KeyProteins     = "proteins_100g"
	KeyFat          = "fat_100g"
	KeyEnergyKcal   = "energy-kcal_100g"
)

const (
	disclaimerDE = "Hinweis nur informativ, keine medizinische Beratung."
	disclaimerEN = "Informational only, not medical advice."
)

// Score evaluates the product's ingredients and scores it for domain.
func Score(p *catalog.Product, domain catalog.Domain) Verdict {
	return Assess(p, Evaluate(domain, IngredientTokens(p)), domain)
}

// Assess converts a policy evaluation and the product's fields into a
// verdict. Warnings are the first three policy flags.
func Assess(p *catalog.Product, policy PolicyResult, domain catalog.Domain) Verdict {
	if p == nil {
		p = &catalog.Product{}
	}
	if domain == catalog.DomainBeauty {
		return assessBeauty(p, policy)
	}
	return assessFood(p, policy)
}

func warningsOf(policy PolicyResult) []Warning {
	n := min(3, len(policy.Flags))
	out := make([]Warning, 0, n)
	for _, f := range policy.Flags[:n] {
		out = append(out, Warning{Category: f.Category, Label: f.Message, Severity: f.Severity})
	}
	return out
}

// ratio scales value against a reference into 0..100, truncating.
func ratio(value, reference float64) int {
	return min(100, int(value/reference*100))
}

func nutrient(p *catalog.Product, key string) float64 {
	v, _ := p.Nutrient(key)
	return v
}

func penalty(flags []Flag, critical, high, medium, other int) int {
	total := 0
	for _, f := range flags {
		switch f.Severity {
		case SeverityCritical:
			total += critical
		case SeverityHigh:
			total += high
		case SeverityMedium:
			total += medium
		default:
			total += other
		}
	}
	return total
}

func assessFood(p *catalog.Product, policy PolicyResult) Verdict {
	sugar := nutrient(p, KeySugars)
	salt := nutrient(p, KeySalt)
	satFat := nutrient(p, KeySaturatedFat)
	protein := nutrient(p, KeyProteins)

	sugarScore := ratio(sugar, 22.5)
	saltScore := ratio(salt, 1.5)
	satFatScore := ratio(satFat, 5.0)
	proteinScore := ratio(protein, 12.0)

	nutrition := max(0, 100-int(float64(sugarScore)*0.45+float64(saltScore)*0.25+float64(satFatScore)*0.3))
	total := nutrition - penalty(policy.Flags, 24, 16, 8, 3) + int(float64(proteinScore)*0.1)
	total = max(0, min(100, total))
	grade := GradeFor(total)

	rareDE, rareEN := "moderaten", "moderate"
	if grade == "D" || grade == "E" {
		rareDE, rareEN = "seltenen", "occasional"
	}

	confidence := 0.84
	if policy.Uncertain() {
		confidence = 0.62
	}

	return Verdict{
		SummaryDE:     fmt.Sprintf("Score %s. Zucker, Salz und Zusatzstoffprofil sprechen fuer %s Konsum. %s", grade, rareDE, disclaimerDE),
		SummaryEN:     fmt.Sprintf("Score %s. Sugar, salt, and additive profile suggest %s use. %s", grade, rareEN, disclaimerEN),
		PolicyVersion: policy.Version,
		Grade:         grade,
		Confidence:    confidence,
		Warnings:      warningsOf(policy),
		Metrics: []Metric{
			{Name: "Sugar", Value: fmt.Sprintf("%.1f g/100g", sugar), Band: BandFor(sugarScore, false), Score: sugarScore},
			{Name: "Salt", Value: fmt.Sprintf("%.2f g/100g", salt), Band: BandFor(saltScore, false), Score: saltScore},
			{Name: "Sat. fat", Value: fmt.Sprintf("%.1f g/100g", satFat), Band: BandFor(satFatScore, false), Score: satFatScore},
			{Name: "Protein", Value: fmt.Sprintf("%.1f g/100g", protein), Band: BandFor(proteinScore, true), Score: proteinScore},
		},
		Bullets: []string{
			"Barcode/OCR source normalized",
			"Policy mapping version: " + policy.Version,
			"Conservative language mode active",
		},
		Sources: []string{"Open Food Facts", "Policy ruleset v1"},
	}
}

func assessBeauty(p *catalog.Product, policy PolicyResult) Verdict {
	text := strings.ToLower(p.IngredientsText)
	has := func(needles ...string) bool {
		for _, n := range needles {
			if strings.Contains(text, n) {
				return true
			}
		}
		return false
	}
	pick := func(cond bool, hi, lo int) int {
		if cond {
			return hi
		}
		return lo
	}
	label := func(score int, hi, lo string) string {
		if score >= 60 {
			return hi
		}
		return lo
	}

	tier := GradeFor(max(0, 86-penalty(policy.Flags, 25, 18, 10, 4)))

	regulatoryFlag := false
	for _, f := range policy.Flags {
		if f.Category == CategoryRestricted || f.Category == CategoryWarningRequired {
			regulatoryFlag = true
			break
		}
	}

	sensitizer := pick(has("limonene", "linalool"), 70, 25)
	irritation := pick(has("sodium laureth sulfate", "sodium lauryl sulfate"), 72, 28)
	regulatory := pick(regulatoryFlag, 35, 15)
	eco := pick(has("polyethylene", "acrylates"), 60, 24)

	regulatoryValue := "ok"
	if regulatory >= 35 {
		regulatoryValue = "watch"
	}

	confidence := 0.8
	if policy.Uncertain() {
		confidence = 0.58
	}

	return Verdict{
		SummaryDE:     fmt.Sprintf("Safety-Tier %s. Bei sensibler Haut auf Duftstoffe und starke Tenside achten. %s", tier, disclaimerDE),
		SummaryEN:     fmt.Sprintf("Safety tier %s. Sensitive skin should watch fragrance allergens and stronger surfactants. %s", tier, disclaimerEN),
		PolicyVersion: policy.Version,
		Grade:         tier,
		Confidence:    confidence,
		Warnings:      warningsOf(policy),
		Metrics: []Metric{
			{Name: "Sensitizer", Value: label(sensitizer, "medium", "low"), Band: BandFor(sensitizer, false), Score: sensitizer},
			{Name: "Irritation", Value: label(irritation, "medium-high", "low"), Band: BandFor(irritation, false), Score: irritation},
			{Name: "Regulatory", Value: regulatoryValue, Band: BandFor(regulatory, false), Score: regulatory},
			{Name: "Microplastics", Value: label(eco, "possible", "low"), Band: BandFor(eco, false), Score: eco},
		},
		Bullets: []string{
			"Cosmetics mode is Beta",
			"Policy mapping version: " + policy.Version,
			"Conservative language mode active",
		},
		Sources: []string{"Open Beauty Facts", "EU 1223/2009 mapping", "Policy ruleset v1"},
	}
}
