package scoring

import (
	"strings"

	"github.com/MrWong99/nutrivision/internal/catalog"
)

// PolicyVersion tags every evaluation produced by this package.
const PolicyVersion = "v1"

// UncertainMarker is attached when no rule fired.
const UncertainMarker = "source_fields_incomplete"

var (
	notAuthorizedFood = []string{"e171"}
	warningColorants  = []string{"e102", "e104", "e110", "e122", "e124", "e129"}
)

// rule fires a flag when any normalized ingredient item matches.
type rule struct {
	flag  Flag
	match func(item string) bool
}

func exactly(codes ...string) func(string) bool {
	return func(item string) bool {
		for _, c := range codes {
			if item == c {
				return true
			}
		}
		return false
	}
}

func containing(needles ...string) func(string) bool {
	return func(item string) bool {
		for _, n := range needles {
			if strings.Contains(item, n) {
				return true
			}
		}
		return false
	}
}

var foodRules = []rule{
	{
		flag: Flag{
			Category: CategoryNotAuthorized,
			Severity: SeverityCritical,
			Message:  "E171 is not authorized in EU food context.",
			Citation: "EU food additive framework (E171 status)",
		},
		match: exactly(notAuthorizedFood...),
	},
	{
		flag: Flag{
			Category: CategoryWarningRequired,
			Severity: SeverityHigh,
			Message:  "Contains colorants that can require warning labeling.",
			Citation: "EU warning-colorants list",
		},
		match: exactly(warningColorants...),
	},
	{
		flag: Flag{
			Category: CategoryRestricted,
			Severity: SeverityMedium,
			Message:  "Nitrite preservative present; monitor intake frequency.",
			Citation: "EFSA nitrite context",
		},
		match: containing("nitrite", "e250", "e249"),
	},
}

var beautyRules = []rule{
	{
		flag: Flag{
			Category: CategoryWarningRequired,
			Severity: SeverityMedium,
			Message:  "Fragrance allergens detected.",
			Citation: "EU cosmetics allergen labeling",
		},
		match: containing("limonene", "linalool"),
	},
	{
		flag: Flag{
			Category: CategoryRestricted,
			Severity: SeverityMedium,
			Message:  "Strong surfactant may irritate sensitive skin.",
			Citation: "EU cosmetics irritation guidance",
		},
		match: containing("sodium laureth sulfate", "sodium lauryl sulfate"),
	},
	{
		flag: Flag{
			Category: CategoryWarningRequired,
			Severity: SeverityHigh,
			Message:  "Formaldehyde-related ingredient requires conservative handling.",
			Citation: "EU formaldehyde labeling update",
		},
		match: containing("formaldehyde"),
	},
	{
		flag: Flag{
			Category: CategoryRestricted,
			Severity: SeverityMedium,
			Message:  "Potential microplastics signal found.",
			Citation: "EU microplastics restriction",
		},
		match: containing("polyethylene", "acrylates"),
	},
}

var fallbackFlag = Flag{
	Category: CategoryUncertain,
	Severity: SeverityLow,
	Message:  "No strong regulatory markers found from current fields.",
	Citation: "Internal conservative fallback",
}

// normalizeItem lower-cases and trims an ingredient token and strips a
// catalog taxonomy prefix such as "en:" so that "en:e171" matches "e171".
func normalizeItem(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ':'); i == 2 {
		s = strings.TrimSpace(s[i+1:])
	}
	return s
}

// Evaluate runs the domain's regulatory rules over ingredient and additive
// tokens. Rules fire at most once each, in rule order. When nothing fires,
// the result carries a single low-severity uncertain flag and
// [UncertainMarker].
func Evaluate(domain catalog.Domain, items []string) PolicyResult {
	normalized := make([]string, 0, len(items))
	for _, it := range items {
		if n := normalizeItem(it); n != "" {
			normalized = append(normalized, n)
		}
	}

	rules := foodRules
	if domain == catalog.DomainBeauty {
		rules = beautyRules
	}

	var flags []Flag
	for _, r := range rules {
		for _, it := range normalized {
			if r.match(it) {
				flags = append(flags, r.flag)
				break
			}
		}
	}

	res := PolicyResult{Flags: flags, Version: PolicyVersion}
	if len(flags) == 0 {
		res.Flags = []Flag{fallbackFlag}
		res.UncertaintyMarkers = []string{UncertainMarker}
	}
	return res
}

// IngredientTokens collects the policy-relevant tokens of a product: additive
// tags, ingredient tags and the comma-separated ingredient text.
func IngredientTokens(p *catalog.Product) []string {
	if p == nil {
		return nil
	}
	tokens := make([]string, 0, len(p.AdditivesTags)+len(p.IngredientsTags))
	tokens = append(tokens, p.AdditivesTags...)
	tokens = append(tokens, p.IngredientsTags...)
	for _, part := range strings.Split(p.IngredientsText, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
