package session

import (
	"fmt"
	"strings"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/locale"
	"github.com/MrWong99/nutrivision/internal/scoring"
)

// maxSnippetValues caps how many nutrition values are read out.
const maxSnippetValues = 4

// backsideMinNutrients is the number of core nutrients a record needs before
// the agent stops asking for the nutrition table.
const backsideMinNutrients = 3

// snippetFields are read in this order; the first four present are spoken.
var snippetFields = []struct {
	key    string
	format string
}{
	{scoring.KeyEnergyKcal, "%.0f kcal/100g"},
	{scoring.KeySugars, "sugar %.1f g/100g"},
	{scoring.KeyFat, "fat %.1f g/100g"},
	{scoring.KeyProteins, "protein %.1f g/100g"},
	{scoring.KeySalt, "salt %.2f g/100g"},
}

var coreNutrients = []string{
	scoring.KeySugars, scoring.KeyFat, scoring.KeyProteins, scoring.KeySalt, scoring.KeyEnergyKcal,
}

// NutritionSnippet lists up to four known per-100g values of p, or "" when
// none are known.
func NutritionSnippet(p *catalog.Product, lang string) string {
	var parts []string
	for _, f := range snippetFields {
		if v, ok := p.Nutrient(f.key); ok {
			parts = append(parts, fmt.Sprintf(f.format, v))
		}
		if len(parts) == maxSnippetValues {
			break
		}
	}
	if len(parts) == 0 {
		return ""
	}
	joined := strings.Join(parts, ", ")
	return locale.Pick(lang, "Bekannte Naehrwerte: "+joined+".", "Known nutrition values: "+joined+".")
}

// NeedsBackside reports whether the record is too thin for a confident
// analysis: fewer than three core nutrients, or no ingredient list.
func NeedsBackside(p *catalog.Product) bool {
	if p == nil {
		return true
	}
	n := 0
	for _, key := range coreNutrients {
		if _, ok := p.Nutrient(key); ok {
			n++
		}
	}
	return n < backsideMinNutrients || strings.TrimSpace(p.IngredientsText) == ""
}

// BacksidePrompt asks the user to show the ingredient list and nutrition
// table.
func BacksidePrompt(lang string) string {
	return locale.Pick(lang,
		"Bitte zeig die Rueckseite mit Zutatenliste und Naehrwerttabelle (Kohlenhydrate, Fett, Zucker, Eiweiss), damit ich genauer analysieren kann.",
		"Please show the backside ingredients and nutrition table (carbs, fat, sugar, protein) so I can provide a more precise analysis.",
	)
}

// Greeting is spoken as turn T-000 when a session starts.
func Greeting(lang string) string {
	return locale.Pick(lang,
		"Hallo, ich bin dein Live-Nutrition-Agent. Halte das Produkt vor die Kamera; falls der Barcode nicht sichtbar ist, zeig bitte die Rueckseite oder nenne den Produktnamen.",
		"Hello, I am your live nutrition agent. Bring the product to the camera; if the barcode is not visible, show the backside or tell me the product name.",
	)
}

// Composition is a scored product ready to be shown and spoken.
type Composition struct {
	HUD   HUDUpdate
	Draft string
}

// Compose joins a scoring verdict with the resolved product into the HUD
// event and the deterministic spoken draft. The HUD prefers the record's own
// name and brand over the resolved identity and reports the higher of the
// resolution and scoring confidences.
func Compose(id catalog.Identity, p *catalog.Product, resolvedConfidence float64, v scoring.Verdict, domain catalog.Domain, lang string) Composition {
	snippet := NutritionSnippet(p, lang)
	backside := ""
	if NeedsBackside(p) {
		backside = BacksidePrompt(lang)
	}

	draft := v.Summary(lang)
	bullets := append([]string(nil), v.Bullets...)
	for _, extra := range []string{snippet, backside} {
		if extra == "" {
			continue
		}
		draft += " " + extra
		bullets = append(bullets, extra)
	}

	shown := id
	if p != nil {
		if n := strings.TrimSpace(p.ProductName); n != "" {
			shown.Name = n
		}
		if b := strings.TrimSpace(p.Brands); b != "" {
			shown.Brand = b
		}
	}

	return Composition{
		HUD: HUDUpdate{
			EventType:          EventHUDUpdate,
			Domain:             domain,
			PolicyVersion:      v.PolicyVersion,
			ProductIdentity:    shown,
			GradeOrTier:        v.Grade,
			Warnings:           nonNil(v.Warnings),
			Metrics:            nonNil(v.Metrics),
			Confidence:         max(resolvedConfidence, v.Confidence),
			DataSources:        nonNil(v.Sources),
			ExplanationBullets: nonNil(bullets),
		},
		Draft: draft,
	}
}

// ComposeWholeFood builds the HUD and draft for an unpackaged food profile.
// The verdict's summary is the draft verbatim.
func ComposeWholeFood(id catalog.Identity, v scoring.Verdict, domain catalog.Domain, lang string) Composition {
	return Composition{
		HUD: HUDUpdate{
			EventType:          EventHUDUpdate,
			Domain:             domain,
			PolicyVersion:      v.PolicyVersion,
			ProductIdentity:    id,
			GradeOrTier:        v.Grade,
			Warnings:           nonNil(v.Warnings),
			Metrics:            nonNil(v.Metrics),
			Confidence:         v.Confidence,
			DataSources:        nonNil(v.Sources),
			ExplanationBullets: nonNil(v.Bullets),
		},
		Draft: v.Summary(lang),
	}
}
