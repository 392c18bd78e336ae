package resolve

import (
	"strings"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/locale"
)

// DefaultMargin is the minimum confidence gap between the two best search
// candidates for the first one to be chosen without asking.
const DefaultMargin = 0.08

// Disambiguate reports whether the top two of the ranked candidates are too
// close to choose between. When ok is true, top holds those two candidates.
func Disambiguate(candidates []catalog.Candidate, margin float64) (top []catalog.Candidate, ok bool) {
	if len(candidates) < 2 {
		return nil, false
	}
	if candidates[0].Confidence-candidates[1].Confidence >= margin {
		return nil, false
	}
	return candidates[:2:2], true
}

// DisambiguationPrompt asks the user to choose between the candidates.
func DisambiguationPrompt(lang string, top []catalog.Candidate) string {
	names := make([]string, len(top))
	for i, c := range top {
		names[i] = c.Name
	}
	if lang == "de" {
		return "Mehrere Treffer sind nah beieinander: " + strings.Join(names, " oder ") + ". Welches Produkt meinst du?"
	}
	return "Multiple close matches found: " + strings.Join(names, " or ") + ". Which product do you mean?"
}

// ClarificationPrompt escalates with the number of consecutive turns that
// resolved nothing: the first ask is gentle, the second asks for dictation,
// the third and later enumerate options.
func ClarificationPrompt(lang string, streak int) string {
	switch {
	case streak <= 1:
		return locale.Pick(lang,
			"Ich kann das Produkt noch nicht sicher erkennen. Bitte zeig die Vorderseite klar, nenne den Produktnamen oder zeig Rueckseite mit Zutaten und Naehrwerten (Kohlenhydrate, Fett, Zucker, Eiweiss).",
			"I cannot identify the product yet. Please show the front side clearly, say the product name, or show the backside with ingredients and nutrition values (carbs, fat, sugar, protein).",
		)
	case streak == 2:
		return locale.Pick(lang,
			"Noch nicht eindeutig. Bitte nenne jetzt den Produktnamen Wort fuer Wort und danach die Marke. Wenn moeglich, lies mir die Naehrwerte pro 100 Gramm vor: Kohlenhydrate, Fett, Zucker, Eiweiss.",
			"Still not clear. Please say the product name word by word, then the brand. If possible, read the per-100g nutrition values: carbs, fat, sugar, protein.",
		)
	default:
		return locale.Pick(lang,
			"Wir haben weiter zu wenig Signal. Option 1: Barcode zeigen. Option 2: Rueckseite mit Zutaten und Naehrwerten zeigen. Option 3: Produktname und Marke langsam diktieren.",
			"We still do not have enough signal. Option 1: show the barcode. Option 2: show the backside ingredients and nutrition table. Option 3: dictate product name and brand slowly.",
		)
	}
}
