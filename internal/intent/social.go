package intent

import (
	"strings"

	"github.com/MrWong99/nutrivision/internal/locale"
)

// Social is the kind of non-product, conversational intent an utterance
// carries.
type Social int

const (
	// SocialNone means the utterance should be handled as a product query.
	SocialNone Social = iota
	// SocialCameraCheck asks whether the agent can see the product.
	SocialCameraCheck
	// SocialNoProduct says the product is not at hand or cannot be scanned.
	SocialNoProduct
	// SocialIdentity asks who or what the agent is.
	SocialIdentity
	// SocialGreeting is small talk such as "good morning".
	SocialGreeting
)

// String returns the wire name of the intent.
func (s Social) String() string {
	switch s {
	case SocialCameraCheck:
		return "camera_check"
	case SocialNoProduct:
		return "no_product"
	case SocialIdentity:
		return "identity"
	case SocialGreeting:
		return "greeting"
	default:
		return "none"
	}
}

// socialRule pairs an intent with its marker phrases. Rules are evaluated in
// slice order; the first rule with a matching phrase wins.
type socialRule struct {
	kind    Social
	markers []string
}

// Markers are matched against the output of words(), so apostrophes have
// already become spaces ("don't" -> "don t").
var socialRules = []socialRule{
	{SocialCameraCheck, []string{
		"what are you seeing", "what can you see", "do you see it",
		"can you see it", "what is it", "in front of me", "it s in front of me",
		"its in front of me", "can you see this", "do you see this",
		"what do you see", "was siehst du", "siehst du es",
	}},
	{SocialNoProduct, []string{
		"i don t have it", "i dont have it", "i do not have it",
		"i don t have the product", "not with me", "without the product",
		"cannot scan", "can t scan", "cant scan", "cannot show barcode",
		"can t show barcode", "barcode not visible", "habe es nicht",
		"nicht dabei", "kein produkt", "kann nicht scannen",
		"barcode nicht sichtbar",
	}},
	{SocialIdentity, []string{
		"who are you", "what are you", "what can you do", "who am i talking to",
		"introduce yourself", "wer bist du", "was bist du", "was kannst du",
		"wer spricht", "which country do you belong", "where are you from",
		"woher kommst du",
	}},
	{SocialGreeting, []string{
		"hello", "hallo", "hi", "hey", "good morning", "good afternoon",
		"good evening", "good day", "morning", "guten morgen", "guten tag",
		"guten abend", "servus",
	}},
}

var (
	socialContextTokens = newTokenSet(
		"hello", "hallo", "hi", "hey", "good", "morning", "afternoon",
		"evening", "who", "are", "you", "what", "can", "do", "wer", "bist",
		"was", "kannst", "du",
	)

	// productContextTokens force product handling even when a social marker
	// is present ("hello, scan this product").
	productContextTokens = newTokenSet(
		"product", "produkt", "barcode", "scan", "camera", "analyse", "analyze",
		"nutrition", "ingredients", "zutaten", "naehrwert", "carbs", "fat",
		"sugar", "protein", "chips", "cola", "cookie", "cereal", "yogurt",
		"chocolate", "snack", "drink", "bottle",
	)
)

// ClassifySocial returns the conversational intent of text, or [SocialNone].
//
// Precedence is camera-check, no-product, identity, greeting. A lone greeting
// word is too ambiguous and yields SocialNone. Text that carries a barcode or
// product vocabulary is never social, except for the explicit no-product and
// camera-check phrasings that mention the product or camera themselves.
func ClassifySocial(text string) Social {
	tokens := words(text)
	if len(tokens) == 0 {
		return SocialNone
	}
	joined := strings.Join(tokens, " ")
	if ExtractBarcode(joined) != "" {
		return SocialNone
	}
	padded := pad(tokens)

	for _, rule := range socialRules {
		if !anyPhrase(padded, rule.markers) {
			continue
		}
		switch rule.kind {
		case SocialCameraCheck, SocialNoProduct:
			return rule.kind
		case SocialGreeting:
			if len(tokens) == 1 && bareGreetings.has(tokens[0]) {
				return SocialNone
			}
		}
		if productContextTokens.any(tokens) || looksLikeLays(joined) {
			return SocialNone
		}
		if _, ok := LookupWholeFood(joined); ok {
			return SocialNone
		}
		return rule.kind
	}

	if len(tokens) >= 2 && allIn(tokens, socialContextTokens) {
		return SocialGreeting
	}
	return SocialNone
}

func allIn(tokens []string, set tokenSet) bool {
	for _, t := range tokens {
		if !set.has(t) {
			return false
		}
	}
	return true
}

// SocialPrompt returns the agent's reply to a conversational intent.
// [SocialNone] and [SocialGreeting] share the greeting reply.
func SocialPrompt(lang string, kind Social) string {
	switch kind {
	case SocialCameraCheck:
		return locale.Pick(lang,
			"Ich sehe das Livebild, aber das Produkt ist noch nicht eindeutig. Bitte halte die Vorderseite ruhig ins Licht und danach den Barcode oder die Rueckseite mit Zutaten und Naehrwerten.",
			"I can see the live camera feed, but the product is not clear yet. Please hold the front label steady in good light, then show the barcode or the backside ingredients and nutrition table.",
		)
	case SocialNoProduct:
		return locale.Pick(lang,
			"Kein Problem. Nenne mir bitte den Produktnamen Wort fuer Wort und die Marke. Wenn moeglich, sag auch die Werte pro 100 Gramm fuer Kohlenhydrate, Fett, Zucker und Eiweiss; alternativ kannst du spaeter Foto oder Barcode senden.",
			"No problem. Please tell me the product name word by word and the brand. If possible, also share per-100g carbs, fat, sugar, and protein; you can also send a photo or barcode later.",
		)
	case SocialIdentity:
		return locale.Pick(lang,
			"Ich bin NutriVision, dein Live-Nutrition-Agent. Ich erkenne Produkte per Kamera und gebe kurze, datenbasierte Hinweise zu Zutaten, Naehrwerten und Warnungen.",
			"I am NutriVision, your live nutrition agent. I identify products from the camera and give short, data-grounded guidance on ingredients, nutrition values, and warnings.",
		)
	default:
		return locale.Pick(lang,
			"Guten Tag. Ich bin bereit. Zeig mir einfach das Produkt oder nenne den Namen, dann starte ich die Analyse sofort.",
			"Good morning. I am ready. Show me the product or say its name and I will start the analysis right away.",
		)
	}
}
