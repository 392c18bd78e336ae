// Package locale negotiates the conversation language and selects between
// the German and English variants of the agent's fixed phrases.
package locale

import "strings"

// Default is used when a client does not declare a language.
const Default = "de"

var names = map[string]string{
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"hi": "Hindi",
	"it": "Italian",
	"pt": "Portuguese",
}

// Negotiate maps a client language tag to a supported code. Unsupported tags
// starting with "de" (de-AT, de_CH) fall back to German, everything else to
// English.
func Negotiate(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if _, ok := names[c]; ok {
		return c
	}
	if strings.HasPrefix(c, "de") {
		return "de"
	}
	return "en"
}

// Name returns the English name of a language code for use in model
// instructions. Unknown codes yield "English".
func Name(code string) string {
	if n, ok := names[Negotiate(code)]; ok {
		return n
	}
	return "English"
}

// Pick returns de for German sessions and en for every other language. Fixed
// phrases are only authored in these two languages; the refinement model
// translates when the session uses another one.
func Pick(lang, de, en string) string {
	if lang == "de" {
		return de
	}
	return en
}
