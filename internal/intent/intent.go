// Package intent turns raw user utterances into either a canonical catalog
// query or a recognised non-product intent.
//
// Everything in this package is a pure function of its inputs. Nothing here
// returns an error: unparseable or empty input degrades to an empty query or
// a "no intent" result and the caller decides what to do next.
package intent

import (
	"regexp"
	"strings"
)

var (
	barcodePattern = regexp.MustCompile(`\b\d{8,14}\b`)
	nonWordChars   = regexp.MustCompile(`[^a-z0-9 ]`)
)

// ExtractBarcode returns the first standalone run of 8 to 14 digits in text,
// or "" when there is none. Digit runs that are shorter, longer or glued to
// letters are ignored.
func ExtractBarcode(text string) string {
	return barcodePattern.FindString(text)
}

// words lower-cases text, replaces every character outside [a-z0-9 ] with a
// space and splits on whitespace.
func words(text string) []string {
	return strings.Fields(nonWordChars.ReplaceAllString(strings.ToLower(text), " "))
}

// containsPhrase reports whether phrase occurs in the space-joined token
// sequence on word boundaries.
func containsPhrase(padded, phrase string) bool {
	return strings.Contains(padded, " "+phrase+" ")
}

func pad(tokens []string) string {
	return " " + strings.Join(tokens, " ") + " "
}

func anyPhrase(padded string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(padded, p) {
			return true
		}
	}
	return false
}

type tokenSet map[string]struct{}

func newTokenSet(tokens ...string) tokenSet {
	s := make(tokenSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

func (s tokenSet) has(t string) bool {
	_, ok := s[t]
	return ok
}

func (s tokenSet) any(tokens []string) bool {
	for _, t := range tokens {
		if s.has(t) {
			return true
		}
	}
	return false
}

// ── Agent echo ───────────────────────────────────────────────────────────────

// echoMarkers are fragments of the agent's own refusal and guidance phrasing.
// Voice capture that picks them up must not be fed back into the catalog.
var echoMarkers = []string{
	"i cannot determine a specific product",
	"i cannot find a specific product",
	"i can't find a specific product",
	"i cannot identify the product",
	"please bring the product",
	"please show the barcode",
	"please show the backside",
	"ich kann das produkt nicht",
	"zeige bitte die rueckseite",
	"bitte zeig die barcode",
}

// LooksLikeAgentEcho reports whether text is most likely the agent's own
// speech picked up by the microphone.
func LooksLikeAgentEcho(text string) bool {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if normalized == "" {
		return false
	}
	for _, m := range echoMarkers {
		if strings.Contains(normalized, m) {
			return true
		}
	}
	tokens := newTokenSet(strings.Fields(normalized)...)
	return len(strings.Fields(normalized)) >= 10 &&
		tokens.has("product") &&
		(tokens.has("please") || tokens.has("cannot") || tokens.has("query"))
}
