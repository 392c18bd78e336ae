package intent

import (
	"regexp"
	"strings"

	"github.com/MrWong99/nutrivision/internal/phonetic"
)

// DefaultMaxQueryTokens bounds the length of a normalized catalog query.
const DefaultMaxQueryTokens = 6

// LaysQuery is the canonical phrase every recognised Lay's variant collapses to.
const LaysQuery = "lays classic chips"

var (
	bareGreetings = newTokenSet("hello", "hallo", "hi", "hey")

	fillerTokens = newTokenSet(
		"hello", "hallo", "hi", "hey", "ok", "okay", "please", "bitte",
		"can", "could", "you", "ich", "bin", "the", "a", "an", "to", "for",
		"with", "your", "product", "camera", "packet", "pack", "package",
		"towards", "near", "show", "bring", "frage", "question", "nutrition",
		"agent", "ready", "help", "query",
	)

	lowSignalTokens = newTokenSet(
		"product", "item", "this", "that", "thing", "food", "snack", "pack", "packet",
	)

	voiceActionTokens = newTokenSet(
		"show", "showing", "look", "looking", "see", "seeing", "camera",
		"packet", "product", "this", "that", "here", "you", "me", "it", "its",
		"please", "can", "could", "in", "front", "of", "is", "what", "towards",
		"near",
	)

	nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]`)

	brands = phonetic.NewLexicon(phonetic.DefaultBrands)
)

// NormalizeQuery turns an utterance into a short catalog search query using
// [DefaultMaxQueryTokens].
func NormalizeQuery(text string) string {
	return NormalizeQueryN(text, DefaultMaxQueryTokens)
}

// NormalizeQueryN lower-cases text, drops agent echo and bare greetings,
// collapses Lay's misrecognitions, strips filler vocabulary, corrects
// misheard brand names and truncates the result to maxTokens tokens.
func NormalizeQueryN(text string, maxTokens int) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return ""
	}
	lowered := strings.ToLower(normalized)
	lowered = strings.NewReplacer("lay's", "lays", "lay’s", "lays").Replace(lowered)

	if LooksLikeAgentEcho(lowered) {
		return ""
	}
	if bareGreetings.has(lowered) {
		return ""
	}
	if looksLikeLays(lowered) {
		return LaysQuery
	}

	var kept []string
	for _, tok := range strings.Fields(lowered) {
		tok = nonAlnum.ReplaceAllString(tok, "")
		if tok == "" || fillerTokens.has(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return ""
	}
	if maxTokens > 0 && len(kept) > maxTokens {
		kept = kept[:maxTokens]
	}
	query, _ := brands.Correct(strings.Join(kept, " "))
	return query
}

// looksLikeLays recognises the many ways speech recognition spells Lay's.
func looksLikeLays(lowered string) bool {
	lowered = strings.ReplaceAll(lowered, "lay’s", "lay's")
	if strings.Contains(lowered, "lay's") || strings.Contains(lowered, "lays") {
		return true
	}
	w := newTokenSet(words(lowered)...)
	packaging := w.has("chips") || w.has("packet") || w.has("pack")
	switch {
	case w.has("lay") && w.has("chips"):
		return true
	case (w.has("lace") || w.has("leis")) && packaging:
		return true
	case w.has("chips") && (w.has("classic") || w.has("yellow")):
		return true
	}
	return false
}

// IsLowSignal reports whether a normalized query is too generic to search
// for: empty, or at most two tokens drawn entirely from generic vocabulary
// such as "product" or "pack".
func IsLowSignal(query string) bool {
	tokens := words(query)
	if len(tokens) == 0 {
		return true
	}
	if len(tokens) > 2 {
		return false
	}
	for _, t := range tokens {
		if !lowSignalTokens.has(t) {
			return false
		}
	}
	return true
}

// IsVoiceNoise reports whether a raw utterance is dominated by action and
// filler words ("show", "camera", "this") with too few substantive tokens to
// identify a product. Known fruit names and Lay's variants are never noise.
func IsVoiceNoise(text string) bool {
	tokens := words(text)
	if len(tokens) == 0 {
		return true
	}
	joined := strings.Join(tokens, " ")
	if _, ok := LookupWholeFood(joined); ok {
		return false
	}
	if looksLikeLays(joined) {
		return false
	}

	var action, substantive int
	for _, t := range tokens {
		if voiceActionTokens.has(t) {
			action++
		} else {
			substantive++
		}
	}
	switch {
	case action > 0 && substantive <= 1:
		return true
	case len(tokens) >= 4 && action >= 2 && substantive <= 2:
		return true
	case len(tokens) >= 6 && action >= 3 && substantive <= 3:
		return true
	case len(tokens) == 1 && len(tokens[0]) <= 5 && !isDigits(tokens[0]):
		return true
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
