// Package phonetic corrects misheard brand names in spoken product queries.
//
// Speech recognisers routinely mangle brand names ("pringels", "nutela",
// "dorito's"). A [Lexicon] holds the canonical spelling of a set of brands and
// maps an arbitrary token back onto one of them in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes of the token are
//     compared against the precomputed codes of every brand. Overlapping
//     brands are accepted when their Jaro-Winkler similarity reaches the
//     phonetic threshold.
//
//  2. Fuzzy fallback: without a phonetic candidate, pure Jaro-Winkler
//     similarity must reach the (higher) fuzzy threshold.
//
// A Lexicon is read-only after construction and safe for concurrent use.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.88
	defaultFuzzyThreshold    = 0.92

	// minTokenLen keeps short function words from being pulled onto brands.
	minTokenLen = 4
)

// DefaultBrands are distinctive single-word snack brands that are frequently
// misrecognised and unlikely to collide with ordinary vocabulary.
var DefaultBrands = []string{
	"doritos",
	"haribo",
	"knoppers",
	"leibniz",
	"nutella",
	"oreo",
	"pringles",
}

// Option is a functional option for configuring a [Lexicon].
type Option func(*Lexicon)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetically
// overlapping brand. Default: 0.88.
func WithPhoneticThreshold(threshold float64) Option {
	return func(l *Lexicon) { l.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score used when no brand
// shares a phonetic code with the token. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(l *Lexicon) { l.fuzzyThreshold = threshold }
}

type entry struct {
	name  string
	codes map[string]struct{}
}

// Lexicon matches tokens against a fixed set of canonical brand names.
type Lexicon struct {
	entries           []entry
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewLexicon precomputes phonetic codes for brands. Brands are lower-cased;
// blank entries are skipped.
func NewLexicon(brands []string, opts ...Option) *Lexicon {
	l := &Lexicon{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(l)
	}
	for _, b := range brands {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}
		l.entries = append(l.entries, entry{name: b, codes: codes(b)})
	}
	return l
}

// Match returns the brand most similar to token. When matched is false the
// returned brand is empty and confidence is 0. Exact hits return confidence 1.
func (l *Lexicon) Match(token string) (brand string, confidence float64, matched bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if len(token) < minTokenLen || len(l.entries) == 0 {
		return "", 0, false
	}

	tokenCodes := codes(token)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, e := range l.entries {
		if e.name == token {
			return e.name, 1, true
		}
		score := matchr.JaroWinkler(token, e.name, false)
		if overlap(tokenCodes, e.codes) {
			if score >= l.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = e.name, score, true
			}
			continue
		}
		if !bestPhonetic && score >= l.fuzzyThreshold && score > bestScore {
			best, bestScore = e.name, score
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// Correct rewrites every token of a whitespace-separated query that matches a
// brand and reports whether anything changed.
func (l *Lexicon) Correct(query string) (string, bool) {
	tokens := strings.Fields(query)
	changed := false
	for i, tok := range tokens {
		if brand, _, ok := l.Match(tok); ok && brand != tok {
			tokens[i] = brand
			changed = true
		}
	}
	return strings.Join(tokens, " "), changed
}

// codes returns the non-empty Double Metaphone codes of s.
func codes(s string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, sec := matchr.DoubleMetaphone(s)
	if p != "" {
		out[p] = struct{}{}
	}
	if sec != "" {
		out[sec] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
