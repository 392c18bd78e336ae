// Package vision reads product identifiers off a single camera frame.
//
// A [Hinter] asks a multimodal model for a barcode or a short
// "<brand> <product>" search query. Model replies are loosely structured, so
// every backend passes its raw text through [Sanitize] before returning it.
// An empty hint is a normal outcome and means the frame showed nothing
// usable.
package vision

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/intent"
	"github.com/MrWong99/nutrivision/internal/locale"
)

// Frame is the most recent still image received from the client.
type Frame struct {
	MIMEType string
	Data     []byte
}

// IsImage reports whether the frame carries image data a model can read.
func (f Frame) IsImage() bool {
	return strings.HasPrefix(f.MIMEType, "image/") && len(f.Data) > 0
}

// Hinter infers a catalog query or barcode from a frame.
//
// Implementations return ("", nil) when the frame is not an image or the
// model saw nothing identifiable. Errors are reserved for transport and
// provider failures.
type Hinter interface {
	Infer(ctx context.Context, f Frame, domain catalog.Domain, lang string) (string, error)
}

const (
	// MaxHintTokens caps the model reply. A hint is at most one short JSON
	// object.
	MaxHintTokens = 48

	maxHintLen = 64
	minHintLen = 3
)

const systemPrompt = "You extract product identifiers from one package image for product catalog search. " +
	"Output strict JSON only with keys: barcode, brand, product, query. " +
	"Use empty strings for unknown keys. " +
	"If barcode is visible, include digits in barcode and keep query empty. " +
	"If barcode is not visible, set query to '<brand> <product>' (max six words) using visible package text. " +
	"If unpackaged produce is visible, set query to a single item name (apple, banana, or orange). " +
	"Prefer exact visible brand/logo words over generic terms like snack or packet. " +
	"Do not write full sentences."

// userPrompt is the per-frame instruction sent alongside the image.
func userPrompt(domain catalog.Domain, lang string) string {
	return "Domain: " + string(domain) + "\n" +
		"Language: " + locale.Name(lang) + "\n" +
		"Identify the visible product now."
}

// frameHint is the JSON record the model is instructed to return. All fields
// are optional in practice.
type frameHint struct {
	Barcode any `json:"barcode"`
	Brand   any `json:"brand"`
	Product any `json:"product"`
	Name    any `json:"name"`
	Query   any `json:"query"`
}

// field renders a loosely typed JSON value. Models occasionally emit barcodes
// as numbers.
func field(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
}

var (
	keyValueLine = regexp.MustCompile(`(?i)(?:query|product|name|brand)\s*[:=-]\s*([^\n\r]+)`)
	whitespace   = regexp.MustCompile(`\s+`)
	hintIllegal  = regexp.MustCompile(`[^\p{L}\p{N}\- ]`)
)

var uncertainMarkers = []string{"unknown", "unclear", "none"}

// Sanitize turns a raw model reply into a catalog query or barcode. It
// returns "" when the reply is empty, expresses uncertainty or is too short
// to search for.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = strings.Trim(text, "`")
	if rest, ok := strings.CutPrefix(text, "json"); ok {
		text = strings.TrimSpace(rest)
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
		dec.UseNumber()
		var hint frameHint
		if err := dec.Decode(&hint); err == nil {
			if code := intent.ExtractBarcode(field(hint.Barcode)); code != "" {
				return code
			}
			if q := field(hint.Query); q != "" {
				text = q
			} else {
				product := field(hint.Product)
				if product == "" {
					product = field(hint.Name)
				}
				merged := strings.TrimSpace(field(hint.Brand) + " " + product)
				if merged == "" {
					// A well-formed reply with every key blank means no hint.
					return ""
				}
				text = merged
			}
		}
	}

	if m := keyValueLine.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if code := intent.ExtractBarcode(text); code != "" {
		return code
	}

	lowered := strings.ToLower(text)
	for _, marker := range uncertainMarkers {
		if strings.Contains(lowered, marker) {
			return ""
		}
	}

	cleaned := strings.Trim(whitespace.ReplaceAllString(text, " "), " \t\r\n.,:;!?\"'`")
	cleaned = strings.TrimSpace(hintIllegal.ReplaceAllString(cleaned, ""))
	runes := []rune(cleaned)
	if len(runes) < minHintLen {
		return ""
	}
	if len(runes) > maxHintLen {
		cleaned = strings.TrimSpace(string(runes[:maxHintLen]))
	}
	return cleaned
}
