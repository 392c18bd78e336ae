package audio

import (
	"encoding/base64"
	"errors"
	"strings"
)

const defaultMIME = "application/octet-stream"

// ErrEmptyDataURL is returned by [DecodeDataURL] for empty input.
var ErrEmptyDataURL = errors.New("audio: empty data url")

// EncodeDataURL renders payload as "data:<mime>;base64,<payload>".
func EncodeDataURL(mimeType string, payload []byte) string {
	if mimeType == "" {
		mimeType = defaultMIME
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

// DecodeDataURL parses a base64 data URL. A bare base64 string without a
// "data:" header is accepted and typed as application/octet-stream. The
// payload decoder tolerates missing padding.
func DecodeDataURL(value string) (string, []byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil, ErrEmptyDataURL
	}
	mimeType := defaultMIME
	payload := value
	if header, rest, ok := strings.Cut(value, ","); ok {
		payload = rest
		if m, ok := strings.CutPrefix(header, "data:"); ok {
			if mt, _, ok := strings.Cut(m, ";base64"); ok && strings.TrimSpace(mt) != "" {
				mimeType = strings.TrimSpace(mt)
			}
		}
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return "", nil, err
	}
	return mimeType, data, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
