// Package audio moves audio between the browser wire format and the formats
// realtime models speak and accept.
//
// Decoding or transcoding compressed formats is out of scope; non-PCM chunks
// are forwarded untouched.
package audio

import "strings"

// DefaultSampleRate is assumed for PCM payloads whose MIME type carries no
// rate parameter.
const DefaultSampleRate = 24000

// Chunk is a single encoded audio payload tagged with its MIME type, e.g.
// "audio/pcm;rate=24000" or "audio/wav".
type Chunk struct {
	MIMEType string
	Data     []byte
}

// IsPCM reports whether mimeType denotes raw 16-bit PCM ("audio/pcm…" or
// "audio/l16…"). The comparison is case-insensitive.
func IsPCM(mimeType string) bool {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(m, "audio/pcm") || strings.HasPrefix(m, "audio/l16")
}

// IsAudio reports whether mimeType is in the audio/* family.
func IsAudio(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "audio/")
}
