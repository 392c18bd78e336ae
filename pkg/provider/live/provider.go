// Package live defines the Provider interface for one-shot generations
// against realtime multimodal models.
//
// A live generation opens a session, streams the latest camera frame and
// microphone chunk as realtime input, sends one text turn and collects the
// model's reply (text, transcription of spoken output and raw audio) until
// the model signals the turn is complete. The session is closed afterwards;
// no conversation state is kept between calls.
//
// Implementations must be safe for concurrent use.
package live

import (
	"context"

	"github.com/MrWong99/nutrivision/pkg/audio"
)

// Blob is an inline media payload streamed as realtime input.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Request describes one generation.
type Request struct {
	// SystemInstruction is sent in the session setup.
	SystemInstruction string

	// Prompt is the single user text turn.
	Prompt string

	// Frame and Audio are optional realtime inputs sent before Prompt.
	Frame *Blob
	Audio *Blob

	// OutputAudio requests spoken output. When false the model answers in
	// text only.
	OutputAudio bool

	// Voice selects a prebuilt voice. Empty uses the model default.
	Voice string

	// Temperature and MaxOutputTokens tune generation. Zero MaxOutputTokens
	// uses the model default.
	Temperature     float64
	MaxOutputTokens int
}

// Response is the collected reply.
type Response struct {
	// Text joins model text parts and output transcriptions in arrival order.
	Text string

	// Audio holds the raw audio parts in arrival order. Callers usually
	// merge them with [audio.Coalesce].
	Audio []audio.Chunk
}

// Provider runs one-shot live generations.
type Provider interface {
	// Generate runs req to completion. It must return promptly with ctx's
	// error once ctx is done.
	Generate(ctx context.Context, req Request) (*Response, error)
}
