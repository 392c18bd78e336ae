// Package llm defines the Provider interface for chat-completion model
// backends.
//
// NutriVision uses LLM providers in two places: rewriting a deterministic
// verdict into natural speech when the live voice model is unavailable, and
// reading product identifiers off a camera frame with vision-capable models.
// Both are single-shot, non-streaming calls.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// CompletionRequest carries everything the model needs to produce one reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional instruction placed before Messages.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is usually from
	// the user and may carry images.
	Messages []Message

	// Temperature controls output randomness. Nil uses the provider default;
	// a pointer to 0 requests greedy decoding.
	Temperature *float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and waits for the full reply. It must return
	// promptly once ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities describes the configured model. The result is constant for
	// the lifetime of the Provider.
	Capabilities() ModelCapabilities
}

// Float returns a pointer to v, for [CompletionRequest.Temperature].
func Float(v float64) *float64 { return &v }
