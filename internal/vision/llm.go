package vision

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/pkg/provider/llm"
)

// LLM is a [Hinter] backed by any vision-capable [llm.Provider].
type LLM struct {
	provider llm.Provider
}

var _ Hinter = (*LLM)(nil)

// NewLLM wraps p. It fails when the configured model cannot read images.
func NewLLM(p llm.Provider) (*LLM, error) {
	if p == nil {
		return nil, errors.New("vision: llm: provider must not be nil")
	}
	if !p.Capabilities().SupportsVision {
		return nil, errors.New("vision: llm: model does not support images")
	}
	return &LLM{provider: p}, nil
}

// Infer implements [Hinter].
func (h *LLM) Infer(ctx context.Context, f Frame, domain catalog.Domain, lang string) (string, error) {
	if !f.IsImage() {
		return "", nil
	}
	resp, err := h.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: userPrompt(domain, lang),
			Images:  []llm.Image{{MIMEType: f.MIMEType, Data: f.Data}},
		}},
		Temperature: llm.Float(0),
		MaxTokens:   MaxHintTokens,
	})
	if err != nil {
		return "", fmt.Errorf("vision: llm: complete: %w", err)
	}
	return Sanitize(resp.Content), nil
}
