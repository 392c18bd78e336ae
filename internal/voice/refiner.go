// Package voice turns a deterministic draft verdict into the agent's spoken
// answer.
//
// A [Refiner] rewrites the draft with a generative model and may return
// synthesized speech. The [Synthesizer] bounds every refinement with a hard
// timeout, applies the retry rules for missing audio and falls back to the
// draft verbatim whenever refinement fails, so a turn always gets an answer.
package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/nutrivision/internal/locale"
	"github.com/MrWong99/nutrivision/internal/resilience"
	"github.com/MrWong99/nutrivision/pkg/audio"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
	"github.com/MrWong99/nutrivision/pkg/provider/llm"
)

// Generation parameters shared by all refiners.
const (
	RefineTemperature = 0.3
	RefineMaxTokens   = 140
)

// RefineRequest is the input of one refinement call.
type RefineRequest struct {
	Draft    string
	Language string
	Domain   string

	// Query is the user's normalized request. Empty means none.
	Query string

	// Frame and Audio are the session's buffered media. Either may be nil.
	Frame *live.Blob
	Audio *live.Blob

	// OutputAudio asks the refiner for synthesized speech.
	OutputAudio bool
}

// RefineResult is a refiner's answer. Text may be empty when the model only
// produced audio or nothing at all.
type RefineResult struct {
	Text  string
	Audio []audio.Chunk
}

// Refiner rewrites a draft verdict.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (*RefineResult, error)
}

// systemPrompt instructs the model to answer in the session language.
func systemPrompt(lang string) string {
	return "You are a world-class nutrition copilot for live shopping decisions. " +
		"Always answer in " + locale.Name(lang) + ". " +
		"Use a natural, human tone and return exactly two short sentences. " +
		"If the user greets you or asks who you are, reply briefly and then guide them back to product analysis. " +
		"Avoid medical/legal absolutes, and keep every claim grounded in the provided product data."
}

// userPrompt carries the draft and its context as a single text turn.
func userPrompt(req RefineRequest) string {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = "-"
	}
	return "Language: " + locale.Name(req.Language) + "\n" +
		"Domain: " + req.Domain + "\n" +
		"User query: " + query + "\n" +
		"Draft verdict: " + req.Draft + "\n" +
		"Rewrite the draft verdict."
}

// ── Live ──────────────────────────────────────────────────────────────────────

// LiveRefiner refines through a realtime multimodal model that can see the
// buffered frame, hear the buffered audio and answer with speech.
type LiveRefiner struct {
	provider live.Provider
	voice    string
}

var _ Refiner = (*LiveRefiner)(nil)

// NewLiveRefiner wraps p. voice selects a prebuilt voice and may be empty.
func NewLiveRefiner(p live.Provider, voice string) *LiveRefiner {
	return &LiveRefiner{provider: p, voice: voice}
}

// Refine implements [Refiner].
func (r *LiveRefiner) Refine(ctx context.Context, req RefineRequest) (*RefineResult, error) {
	resp, err := r.provider.Generate(ctx, live.Request{
		SystemInstruction: systemPrompt(req.Language),
		Prompt:            userPrompt(req),
		Frame:             req.Frame,
		Audio:             req.Audio,
		OutputAudio:       req.OutputAudio,
		Voice:             r.voice,
		Temperature:       RefineTemperature,
		MaxOutputTokens:   RefineMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("voice: live refine: %w", err)
	}
	out := &RefineResult{Text: strings.TrimSpace(resp.Text)}
	if req.OutputAudio {
		out.Audio = resp.Audio
	}
	return out, nil
}

// ── LLM ───────────────────────────────────────────────────────────────────────

// LLMRefiner refines through a text-only chat model. Buffered media is not
// forwarded and no audio is produced.
type LLMRefiner struct {
	provider llm.Provider
}

var _ Refiner = (*LLMRefiner)(nil)

// NewLLMRefiner wraps p.
func NewLLMRefiner(p llm.Provider) *LLMRefiner {
	return &LLMRefiner{provider: p}
}

// Refine implements [Refiner].
func (r *LLMRefiner) Refine(ctx context.Context, req RefineRequest) (*RefineResult, error) {
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt(req.Language),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userPrompt(req)}},
		Temperature:  llm.Float(RefineTemperature),
		MaxTokens:    RefineMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("voice: llm refine: %w", err)
	}
	return &RefineResult{Text: strings.TrimSpace(resp.Content)}, nil
}

// ── Fallback ──────────────────────────────────────────────────────────────────

// FallbackRefiner tries refiners in order, each behind its own circuit
// breaker. The first success wins.
type FallbackRefiner struct {
	group *resilience.FallbackGroup[Refiner]
}

var _ Refiner = (*FallbackRefiner)(nil)

// NewFallbackRefiner creates a chain with primary as the first choice.
func NewFallbackRefiner(primary Refiner, name string, cfg resilience.FallbackConfig) *FallbackRefiner {
	return &FallbackRefiner{group: resilience.NewFallbackGroup(primary, name, cfg)}
}

// AddFallback appends a refiner tried after all previously added ones.
func (f *FallbackRefiner) AddFallback(name string, r Refiner) {
	f.group.AddFallback(name, r)
}

// Breakers exposes the per-refiner circuit breakers for health checks.
func (f *FallbackRefiner) Breakers() map[string]*resilience.CircuitBreaker {
	return f.group.Breakers()
}

// Refine implements [Refiner].
func (f *FallbackRefiner) Refine(ctx context.Context, req RefineRequest) (*RefineResult, error) {
	res, err := resilience.ExecuteWithResult(ctx, f.group, func(ctx context.Context, r Refiner) (*RefineResult, error) {
		return r.Refine(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("voice: refine: %w", err)
	}
	return res, nil
}
