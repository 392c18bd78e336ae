package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/nutrivision/internal/observe"
	"github.com/MrWong99/nutrivision/pkg/audio"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
)

const (
	// DefaultRefineTimeout bounds one refinement attempt.
	DefaultRefineTimeout = 8 * time.Second

	// DefaultMaxAudioChunks caps the speech_audio events per turn.
	DefaultMaxAudioChunks = 4
)

// Emitter delivers the synthesized answer to the client. Implementations
// stamp session, turn and language onto each event.
type Emitter interface {
	SpeechAudio(ctx context.Context, chunk audio.Chunk) error
	SpeechText(ctx context.Context, text string) error
}

// Request is one answer to synthesize.
type Request struct {
	// Draft is the deterministic answer used whenever refinement fails.
	Draft    string
	Language string
	Domain   string
	Query    string
	Frame    *live.Blob
	Audio    *live.Blob
}

// Result is the answer chosen for a turn.
type Result struct {
	Text  string
	Audio []audio.Chunk

	// Refined is false when Text is the draft verbatim.
	Refined bool
}

// Synthesizer produces the spoken answer of a turn.
type Synthesizer struct {
	refiner     Refiner
	provider    string
	timeout     time.Duration
	outputAudio bool
	maxChunks   int
	metrics     *observe.Metrics
	notice      *observe.Notice
}

// SynthOption configures a [Synthesizer].
type SynthOption func(*Synthesizer)

// WithRefineTimeout overrides [DefaultRefineTimeout].
func WithRefineTimeout(d time.Duration) SynthOption {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithOutputAudio enables speech audio. Enabled by default.
func WithOutputAudio(on bool) SynthOption {
	return func(s *Synthesizer) { s.outputAudio = on }
}

// WithMaxAudioChunks overrides [DefaultMaxAudioChunks].
func WithMaxAudioChunks(n int) SynthOption {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxChunks = n
		}
	}
}

// WithMetrics records refinement latency. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) SynthOption {
	return func(s *Synthesizer) { s.metrics = m }
}

// WithNotice sets the warn-once notice used when no refiner is configured.
func WithNotice(n *observe.Notice) SynthOption {
	return func(s *Synthesizer) { s.notice = n }
}

// NewSynthesizer creates a Synthesizer. A nil refiner is allowed; every turn
// then speaks its draft. provider labels metrics.
func NewSynthesizer(r Refiner, provider string, opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{
		refiner:     r,
		provider:    provider,
		timeout:     DefaultRefineTimeout,
		outputAudio: true,
		maxChunks:   DefaultMaxAudioChunks,
		notice:      &observe.Notice{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Configured reports whether a refiner backs the synthesizer.
func (s *Synthesizer) Configured() bool { return s.refiner != nil }

// Synthesize chooses the answer for req. It never fails.
//
// When audio output is enabled and the first attempt yields no audio, one
// retry runs without the audio input; its audio is adopted if present, else
// its text. A timed-out first attempt is not retried.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) Result {
	draft := Result{Text: req.Draft}
	if s.refiner == nil {
		s.notice.Warn(ctx, "voice: refinement disabled, no provider configured; speaking drafts")
		return draft
	}

	rr := RefineRequest{
		Draft:       req.Draft,
		Language:    req.Language,
		Domain:      req.Domain,
		Query:       req.Query,
		Frame:       req.Frame,
		Audio:       req.Audio,
		OutputAudio: s.outputAudio,
	}
	if rr.Query == "" {
		rr.Query = req.Draft
	}

	log := observe.Logger(ctx)
	first, err := s.attempt(ctx, rr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			log.Warn("refinement timed out; using deterministic text", "timeout", s.timeout)
			return draft
		}
		log.Warn("refinement failed; using deterministic text", "err", err)
	}

	result := draft
	if first != nil {
		result = Result{Text: first.Text, Audio: first.Audio, Refined: true}
	}
	if !s.outputAudio || len(result.Audio) > 0 {
		return s.finish(result, req.Draft)
	}

	retryReq := rr
	retryReq.Audio = nil
	if result.Text != "" {
		retryReq.Draft = result.Text
	}
	retry, err := s.attempt(ctx, retryReq)
	switch {
	case err != nil:
		log.Debug("refinement retry without audio failed", "err", err)
	case len(retry.Audio) > 0:
		return s.finish(Result{Text: retry.Text, Audio: retry.Audio, Refined: true}, req.Draft)
	case retry.Text != "":
		return s.finish(Result{Text: retry.Text, Refined: true}, req.Draft)
	}
	return s.finish(result, req.Draft)
}

// finish falls back to the draft for empty text and merges audio into
// playable chunks.
func (s *Synthesizer) finish(r Result, draft string) Result {
	if r.Text == "" {
		r.Text = draft
		r.Refined = false
	}
	merged := audio.Coalesce(r.Audio)
	if len(merged) > s.maxChunks {
		merged = merged[:s.maxChunks]
	}
	r.Audio = merged
	return r
}

// attempt runs one refinement under the hard timeout.
func (s *Synthesizer) attempt(ctx context.Context, req RefineRequest) (*RefineResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.refiner.Refine(ctx, req)
	if err == nil && res == nil {
		err = errors.New("voice: refiner returned no result")
	}
	if err = s.metrics.ObserveCall(ctx, s.metrics.RefineDuration, s.provider, "refine", start, err); err != nil {
		return nil, err
	}
	return res, nil
}

// Deliver emits r: audio chunks first, then exactly one text event.
func (s *Synthesizer) Deliver(ctx context.Context, e Emitter, r Result) error {
	for _, c := range r.Audio {
		if err := e.SpeechAudio(ctx, c); err != nil {
			return fmt.Errorf("voice: emit audio: %w", err)
		}
	}
	if err := e.SpeechText(ctx, r.Text); err != nil {
		return fmt.Errorf("voice: emit text: %w", err)
	}
	return nil
}

// Speak synthesizes and delivers req in one step, returning the spoken text.
func (s *Synthesizer) Speak(ctx context.Context, e Emitter, req Request) (string, error) {
	r := s.Synthesize(ctx, req)
	return r.Text, s.Deliver(ctx, e, r)
}
