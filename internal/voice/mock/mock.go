// Package mock provides test doubles for the voice package: a scripted
// Refiner and a recording Emitter.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nutrivision/internal/voice"
	"github.com/MrWong99/nutrivision/pkg/audio"
)

// Refiner is a scripted [voice.Refiner]. Call i returns Results[i] and
// Errs[i]; past the end of either slice the last entry repeats. A nil result
// with a nil error yields an empty result.
type Refiner struct {
	mu sync.Mutex

	Results []*voice.RefineResult
	Errs    []error

	// Block makes Refine wait for ctx to be done.
	Block bool

	calls []voice.RefineRequest
}

var _ voice.Refiner = (*Refiner)(nil)

// Refine implements [voice.Refiner].
func (r *Refiner) Refine(ctx context.Context, req voice.RefineRequest) (*voice.RefineResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req)
	n := len(r.calls)
	block := r.Block
	var res *voice.RefineResult
	var err error
	if len(r.Results) > 0 {
		res = r.Results[min(n, len(r.Results))-1]
	}
	if len(r.Errs) > 0 {
		err = r.Errs[min(n, len(r.Errs))-1]
	}
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &voice.RefineResult{}, nil
	}
	out := *res
	return &out, nil
}

// Calls returns a copy of the recorded requests.
func (r *Refiner) Calls() []voice.RefineRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]voice.RefineRequest, len(r.calls))
	copy(out, r.calls)
	return out
}

// Emitter records emitted speech in order.
type Emitter struct {
	mu sync.Mutex

	// Err, if set, is returned by every method.
	Err error

	// Events holds "audio:<mime>" and "text:<text>" entries in emission
	// order.
	Events []string
	Audio  []audio.Chunk
	Texts  []string
}

var _ voice.Emitter = (*Emitter)(nil)

// SpeechAudio implements [voice.Emitter].
func (e *Emitter) SpeechAudio(_ context.Context, c audio.Chunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Audio = append(e.Audio, c)
	e.Events = append(e.Events, "audio:"+c.MIMEType)
	return nil
}

// SpeechText implements [voice.Emitter].
func (e *Emitter) SpeechText(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Texts = append(e.Texts, text)
	e.Events = append(e.Events, "text:"+text)
	return nil
}
