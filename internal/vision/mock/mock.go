// Package mock provides a test double for the vision.Hinter interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/vision"
)

// InferCall records one Infer invocation.
type InferCall struct {
	Frame  vision.Frame
	Domain catalog.Domain
	Lang   string
}

// Hinter is a mock [vision.Hinter]. Successive calls return Hints in order;
// once exhausted the last entry repeats. With no Hints it returns "".
type Hinter struct {
	mu sync.Mutex

	Hints []string
	Err   error

	calls []InferCall
}

var _ vision.Hinter = (*Hinter)(nil)

// Infer implements [vision.Hinter].
func (h *Hinter) Infer(_ context.Context, f vision.Frame, domain catalog.Domain, lang string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, InferCall{Frame: f, Domain: domain, Lang: lang})
	if h.Err != nil {
		return "", h.Err
	}
	if len(h.Hints) == 0 {
		return "", nil
	}
	i := min(len(h.calls), len(h.Hints)) - 1
	return h.Hints[i], nil
}

// Calls returns a copy of the recorded invocations.
func (h *Hinter) Calls() []InferCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]InferCall, len(h.calls))
	copy(out, h.calls)
	return out
}
