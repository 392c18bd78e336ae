// Package mock provides a test double for the live.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nutrivision/pkg/provider/live"
)

// Provider is a mock [live.Provider].
//
// Responses are returned in order, one per call; when exhausted the last one
// repeats. Errs works the same way and takes precedence for a call when its
// entry is non-nil.
type Provider struct {
	mu sync.Mutex

	Responses []*live.Response
	Errs      []error

	// Block makes Generate wait for ctx to be done.
	Block bool

	calls []live.Request
}

var _ live.Provider = (*Provider)(nil)

// Generate implements [live.Provider].
func (p *Provider) Generate(ctx context.Context, req live.Request) (*live.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	block := p.Block
	var resp *live.Response
	var err error
	if len(p.Errs) > 0 {
		err = p.Errs[min(n, len(p.Errs))-1]
	}
	if len(p.Responses) > 0 {
		resp = p.Responses[min(n, len(p.Responses))-1]
	}
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &live.Response{}, nil
	}
	out := *resp
	return &out, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []live.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]live.Request, len(p.calls))
	copy(out, p.calls)
	return out
}
