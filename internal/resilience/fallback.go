package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the breaker created for each member of a
// [FallbackGroup]. The Name field is overwritten with the member name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallback implementations of
// the same collaborator. Calls go to the first member whose breaker admits
// them; on failure the next member is tried in registration order.
//
// Members must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as its first member.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member tried after every previously added one.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.members = append(fg.members, member[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len reports the number of members.
func (fg *FallbackGroup[T]) Len() int { return len(fg.members) }

// Breakers returns the member breakers keyed by member name. Readiness checks
// use it to report which upstreams are currently tripped.
func (fg *FallbackGroup[T]) Breakers() map[string]*CircuitBreaker {
	out := make(map[string]*CircuitBreaker, len(fg.members))
	for _, m := range fg.members {
		out[m.name] = m.breaker
	}
	return out
}

// Execute runs fn against each member in order until one succeeds. A
// cancelled ctx stops the walk immediately.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult is the value-returning form of [FallbackGroup.Execute].
// It is a function rather than a method because methods cannot declare type
// parameters.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.members {
		m := &fg.members[i]
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := Do(ctx, m.breaker, func(ctx context.Context) (R, error) {
			return fn(ctx, m.value)
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		switch {
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("skipping provider (circuit open)", "provider", m.name)
		case errors.Is(err, context.Canceled):
			return zero, err
		default:
			slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no providers registered")
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
