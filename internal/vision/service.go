package vision

import (
	"context"
	"time"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/observe"
)

// DefaultHintTimeout bounds a single frame-hint call.
const DefaultHintTimeout = 6 * time.Second

// Service is the frame-hint entry point used by the session handler and the
// resolution pipeline. It never fails: provider errors, timeouts and a
// missing provider all yield an empty hint.
type Service struct {
	hinter   Hinter
	provider string
	timeout  time.Duration
	metrics  *observe.Metrics
	notice   *observe.Notice
}

// Option configures a [Service].
type Option func(*Service)

// WithTimeout overrides [DefaultHintTimeout].
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records call latency and errors. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotice sets the warn-once notice used when no hinter is configured.
func WithNotice(n *observe.Notice) Option {
	return func(s *Service) { s.notice = n }
}

// NewService wraps h. A nil h is allowed and makes every call return "".
// provider labels metrics, e.g. "gemini".
func NewService(h Hinter, provider string, opts ...Option) *Service {
	s := &Service{
		hinter:   h,
		provider: provider,
		timeout:  DefaultHintTimeout,
		notice:   &observe.Notice{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Configured reports whether a hinter backs the service.
func (s *Service) Configured() bool { return s != nil && s.hinter != nil }

// Hint returns a sanitized query or barcode read from f, or "".
func (s *Service) Hint(ctx context.Context, f Frame, domain catalog.Domain, lang string) string {
	if !f.IsImage() {
		return ""
	}
	if !s.Configured() {
		if s != nil {
			s.notice.Warn(ctx, "vision: frame hints disabled, no provider configured")
		}
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	hint, err := s.hinter.Infer(ctx, f, domain, lang)
	if err = s.metrics.ObserveCall(ctx, s.metrics.FrameHintDuration, s.provider, "vision", start, err); err != nil {
		observe.Logger(ctx).Debug("frame hint inference failed", "provider", s.provider, "err", err)
		return ""
	}
	return hint
}
