// Package app wires the NutriVision subsystems into a running HTTP server.
//
// New builds the catalog, frame hinting, answer synthesis, resolution
// pipeline and session handler from the config; Run serves them until the
// context ends; Shutdown stops the listener. Tests inject doubles through
// functional options (WithCatalog, WithMetrics, ...). When an option is not
// provided, New creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/catalog/off"
	"github.com/MrWong99/nutrivision/internal/config"
	"github.com/MrWong99/nutrivision/internal/health"
	"github.com/MrWong99/nutrivision/internal/observe"
	"github.com/MrWong99/nutrivision/internal/resilience"
	"github.com/MrWong99/nutrivision/internal/resolve"
	"github.com/MrWong99/nutrivision/internal/session"
	"github.com/MrWong99/nutrivision/internal/vision"
	"github.com/MrWong99/nutrivision/internal/voice"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
	"github.com/MrWong99/nutrivision/pkg/provider/llm"
)

const (
	// LivePath is the websocket endpoint of the live session protocol.
	LivePath = "/ws/live"

	// maxMessageBytes bounds one inbound websocket message. Camera frames
	// arrive base64-encoded inside JSON.
	maxMessageBytes = 8 << 20

	shutdownTimeout = 10 * time.Second
)

// Providers holds the generative backends built from config. Nil means the
// stage is not configured. Populated by main via the config registry.
type Providers struct {
	Vision     vision.Hinter
	VisionName string

	// Live is the primary refinement backend; LLM is its text-only
	// fallback, or the only refiner when Live is nil.
	Live     live.Provider
	LiveName string
	LLM      llm.Provider
	LLMName  string
}

// App owns the subsystems and the HTTP server.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	turn      func() config.TurnConfig

	backend  catalog.Catalog
	catalog  *catalog.Cached
	hints    *vision.Service
	refiner  *voice.FallbackRefiner
	speaker  *voice.Synthesizer
	pipeline *resolve.Pipeline
	sessions *session.Handler
	health   *health.Handler
	handler  http.Handler

	// Warn-once notices for missing providers, re-armed on config reload.
	hintNotice   observe.Notice
	refineNotice observe.Notice

	mu       sync.Mutex
	server   *http.Server
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithCatalog replaces the Open Food Facts client. The cache and circuit
// breaker are still layered on top.
func WithCatalog(c catalog.Catalog) Option {
	return func(a *App) { a.backend = c }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTurnPolicy supplies the turn thresholds read at each session start,
// typically [config.Watcher.Turn]. Defaults to the static cfg.Turn.
func WithTurnPolicy(fn func() config.TurnConfig) Option {
	return func(a *App) { a.turn = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App. providers may be nil, in which case no generative
// backend is used and every answer is the deterministic draft.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.turn == nil {
		static := cfg.Turn
		a.turn = func() config.TurnConfig { return static }
	}

	// ── 1. Catalog ───────────────────────────────────────────────────────
	a.initCatalog()

	// ── 2. Frame hints ───────────────────────────────────────────────────
	a.hints = vision.NewService(providers.Vision, providers.VisionName,
		vision.WithMetrics(a.metrics),
		vision.WithNotice(&a.hintNotice),
	)

	// ── 3. Answer synthesis ──────────────────────────────────────────────
	a.initSpeaker()

	// ── 4. Resolution pipeline ───────────────────────────────────────────
	turn := a.turn()
	a.pipeline = resolve.New(a.catalog,
		resolve.WithFrameHinter(a.hints),
		resolve.WithLocale(catalog.Locale{
			Country:  cfg.Catalog.LocaleCountry,
			Language: cfg.Catalog.LocaleLanguage,
		}),
		resolve.WithMargin(turn.DisambiguationMargin),
		resolve.WithMaxResults(cfg.Catalog.MaxResults),
		resolve.WithMaxQueryTokens(turn.MaxQueryTokens),
		resolve.WithMetrics(a.metrics),
	)

	// ── 5. Sessions ──────────────────────────────────────────────────────
	a.sessions = session.NewHandler(a.pipeline, a.speaker,
		session.WithFrameHinter(a.hints),
		session.WithPolicy(a.policy),
		session.WithMetrics(a.metrics),
	)

	// ── 6. Probes and routes ─────────────────────────────────────────────
	a.initHealth()
	a.handler = observe.Middleware(a.metrics)(a.routes())

	observe.Logger(ctx).Info("application initialised",
		"vision", a.hints.Configured(),
		"refiner", a.speaker.Configured(),
		"locale", cfg.Catalog.LocaleCountry+"/"+cfg.Catalog.LocaleLanguage,
	)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCatalog() {
	if a.backend == nil {
		opts := []off.Option{off.WithTimeout(a.cfg.Catalog.RequestTimeout)}
		if u := a.cfg.Catalog.FoodBaseURL; u != "" {
			opts = append(opts, off.WithFoodBaseURL(u))
		}
		if u := a.cfg.Catalog.BeautyBaseURL; u != "" {
			opts = append(opts, off.WithBeautyBaseURL(u))
		}
		a.backend = off.New(opts...)
	}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:          "catalog",
		OnStateChange: logBreakerTransition,
	})
	a.catalog = catalog.NewCached(a.backend,
		catalog.WithTTL(a.cfg.Catalog.CacheTTL),
		catalog.WithCallTimeout(a.cfg.Catalog.RequestTimeout),
		catalog.WithBreaker(breaker),
	)
}

// initSpeaker chains the live refiner in front of the LLM refiner. With
// neither configured the synthesizer speaks the draft.
func (a *App) initSpeaker() {
	p := a.providers
	var primary voice.Refiner
	var primaryName string
	switch {
	case p.Live != nil:
		primary = voice.NewLiveRefiner(p.Live, a.cfg.Providers.Live.OptionString("voice"))
		primaryName = nameOr(p.LiveName, "live")
	case p.LLM != nil:
		primary = voice.NewLLMRefiner(p.LLM)
		primaryName = nameOr(p.LLMName, "llm")
	}

	var refiner voice.Refiner
	if primary != nil {
		a.refiner = voice.NewFallbackRefiner(primary, primaryName, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{OnStateChange: logBreakerTransition},
		})
		if p.Live != nil && p.LLM != nil {
			a.refiner.AddFallback(nameOr(p.LLMName, "llm"), voice.NewLLMRefiner(p.LLM))
		}
		refiner = a.refiner
	}

	a.speaker = voice.NewSynthesizer(refiner, primaryName,
		voice.WithRefineTimeout(a.cfg.Voice.RefineTimeout),
		voice.WithOutputAudio(a.cfg.Voice.AudioEnabled()),
		voice.WithMaxAudioChunks(a.cfg.Voice.MaxAudioChunks),
		voice.WithMetrics(a.metrics),
		voice.WithNotice(&a.refineNotice),
	)
}

func (a *App) initHealth() {
	checkers := []health.Checker{
		health.Breakers("catalog", map[string]*resilience.CircuitBreaker{"catalog": a.catalog.Breaker()}),
		health.Configured("refiner", a.speaker.Configured),
	}
	if a.refiner != nil {
		checkers = append(checkers, health.Breakers("refiner_breakers", a.refiner.Breakers()))
	}
	a.health = health.New(checkers...)
}

func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+LivePath, a.serveLive)
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// policy converts the current turn config for a new session.
func (a *App) policy() session.Policy {
	t := a.turn()
	return session.Policy{
		Margin:          t.DisambiguationMargin,
		DuplicateWindow: t.DuplicateWindow,
		MaxQueryTokens:  t.MaxQueryTokens,
	}
}

// serveLive upgrades the request and runs one session on it.
func (a *App) serveLive(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: a.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Warn("websocket upgrade rejected", "err", err)
		return
	}
	c.SetReadLimit(maxMessageBytes)
	defer c.CloseNow()

	if err := a.sessions.Serve(r.Context(), session.NewWSConn(c)); err != nil {
		observe.Logger(r.Context()).Warn("live session ended with transport error", "err", err)
		return
	}
	_ = c.Close(websocket.StatusNormalClosure, "")
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// ConfigReloaded re-arms the missing-provider warnings so an operator who
// edits the config sees them again on the next turn.
func (a *App) ConfigReloaded() {
	a.hintNotice.Reset()
	a.refineNotice.Reset()
}

// Handler returns the instrumented HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Run listens on cfg.Server.ListenAddr and serves until ctx is cancelled or
// the listener fails. Live sessions inherit ctx and end with it.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It takes ownership of ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops accepting connections and waits for in-flight HTTP
// requests. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv == nil {
			return
		}
		slog.Info("shutting down http server")
		if e := srv.Shutdown(ctx); e != nil {
			err = fmt.Errorf("app: shutdown: %w", e)
		}
	})
	return err
}

func logBreakerTransition(name string, from, to resilience.State) {
	slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
