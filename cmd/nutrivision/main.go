// Command nutrivision serves the live product-verdict websocket API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/nutrivision/internal/app"
	"github.com/MrWong99/nutrivision/internal/config"
	"github.com/MrWong99/nutrivision/internal/observe"
	"github.com/MrWong99/nutrivision/internal/vision"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
	livegemini "github.com/MrWong99/nutrivision/pkg/provider/live/gemini"
	"github.com/MrWong99/nutrivision/pkg/provider/llm"
	"github.com/MrWong99/nutrivision/pkg/provider/llm/anyllm"
	"github.com/MrWong99/nutrivision/pkg/provider/llm/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// The watcher performs the initial load and keeps the turn policy fresh.
	level := new(slog.LevelVar)
	var running atomic.Pointer[app.App]
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		if d := config.Diff(old, new); d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if a := running.Load(); a != nil {
			a.ConfigReloaded()
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nutrivision: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nutrivision: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("nutrivision starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithTurnPolicy(watcher.Turn))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	running.Store(application)
	go reloadOnHangup(ctx, watcher)

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// reloadOnHangup re-reads the config file on SIGHUP without waiting for the
// next poll.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if _, err := w.Reload(); err != nil {
				slog.Warn("SIGHUP reload rejected", "err", err)
			}
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends share the any-llm-go construction path: optional API key
// and optional base URL.
var anyllmBackends = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama"}

// registerBuiltinProviders wires every built-in factory into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", newOpenAI)
	for _, name := range anyllmBackends {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Live ──────────────────────────────────────────────────────────────────
	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		return livegemini.New(entry.APIKey,
			livegemini.WithModel(entry.Model),
			livegemini.WithBaseURL(entry.BaseURL),
		)
	})

	// ── Vision ────────────────────────────────────────────────────────────────
	reg.RegisterVision("gemini", func(entry config.ProviderEntry) (vision.Hinter, error) {
		return vision.NewGemini(ctx, vision.GeminiConfig{
			APIKey:    entry.APIKey,
			Model:     entry.Model,
			BaseURL:   entry.BaseURL,
			UseVertex: entry.OptionBool("use_vertex"),
			Project:   entry.OptionString("project"),
			Location:  entry.OptionString("location"),
		})
	})
	reg.RegisterVision("openai", func(entry config.ProviderEntry) (vision.Hinter, error) {
		p, err := newOpenAI(entry)
		if err != nil {
			return nil, err
		}
		return vision.NewLLM(p)
	})
}

func newOpenAI(entry config.ProviderEntry) (llm.Provider, error) {
	var opts []openai.Option
	if entry.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(entry.BaseURL))
	}
	if org := entry.OptionString("organization"); org != "" {
		opts = append(opts, openai.WithOrganization(org))
	}
	return openai.New(entry.APIKey, entry.Model, opts...)
}

// buildProviders instantiates the providers named in cfg. An empty name
// leaves the slot nil; an unregistered name is logged and skipped.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.Vision, err = create(reg.CreateVision, "vision", cfg.Providers.Vision); err != nil {
		return nil, err
	}
	if ps.Vision != nil {
		ps.VisionName = cfg.Providers.Vision.Name
	}
	if ps.Live, err = create(reg.CreateLive, "live", cfg.Providers.Live); err != nil {
		return nil, err
	}
	if ps.Live != nil {
		ps.LiveName = cfg.Providers.Live.Name
	}
	if ps.LLM, err = create(reg.CreateLLM, "llm", cfg.Providers.LLM); err != nil {
		return nil, err
	}
	if ps.LLM != nil {
		ps.LLMName = cfg.Providers.LLM.Name
	}
	return ps, nil
}

func create[T any](fn func(config.ProviderEntry) (T, error), kind string, entry config.ProviderEntry) (T, error) {
	var zero T
	if entry.Name == "" {
		return zero, nil
	}
	p, err := fn(entry)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	return p, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
