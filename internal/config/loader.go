package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Unknown
// names only produce a warning since a custom factory may be registered.
var ValidProviderNames = map[string][]string{
	"vision": {"gemini", "openai"},
	"live":   {"gemini-live"},
	"llm":    {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, rejects unknown keys, applies defaults
// and validates the result. An empty document yields [Default].
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	c := cfg.Catalog
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("catalog.request_timeout %s must not be negative", c.RequestTimeout))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("catalog.cache_ttl %s must not be negative", c.CacheTTL))
	}
	if c.MaxResults < 1 || c.MaxResults > 50 {
		errs = append(errs, fmt.Errorf("catalog.max_results %d is out of range [1, 50]", c.MaxResults))
	}

	validateProviderName("vision", cfg.Providers.Vision.Name)
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if cfg.Providers.Live.Name == "" && cfg.Providers.LLM.Name == "" {
		slog.Warn("no live or llm provider configured; spoken answers use deterministic text only")
	}
	if cfg.Providers.Vision.Name == "" {
		slog.Warn("no vision provider configured; camera frames will not produce search hints")
	}

	if cfg.Voice.RefineTimeout < 0 {
		errs = append(errs, fmt.Errorf("voice.refine_timeout %s must not be negative", cfg.Voice.RefineTimeout))
	}
	if cfg.Voice.MaxAudioChunks < 0 {
		errs = append(errs, fmt.Errorf("voice.max_audio_chunks %d must not be negative", cfg.Voice.MaxAudioChunks))
	}

	errs = append(errs, validateTurn(cfg.Turn)...)
	return errors.Join(errs...)
}

func validateTurn(t TurnConfig) []error {
	var errs []error
	if t.DisambiguationMargin < 0 || t.DisambiguationMargin >= 1 {
		errs = append(errs, fmt.Errorf("turn.disambiguation_margin %.3f is out of range [0, 1)", t.DisambiguationMargin))
	}
	if t.DuplicateWindow < 0 {
		errs = append(errs, fmt.Errorf("turn.duplicate_window %s must not be negative", t.DuplicateWindow))
	}
	if t.MaxQueryTokens < 0 {
		errs = append(errs, fmt.Errorf("turn.max_query_tokens %d must not be negative", t.MaxQueryTokens))
	}
	return errs
}

// validateProviderName warns when name is set but not a known provider.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a custom provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
