// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the NutriVision server.
package config

import (
	"fmt"
	"strconv"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultLocaleCountry   = "de"
	DefaultLocaleLanguage  = "de"
	DefaultRequestTimeout  = 5 * time.Second
	DefaultCacheTTL        = 10 * time.Minute
	DefaultMaxResults      = 5
	DefaultRefineTimeout   = 8 * time.Second
	DefaultMaxAudioChunks  = 4
	DefaultMargin          = 0.08
	DefaultDuplicateWindow = 4 * time.Second
	DefaultMaxQueryTokens  = 6
)

// Config is the root configuration, usually loaded with [Load] or
// [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
	Turn      TurnConfig      `yaml:"turn"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists the host patterns (path.Match syntax) accepted
	// for browser websocket upgrades. "*" accepts every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds PEM certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// CatalogConfig configures the product catalog client and its cache.
type CatalogConfig struct {
	LocaleCountry  string        `yaml:"locale_country"`
	LocaleLanguage string        `yaml:"locale_language"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`

	// FoodBaseURL and BeautyBaseURL override the public catalog endpoints.
	FoodBaseURL   string `yaml:"food_base_url"`
	BeautyBaseURL string `yaml:"beauty_base_url"`

	// MaxResults bounds fuzzy search results.
	MaxResults int `yaml:"max_results"`
}

// ProvidersConfig selects the generative backends. Each entry is resolved
// through the [Registry]; an empty name disables the stage.
type ProvidersConfig struct {
	// Vision reads product names and barcodes off camera frames.
	Vision ProviderEntry `yaml:"vision"`

	// Live is the primary, audio-capable refinement backend.
	Live ProviderEntry `yaml:"live"`

	// LLM is the text-only refinement fallback.
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Options holds provider-specific values such as "use_vertex" or
	// "voice".
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] rendered as a string, or "".
func (e ProviderEntry) OptionString(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// OptionBool returns Options[key] as a bool. Strings such as "true" are
// parsed; anything else is false.
func (e ProviderEntry) OptionBool(key string) bool {
	switch v := e.Options[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// VoiceConfig tunes spoken answer synthesis.
type VoiceConfig struct {
	// OutputAudio requests speech audio from the live backend. Defaults to
	// true when omitted.
	OutputAudio *bool `yaml:"output_audio"`

	RefineTimeout  time.Duration `yaml:"refine_timeout"`
	MaxAudioChunks int           `yaml:"max_audio_chunks"`
}

// AudioEnabled reports the effective output_audio setting.
func (v VoiceConfig) AudioEnabled() bool {
	return v.OutputAudio == nil || *v.OutputAudio
}

// TurnConfig holds the hot-reloadable thresholds of the turn state machine.
type TurnConfig struct {
	DisambiguationMargin float64       `yaml:"disambiguation_margin"`
	DuplicateWindow      time.Duration `yaml:"duplicate_window"`
	MaxQueryTokens       int           `yaml:"max_query_tokens"`
}

// Default returns a configuration with every default applied and no
// generative providers.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	c := &cfg.Catalog
	if c.LocaleCountry == "" {
		c.LocaleCountry = DefaultLocaleCountry
	}
	if c.LocaleLanguage == "" {
		c.LocaleLanguage = DefaultLocaleLanguage
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}

	if cfg.Voice.RefineTimeout == 0 {
		cfg.Voice.RefineTimeout = DefaultRefineTimeout
	}
	if cfg.Voice.MaxAudioChunks == 0 {
		cfg.Voice.MaxAudioChunks = DefaultMaxAudioChunks
	}

	t := &cfg.Turn
	if t.DisambiguationMargin == 0 {
		t.DisambiguationMargin = DefaultMargin
	}
	if t.DuplicateWindow == 0 {
		t.DuplicateWindow = DefaultDuplicateWindow
	}
	if t.MaxQueryTokens == 0 {
		t.MaxQueryTokens = DefaultMaxQueryTokens
	}
}
