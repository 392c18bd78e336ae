package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TurnChanges names the turn.* keys that differ. They apply to sessions
	// started after the reload.
	TurnChanges []string

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// HasChanges reports whether d carries any difference.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || len(d.TurnChanges) > 0 || len(d.RestartRequired) > 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{TurnChanges: DiffTurnPolicy(old.Turn, new.Turn)}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) ||
		!equalTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Catalog != new.Catalog {
		d.RestartRequired = append(d.RestartRequired, "catalog")
	}
	if !equalProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Voice.AudioEnabled() != new.Voice.AudioEnabled() ||
		old.Voice.RefineTimeout != new.Voice.RefineTimeout ||
		old.Voice.MaxAudioChunks != new.Voice.MaxAudioChunks {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	return d
}

// DiffTurnPolicy returns the YAML keys of the turn section that differ
// between old and new, in declaration order.
func DiffTurnPolicy(old, new TurnConfig) []string {
	var changed []string
	if old.DisambiguationMargin != new.DisambiguationMargin {
		changed = append(changed, "disambiguation_margin")
	}
	if old.DuplicateWindow != new.DuplicateWindow {
		changed = append(changed, "duplicate_window")
	}
	if old.MaxQueryTokens != new.MaxQueryTokens {
		changed = append(changed, "max_query_tokens")
	}
	return changed
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalProviders(a, b ProvidersConfig) bool {
	return equalEntry(a.Vision, b.Vision) && equalEntry(a.Live, b.Live) && equalEntry(a.LLM, b.LLM)
}

func equalEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k := range a.Options {
		if a.OptionString(k) != b.OptionString(k) {
			return false
		}
	}
	return true
}
