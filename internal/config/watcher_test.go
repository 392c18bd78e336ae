package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/nutrivision/internal/config"
)

const baseYAML = `
server:
  log_level: info
providers:
  llm:
    name: openai
turn:
  disambiguation_margin: 0.08
`

const tunedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: openai
turn:
  disambiguation_margin: 0.15
  duplicate_window: 6s
`

// writeAt writes content to path and stamps it with a modification time
// offset seconds in the future, so reloads never depend on filesystem clock
// resolution.
func writeAt(t *testing.T, path, content string, offset int) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	stamp := time.Now().Add(time.Duration(offset) * time.Second)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// startWatcher writes baseYAML and starts a watcher whose poll interval is
// long enough that only explicit Reload calls observe edits.
func startWatcher(t *testing.T, onChange func(old, new *config.Config)) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nutrivision.yaml")
	writeAt(t, path, baseYAML, 0)
	w, err := config.NewWatcher(path, onChange, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := startWatcher(t, nil)

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level = %q, want info", got)
	}
	if got := w.Turn().DuplicateWindow; got != config.DefaultDuplicateWindow {
		t.Errorf("Turn().DuplicateWindow = %v, want default", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("NewWatcher on a missing file: want error")
	}
}

func TestWatcher_ReloadAppliesChange(t *testing.T) {
	t.Parallel()
	var diffs []config.ConfigDiff
	w, path := startWatcher(t, func(old, new *config.Config) {
		diffs = append(diffs, config.Diff(old, new))
	})

	writeAt(t, path, tunedYAML, 2)
	changed, err := w.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload() = %v, %v; want true, nil", changed, err)
	}

	if len(diffs) != 1 {
		t.Fatalf("onChange calls = %d, want 1", len(diffs))
	}
	d := diffs[0]
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if want := []string{"disambiguation_margin", "duplicate_window"}; !slices.Equal(d.TurnChanges, want) {
		t.Errorf("TurnChanges = %v, want %v", d.TurnChanges, want)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}

	turn := w.Turn()
	if turn.DisambiguationMargin != 0.15 || turn.DuplicateWindow != 6*time.Second {
		t.Errorf("Turn() after reload = %+v", turn)
	}
}

func TestWatcher_ReloadNoops(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		edit    func(t *testing.T, path string)
		wantErr bool
	}{
		{
			name: "untouched",
			edit: func(*testing.T, string) {},
		},
		{
			name: "touched without content change",
			edit: func(t *testing.T, path string) { writeAt(t, path, baseYAML, 2) },
		},
		{
			name:    "invalid edit",
			edit:    func(t *testing.T, path string) { writeAt(t, path, "server:\n  log_level: bananas\n", 2) },
			wantErr: true,
		},
		{
			name:    "unknown key",
			edit:    func(t *testing.T, path string) { writeAt(t, path, "turn:\n  margin: 0.2\n", 2) },
			wantErr: true,
		},
		{
			name:    "file removed",
			edit:    func(t *testing.T, path string) { _ = os.Remove(path) },
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			w, path := startWatcher(t, func(_, _ *config.Config) { calls++ })

			tt.edit(t, path)
			changed, err := w.Reload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reload() err = %v, wantErr %v", err, tt.wantErr)
			}
			if changed || calls != 0 {
				t.Errorf("changed = %v, onChange calls = %d; want no reload", changed, calls)
			}
			if got := w.Current().Server.LogLevel; got != config.LogInfo {
				t.Errorf("current log_level = %q, want previous config kept", got)
			}
		})
	}
}

func TestWatcher_PollingPicksUpEdit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nutrivision.yaml")
	writeAt(t, path, baseYAML, 0)

	reloaded := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, new *config.Config) {
		select {
		case reloaded <- new:
		default:
		}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeAt(t, path, tunedYAML, 2)
	select {
	case cfg := <-reloaded:
		if cfg.Server.LogLevel != config.LogDebug {
			t.Errorf("reloaded log_level = %q", cfg.Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not pick up the edit")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, _ := startWatcher(t, nil)
	w.Stop()
	w.Stop()
}
