package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/dshills/pixelstorm/internal/engine/history"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "pixelstorm.toml", `
[history]
memory_limit = 1048576
max_entries = 50
eviction = "abandoned-first"

[autosave]
enabled = true
in_memory = true
interval = "5s"

[log]
level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.History.MemoryLimit != 1<<20 || cfg.History.MaxEntries != 50 {
		t.Errorf("history = %+v", cfg.History)
	}
	if p, _ := cfg.History.Policy(); p != history.EvictAbandonedFirst {
		t.Errorf("policy = %v, want abandoned-first", p)
	}
	if !cfg.Autosave.Enabled || cfg.Autosave.Interval.Std() != 5*time.Second {
		t.Errorf("autosave = %+v", cfg.Autosave)
	}
	// Untouched sections keep their defaults.
	if cfg.Preview != Default().Preview {
		t.Errorf("preview = %+v, want defaults", cfg.Preview)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "pixelstorm.yaml", `
history:
  max_entries: 7
limits:
  max_image_bytes: 4096
preview:
  size: 64
  interval: 1s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.History.MaxEntries != 7 {
		t.Errorf("history.max_entries = %d, want 7", cfg.History.MaxEntries)
	}
	if cfg.Limits.MaxImageBytes != 4096 {
		t.Errorf("limits.max_image_bytes = %d, want 4096", cfg.Limits.MaxImageBytes)
	}
	if cfg.Preview.Size != 64 || cfg.Preview.Interval.Std() != time.Second {
		t.Errorf("preview = %+v", cfg.Preview)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "pixelstorm.toml", "[history]\nmax_entries = 50\n")
	t.Setenv("PIXELSTORM_HISTORY_MAX_ENTRIES", "9")
	t.Setenv("PIXELSTORM_LOG_LEVEL", "warn")
	t.Setenv("PIXELSTORM_DEBUG", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.History.MaxEntries != 9 {
		t.Errorf("history.max_entries = %d, want 9", cfg.History.MaxEntries)
	}
	if cfg.Log.Level != "warn" || !cfg.Log.Development {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.History != Default().History {
		t.Errorf("history = %+v, want defaults", cfg.History)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{"missing file", "", "", ErrFileNotFound},
		{"unsupported extension", "pixelstorm.ini", "x=1", ErrUnsupportedFormat},
		{"unknown setting", "pixelstorm.toml", "[history]\nundo_depth = 3\n", ErrUnknownSetting},
		{"unknown section", "pixelstorm.yaml", "render:\n  fps: 3\n", ErrUnknownSetting},
		{"invalid value", "pixelstorm.toml", "[history]\nmax_entries = -1\n", ErrValidationFailed},
		{"bad duration", "pixelstorm.toml", "[autosave]\ninterval = \"soon\"\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.toml")
			if tt.file != "" {
				path = writeFile(t, tt.file, tt.content)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Load error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse(FormatTOML, []byte("[history]\nmax_entries = = 3\n"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Parse error = %v, want *ParseError", err)
	}
	if pe.Line != 2 {
		t.Errorf("ParseError.Line = %d, want 2", pe.Line)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.History.MemoryLimit = -1
	cfg.History.Eviction = "newest"
	cfg.Autosave.Enabled = true
	cfg.Preview.Size = 0
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	errs := multierr.Errors(err)
	if len(errs) != 5 {
		t.Fatalf("Validate returned %d errors, want 5: %v", len(errs), err)
	}
	paths := map[string]bool{}
	for _, e := range errs {
		var ve *ValidationError
		if !errors.As(e, &ve) {
			t.Fatalf("error %v is not a *ValidationError", e)
		}
		paths[ve.Path] = true
	}
	for _, p := range []string{"history.memory_limit", "history.eviction", "autosave.dir", "preview.size", "log.level"} {
		if !paths[p] {
			t.Errorf("missing validation error for %s", p)
		}
	}
}

func TestEnvLoader_envToPath(t *testing.T) {
	loader := NewEnvLoader(EnvPrefix)

	tests := []struct {
		env      string
		expected string
	}{
		{"PIXELSTORM_HISTORY_MAX_ENTRIES", "history.max_entries"},
		{"PIXELSTORM_LOG_LEVEL", "log.level"},
		{"PIXELSTORM_AUTOSAVE_IN_MEMORY", "autosave.in_memory"},
		{"PIXELSTORM_CONFIG", ""},
	}
	for _, tt := range tests {
		if got := loader.envToPath(tt.env); got != tt.expected {
			t.Errorf("envToPath(%q) = %q, want %q", tt.env, got, tt.expected)
		}
	}
}

func TestEnvLoader_Load(t *testing.T) {
	loader := NewEnvLoader(EnvPrefix)
	loader.environ = func() []string {
		return []string{
			"HOME=/root",
			"PIXELSTORM_HISTORY_MEMORY_LIMIT=1024",
			"PIXELSTORM_AUTOSAVE_ENABLED=yes",
			"PIXELSTORM_DEBUG=off",
			"PIXELSTORM_LOG_LEVEL=",
		}
	}
	tree := loader.Load()

	hist, _ := tree["history"].(map[string]any)
	if hist["memory_limit"] != int64(1024) {
		t.Errorf("history.memory_limit = %v (%T), want 1024", hist["memory_limit"], hist["memory_limit"])
	}
	auto, _ := tree["autosave"].(map[string]any)
	if auto["enabled"] != true {
		t.Errorf("autosave.enabled = %v, want true", auto["enabled"])
	}
	log, _ := tree["log"].(map[string]any)
	if log["development"] != false {
		t.Errorf("log.development = %v, want false", log["development"])
	}
	if v, ok := log["level"]; !ok || v != "" {
		t.Errorf("log.level = %v, want empty string", v)
	}
	if _, ok := tree["home"]; ok {
		t.Error("unprefixed variable was loaded")
	}
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"history": map[string]any{"max_entries": 1, "eviction": "oldest"},
		"log":     map[string]any{"level": "info"},
	}
	src := map[string]any{
		"history": map[string]any{"max_entries": 2},
		"log":     "flat",
	}
	got := DeepMerge(dst, src)
	hist := got["history"].(map[string]any)
	if hist["max_entries"] != 2 || hist["eviction"] != "oldest" {
		t.Errorf("history = %v", hist)
	}
	if got["log"] != "flat" {
		t.Errorf("log = %v, want replaced", got["log"])
	}
}

func TestLogLogger(t *testing.T) {
	l, err := Log{Level: "debug", Development: true}.Logger()
	if err != nil {
		t.Fatalf("Logger failed: %v", err)
	}
	if !l.Core().Enabled(-1) {
		t.Error("debug level not enabled")
	}
	if _, err := (Log{Level: "chatty"}).Logger(); err == nil {
		t.Error("Logger accepted an unknown level")
	}
}
