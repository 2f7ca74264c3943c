package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// pointHome redirects the data directory to a temp dir for the test.
func pointHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("APPDATA", home)
	return home
}

func TestLoadDefaults(t *testing.T) {
	pointHome(t)
	for _, key := range []string{"HTTP_ADDR", "STREAM_ADDR", "MAX_SESSIONS", "IDLE_TIMEOUT_SECONDS", "USAGE_DB_PATH", "OPENAI_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.StreamAddr != ":8081" {
		t.Errorf("StreamAddr = %q", cfg.StreamAddr)
	}
	if cfg.MaxSessions != 8 {
		t.Errorf("MaxSessions = %d", cfg.MaxSessions)
	}
	if cfg.IdleTimeout() != 120*time.Second {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout())
	}
	if cfg.UsageDBPath != DBPath() {
		t.Errorf("UsageDBPath = %q, want %q", cfg.UsageDBPath, DBPath())
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := pointHome(t)

	dir := filepath.Join(home, ".streamgate")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	fileToml := `
http_addr = ":9000"
max_sessions = 4
idle_timeout_seconds = 30
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(fileToml), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HTTP_ADDR", ":7070")

	cfg := Load()

	if cfg.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want env override", cfg.HTTPAddr)
	}
	if cfg.MaxSessions != 4 {
		t.Errorf("MaxSessions = %d, want file value", cfg.MaxSessions)
	}
	if cfg.IdleTimeoutSeconds != 30 {
		t.Errorf("IdleTimeoutSeconds = %d, want file value", cfg.IdleTimeoutSeconds)
	}
}

func TestProviderKeysFromEnv(t *testing.T) {
	pointHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "goog-fallback")

	cfg := Load()

	if cfg.Keys.OpenAI != "sk-test" {
		t.Errorf("OpenAI key = %q", cfg.Keys.OpenAI)
	}
	if cfg.Keys.Google != "goog-fallback" {
		t.Errorf("Google key = %q, want GOOGLE_API_KEY fallback", cfg.Keys.Google)
	}
}

func TestEnsureConfigFile(t *testing.T) {
	pointHome(t)

	if err := EnsureConfigFile(); err != nil {
		t.Fatalf("EnsureConfigFile: %v", err)
	}
	if _, err := os.Stat(ConfigPath()); err != nil {
		t.Fatalf("config file missing: %v", err)
	}

	// The generated file is all comments: loading it yields zero values.
	fc, err := LoadFile()
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if fc.HTTPAddr != "" || fc.MaxSessions != nil {
		t.Errorf("generated config sets values: %+v", fc)
	}

	// Idempotent.
	if err := EnsureConfigFile(); err != nil {
		t.Fatalf("second EnsureConfigFile: %v", err)
	}
}
