package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file structure. Pointer
// fields distinguish "not set" from an explicit zero.
type FileConfig struct {
	HTTPAddr            string `toml:"http_addr"`
	StreamAddr          string `toml:"stream_addr"`
	CatalogPath         string `toml:"catalog_path"`
	MaxSessions         *int   `toml:"max_sessions"`
	ProviderConcurrency *int   `toml:"provider_concurrency"`
	IdleTimeoutSeconds  *int   `toml:"idle_timeout_seconds"`
	UsageDBPath         string `toml:"usage_db_path"`
}

// ConfigPath returns the path to the config file (~/.streamgate/config.toml).
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// LoadFile loads configuration from the TOML file.
// Returns an empty FileConfig if the file doesn't exist.
func LoadFile() (*FileConfig, error) {
	cfg := &FileConfig{}

	path := ConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureConfigFile creates a default config file with commented examples if none exists.
func EnsureConfigFile() error {
	path := ConfigPath()

	// If config already exists, do nothing
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	// Ensure directory exists
	if err := EnsureDataDir(); err != nil {
		return err
	}

	defaultConfig := `# Streamgate Configuration
# http_addr = ":8080"
# stream_addr = ":8081"

# Model catalog file. Leave unset to use the built-in catalog.
# catalog_path = "/etc/streamgate/catalog.yaml"

# Concurrent open sessions allowed per persistent connection.
# max_sessions = 8

# In-flight upstream streams allowed per provider (0 = unlimited).
# provider_concurrency = 0

# Seconds a session waits between upstream events before failing.
# idle_timeout_seconds = 120

# SQLite file for usage accounting.
# usage_db_path = "~/.streamgate/usage.db"

# Provider API keys are read from the environment, never from this file:
#   OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY, XAI_API_KEY, GROQ_API_KEY
`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}
