package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration loaded from environment and file.
// Priority: Env vars → config.toml → defaults
type Config struct {
	// HTTPAddr is the address the HTTP transport binds to (e.g., ":8080")
	HTTPAddr string

	// StreamAddr is the address the persistent-connection transport binds
	// to. Empty disables the stream transport.
	StreamAddr string

	// CatalogPath points at a model catalog file. Empty loads the embedded
	// default catalog.
	CatalogPath string

	// MaxSessions caps concurrent open sessions per persistent connection.
	MaxSessions int

	// ProviderConcurrency caps in-flight upstream streams per provider,
	// shared across all connections. Zero disables the limit.
	ProviderConcurrency int

	// IdleTimeoutSeconds is how long a session waits between upstream
	// events before failing.
	IdleTimeoutSeconds int

	// UsageDBPath is the SQLite file for usage accounting records.
	UsageDBPath string

	// Keys holds per-provider API keys. Providers without a key are not
	// registered at startup.
	Keys ProviderKeys
}

// ProviderKeys are the upstream credentials, read from environment only so
// secrets never live in the config file.
type ProviderKeys struct {
	OpenAI    string
	Anthropic string
	Google    string
	XAI       string
	Groq      string
}

// IdleTimeout returns the session idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// Load reads configuration from file and environment variables.
// Environment variables override file config values.
func Load() *Config {
	fileConfig, _ := LoadFile() // Ignore error, use defaults

	return &Config{
		HTTPAddr:            getEnvOrFile("HTTP_ADDR", fileConfig.HTTPAddr, ":8080"),
		StreamAddr:          getEnvOrFile("STREAM_ADDR", fileConfig.StreamAddr, ":8081"),
		CatalogPath:         getEnvOrFile("CATALOG_PATH", fileConfig.CatalogPath, ""),
		MaxSessions:         getEnvIntOrFile("MAX_SESSIONS", fileConfig.MaxSessions, 8),
		ProviderConcurrency: getEnvIntOrFile("PROVIDER_CONCURRENCY", fileConfig.ProviderConcurrency, 0),
		IdleTimeoutSeconds:  getEnvIntOrFile("IDLE_TIMEOUT_SECONDS", fileConfig.IdleTimeoutSeconds, 120),
		UsageDBPath:         getEnvOrFile("USAGE_DB_PATH", fileConfig.UsageDBPath, DBPath()),
		Keys: ProviderKeys{
			OpenAI:    os.Getenv("OPENAI_API_KEY"),
			Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
			Google:    getEnvFirst("GEMINI_API_KEY", "GOOGLE_API_KEY"),
			XAI:       os.Getenv("XAI_API_KEY"),
			Groq:      os.Getenv("GROQ_API_KEY"),
		},
	}
}

// getEnvOrFile returns env value, file value, or default (in priority order)
func getEnvOrFile(key, fileValue, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

// getEnvIntOrFile returns env int, file int, or default (in priority order)
func getEnvIntOrFile(key string, fileValue *int, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

// getEnvFirst returns the first non-empty value among the given env keys.
func getEnvFirst(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}
