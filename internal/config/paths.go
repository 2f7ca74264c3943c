package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the path to the Streamgate data directory.
// - Windows: %APPDATA%\streamgate
// - Other OS: ~/.streamgate
func DataDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "streamgate")
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".streamgate"
	}
	return filepath.Join(home, ".streamgate")
}

// DBPath returns the path to the usage accounting database file.
func DBPath() string {
	return filepath.Join(DataDir(), "usage.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0700)
}
