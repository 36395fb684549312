package config

import (
	"os"
	"path/filepath"
)

// Environment variables read by the loader.
const (
	EnvRoot     = "RUNMIRROR_ROOT"
	EnvConfig   = "RUNMIRROR_CONFIG"
	EnvCache    = "RUNMIRROR_CACHE"
	EnvLogLevel = "RUNMIRROR_LOG_LEVEL"
)

// DefaultPath returns the default configuration file path.
//
// Returns: ~/.config/runmirror/config.yaml.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}

	return filepath.Join(homeDir, ".config", "runmirror", "config.yaml")
}
