package main

import (
	"os"
	"path/filepath"
)

// Home returns the weave home directory.
// It defaults to ~/.weave but can be overridden with the WEAVE_HOME
// environment variable.
func Home() string {
	if v := os.Getenv("WEAVE_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".weave")
}

// DefaultDBPath returns the default registry database path (~/.weave/weave.db).
func DefaultDBPath() string {
	return filepath.Join(Home(), "weave.db")
}

// EnsureHome creates the weave home directory if it doesn't exist.
func EnsureHome() error {
	return os.MkdirAll(Home(), 0o755)
}
