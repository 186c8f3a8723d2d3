// ABOUTME: XDG-based data directory resolution for the shroomboard daemon.
// ABOUTME: Checks XDG_DATA_HOME first, falls back to ~/.local/share/shroomboard.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultDataDir returns the default data directory for persistent state.
// Used only when SHROOMBOARD_HOME is unset.
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "shroomboard"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "shroomboard"), nil
}
