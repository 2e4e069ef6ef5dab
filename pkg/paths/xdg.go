// Package paths resolves where cncctl keeps files outside a project.
//
// Resolution order:
// 1. CNCCTL_HOME (portable root) → $CNCCTL_HOME/{config,state}
// 2. XDG env vars → $XDG_*_HOME/cncctl
// 3. Platform defaults → ~/.config/cncctl, ~/.local/state/cncctl
package paths

import (
	"os"
	"path/filepath"
)

const appName = "cncctl"

func home(sub, xdgVar string, fallback ...string) string {
	if root := os.Getenv("CNCCTL_HOME"); root != "" {
		return filepath.Join(root, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, append(fallback, appName)...)...)
	}
	return ""
}

// ConfigDir returns the user configuration directory.
func ConfigDir() string {
	return home("config", "XDG_CONFIG_HOME", ".config")
}

// ConfigFile returns the global cncctl.yml, "" when no home is known.
func ConfigFile() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "cncctl.yml")
}

// StateDir returns the directory for logs and other runtime state.
func StateDir() string {
	return home("state", "XDG_STATE_HOME", ".local", "state")
}

// LogsDir returns the fallback log directory used outside a project.
func LogsDir() string {
	dir := StateDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "logs")
}
