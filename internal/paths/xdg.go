// Package paths resolves wcfx's XDG locations.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "wcfx"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func appDir(envVar string, fallback ...string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appName)
	}
	parts := append([]string{homeDir()}, fallback...)
	return filepath.Join(append(parts, appName)...)
}

// ConfigDir is $XDG_CONFIG_HOME/wcfx.
func ConfigDir() string {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// CacheDir is $XDG_CACHE_HOME/wcfx.
func CacheDir() string {
	return appDir("XDG_CACHE_HOME", ".cache")
}

// StateDir is $XDG_STATE_HOME/wcfx.
func StateDir() string {
	return appDir("XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir holds the daemon socket, nonce and lock. It is
// $XDG_RUNTIME_DIR/wcfx, or StateDir when XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appName)
	}
	return StateDir()
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

func SocketPath() string {
	return filepath.Join(RuntimeDir(), "daemon.sock")
}

// StatePath is the daemon state file. It holds the IPC nonce.
func StatePath() string {
	return filepath.Join(RuntimeDir(), "daemon.state")
}

func LockPath() string {
	return filepath.Join(RuntimeDir(), "daemon.lock")
}

// LogFile is where a spawned daemon writes its log, since its stdio is
// detached.
func LogFile() string {
	return filepath.Join(StateDir(), "daemon.log")
}

// EnsureDir creates dir and its parents, private to the user.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
