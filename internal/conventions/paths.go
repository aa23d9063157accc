package conventions

import (
	"path/filepath"

	"k8s.io/client-go/util/homedir"
)

const (
	// DefaultDataDir is the default opwatch data directory name (relative to home).
	DefaultDataDir = ".opwatch"
	// DBFile is the SQLite state database filename.
	DBFile = "opwatch.db"
	// SettingsFile is the optional YAML settings filename.
	SettingsFile = "config.yaml"
)

// DataDir returns the opwatch data directory of the current user, empty if the
// home directory can't be resolved.
func DataDir() string {
	home := homedir.HomeDir()
	if home == "" {
		return ""
	}
	return filepath.Join(home, DefaultDataDir)
}

// DBPath returns the default state database path, empty if the home directory can't be resolved.
func DBPath() string {
	dir := DataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, DBFile)
}

// SettingsPath returns the default settings file path, empty if the home directory can't be resolved.
func SettingsPath() string {
	dir := DataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, SettingsFile)
}
