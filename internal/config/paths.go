package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath names a config file when no --config flag is given
	EnvConfigPath = "MESHVIEW_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "meshview.yaml"
	// ConfigDirName is the directory under XDG, ~/.config and /etc
	ConfigDirName = "meshview"
)

// ErrConfigNotFound is returned when a config file was named explicitly but
// does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// SearchPaths returns the implicit config locations, most specific first.
func SearchPaths() []string {
	paths := []string{ConfigFileName}
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		paths = append(paths, filepath.Join(xdgHome, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath resolves the config file to load. explicit (the --config
// flag) wins over $MESHVIEW_CONFIG; a file named either way must exist.
// Without one, the first existing SearchPaths entry is returned, or ""
// when there is none and defaults apply.
func FindConfigPath(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv(EnvConfigPath)
	}
	if explicit != "" {
		if !fileExists(explicit) {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicit)
		}
		return explicit, nil
	}

	for _, path := range SearchPaths() {
		if !fileExists(path) {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs, nil
		}
		return path, nil
	}
	return "", nil
}

// DefaultConfigPath is where `config init` writes when no path is given
func DefaultConfigPath() string {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, ConfigDirName, "config.yaml")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// EnsureConfigDir creates the parent directory of configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
