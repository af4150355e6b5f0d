// Package paths resolves the configuration and data directories used by the
// cellar CLI.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Directory names.
const (
	AppName            = "cellar"
	DefaultDataDirName = ".cellar-db"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "CELLAR_CONFIG_DIR"
	EnvDataDir   = "CELLAR_DATA_DIR"
)

// overrides holds the directory overrides read from the environment.
type overrides struct {
	ConfigDir string `env:"CELLAR_CONFIG_DIR"`
	DataDir   string `env:"CELLAR_DATA_DIR"`
}

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

func readOverrides() (overrides, error) {
	o, err := env.ParseAs[overrides]()
	if err != nil {
		return overrides{}, fmt.Errorf("parse environment: %w", err)
	}
	return o, nil
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/cellar (fallback ~/.config/cellar)
// macOS:   ~/Library/Application Support/cellar
// Windows: %APPDATA%/cellar
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", AppName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > CELLAR_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	o, err := readOverrides()
	if err != nil {
		return "", err
	}
	if o.ConfigDir != "" {
		return filepath.Abs(o.ConfigDir)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > configValue (data_dir in config.yaml) > CELLAR_DATA_DIR env >
// $(CWD)/.cellar-db.
func ResolveDataDir(flag, configValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	o, err := readOverrides()
	if err != nil {
		return "", err
	}
	if o.DataDir != "" {
		return filepath.Abs(o.DataDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}
