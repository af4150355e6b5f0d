package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "CELLAR"

	cfgKeyDataDir      = "data_dir"
	cfgKeyOutput       = "output"
	cfgKeyRecord       = "record"
	cfgKeyVerbose      = "verbose"
	cfgKeyHistoryLimit = "history_limit"

	outputText = "text"
	outputJSON = "json"

	defaultHistoryLimit = 20
)

// ErrInvalidConfig is returned when config.yaml holds an unusable value.
var ErrInvalidConfig = errors.New("invalid configuration")

// settings is the effective configuration after defaults, config.yaml and
// CELLAR_* environment variables have been applied.
type settings struct {
	DataDir      string
	Output       string
	Record       bool
	Verbose      bool
	HistoryLimit int
}

// configFile holds the structure written to config.yaml.
type configFile struct {
	DataDir      string `yaml:"data_dir,omitempty"`
	Output       string `yaml:"output"`
	Record       bool   `yaml:"record"`
	Verbose      bool   `yaml:"verbose"`
	HistoryLimit int    `yaml:"history_limit"`
}

// loadConfig reads config.yaml from configDir using Viper. A missing
// config.yaml is not an error; defaults apply. CELLAR_OUTPUT, CELLAR_RECORD,
// CELLAR_VERBOSE and CELLAR_HISTORY_LIMIT override the file.
func loadConfig(configDir string) (settings, error) {
	v := viper.New()
	v.SetDefault(cfgKeyOutput, outputText)
	v.SetDefault(cfgKeyRecord, false)
	v.SetDefault(cfgKeyVerbose, false)
	v.SetDefault(cfgKeyHistoryLimit, defaultHistoryLimit)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	// data_dir is resolved by paths.ResolveDataDir and stays unbound here.
	v.SetEnvPrefix(envPrefix)
	for _, key := range []string{cfgKeyOutput, cfgKeyRecord, cfgKeyVerbose, cfgKeyHistoryLimit} {
		if err := v.BindEnv(key); err != nil {
			return settings{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := settings{
		DataDir:      v.GetString(cfgKeyDataDir),
		Output:       v.GetString(cfgKeyOutput),
		Record:       v.GetBool(cfgKeyRecord),
		Verbose:      v.GetBool(cfgKeyVerbose),
		HistoryLimit: v.GetInt(cfgKeyHistoryLimit),
	}
	if cfg.Output != outputText && cfg.Output != outputJSON {
		return settings{}, fmt.Errorf("%w: output must be %q or %q, got %q", ErrInvalidConfig, outputText, outputJSON, cfg.Output)
	}
	if cfg.HistoryLimit < 0 {
		return settings{}, fmt.Errorf("%w: history_limit must not be negative", ErrInvalidConfig)
	}
	return cfg, nil
}

func configPath(configDir string) string {
	return filepath.Join(configDir, configFileExt)
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. If it already exists, the function returns nil (idempotent).
func writeConfigIfMissing(configDir, dataDir string) (created bool, err error) {
	path := configPath(configDir)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	cfg := configFile{
		DataDir:      dataDir,
		Output:       outputText,
		HistoryLimit: defaultHistoryLimit,
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
