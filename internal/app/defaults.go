package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AmirTlinov/context-pack/internal/config"
)

// Environment variables read by GetDefaults and ApplyEnv.
const (
	EnvHome                = "CONTEXT_PACK_HOME"
	EnvConfigPath          = "CONTEXT_PACK_CONFIG_PATH"
	EnvRoot                = "CONTEXT_PACK_ROOT"
	EnvSourceRoot          = "CONTEXT_PACK_SOURCE_ROOT"
	EnvMaxPackBytes        = "CONTEXT_PACK_MAX_PACK_BYTES"
	EnvMaxSourceBytes      = "CONTEXT_PACK_MAX_SOURCE_BYTES"
	EnvExpiredGraceSeconds = "CONTEXT_PACK_EXPIRED_GRACE_SECONDS"
	EnvLog                 = "CONTEXT_PACK_LOG"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CONTEXT_PACK_CONFIG_PATH: config file location (default: ~/.config/context-pack.toml)
//   - CONTEXT_PACK_HOME: base directory for ctxpack data (default: ~/.local/share/context-pack)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking CONTEXT_PACK_CONFIG_PATH first,
// then falling back to the default ~/.config/context-pack.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "context-pack.toml"), nil
}

// getBaseDir returns the base directory for ctxpack data, checking CONTEXT_PACK_HOME first,
// then falling back to the XDG default ~/.local/share/context-pack.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "context-pack"), nil
}

// LoadConfig reads the config file at the default path. A missing file is not an error:
// built-in defaults rooted at the default base dir are used instead. Defaults and
// environment overrides are applied in both cases.
func LoadConfig() (*config.Config, string, error) {
	defaults, err := GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	path := defaults["config_path"]

	cfg, err := config.ReadFromFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.NewConfig(defaults["base_dir"])
		path = ""
	case err != nil:
		return nil, "", fmt.Errorf("reading config: %w", err)
	}

	cfg.ApplyDefaults()
	ApplyEnv(cfg)
	return cfg, path, nil
}

// ApplyEnv overrides config values from CONTEXT_PACK_* variables. Numeric overrides that
// are non-positive or unparsable reset the value to its default.
func ApplyEnv(cfg *config.Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRoot)); v != "" {
		cfg.Store.Root = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSourceRoot)); v != "" {
		cfg.Source.Root = v
	}
	if v, ok := os.LookupEnv(EnvMaxPackBytes); ok {
		cfg.Store.MaxPackBytes = positiveInt(v, config.DefaultMaxPackBytes)
	}
	if v, ok := os.LookupEnv(EnvMaxSourceBytes); ok {
		cfg.Source.MaxSourceBytes = positiveInt(v, config.DefaultMaxSourceBytes)
	}
	if v, ok := os.LookupEnv(EnvExpiredGraceSeconds); ok {
		cfg.Freshness.ExpiredGraceSeconds = positiveInt(v, config.DefaultExpiredGraceSeconds)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLog)); v != "" {
		cfg.LogLevel = v
	}
}

func positiveInt(raw string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
