package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"fsv-go/internal/config"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - FSV_CONFIG_PATH: config file location (default: ~/.config/fsv.toml)
//   - FSV_HOME: base directory for fsv data (default: ~/.local/share/fsv)
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

// LoadConfig reads the config file at path and applies FSV_* overrides.
// A missing file is accepted when FSV_ROOT_PATH is set; defaults under
// baseDir are used instead.
func LoadConfig(path, baseDir string) (*config.Config, error) {
	cfg, err := config.ReadFromFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && config.HasEnvRoot():
		cfg = config.NewConfig(uuid.NewString(), baseDir)
	default:
		return nil, err
	}

	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// getConfigPath returns the config file path, checking FSV_CONFIG_PATH env var first,
// then falling back to the default ~/.config/fsv.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("FSV_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "fsv.toml"), nil
}

// getBaseDir returns the base directory for fsv data, checking FSV_HOME env var first,
// then falling back to the XDG default ~/.local/share/fsv.
func getBaseDir() (string, error) {
	if path := os.Getenv("FSV_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "fsv"), nil
}
