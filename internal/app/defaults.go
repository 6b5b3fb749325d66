package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// GetDefaults returns application default paths, checking environment variables first.
// A .env file in the base directory is loaded before the lookup; variables
// already set in the environment win.
// Environment variables:
//   - AUPAT_CONFIG_PATH: config file location (default: ~/.config/aupat.toml)
//   - AUPAT_HOME: base directory for aupat data (default: ~/.local/share/aupat)
func GetDefaults() (map[string]string, error) {
	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	if err := loadEnvFile(filepath.Join(baseDir, ".env")); err != nil {
		return nil, err
	}

	// The .env file may set AUPAT_HOME itself.
	if baseDir, err = getBaseDir(); err != nil {
		return nil, err
	}

	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// loadEnvFile loads KEY=value pairs without overriding the environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// getConfigPath returns the config file path, checking AUPAT_CONFIG_PATH env var first,
// then falling back to the default ~/.config/aupat.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("AUPAT_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "aupat.toml"), nil
}

// getBaseDir returns the base directory for aupat data, checking AUPAT_HOME env var first,
// then falling back to the XDG default ~/.local/share/aupat.
func getBaseDir() (string, error) {
	if path := os.Getenv("AUPAT_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "aupat"), nil
}
