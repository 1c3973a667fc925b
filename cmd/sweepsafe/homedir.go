package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// homeDir returns the user's home directory or an error.
func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return home, nil
}

// defaultConfigPath is ~/.sweepsafe/config.yaml.
func defaultConfigPath() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sweepsafe", "config.yaml"), nil
}
