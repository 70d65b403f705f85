package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// GetDefaultConfigPaths returns the OS-specific search paths for config.yaml,
// in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("error fetching executable path: %w", err)
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", "transcribe-dispatch"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "transcribe-dispatch"),
			"/etc/transcribe-dispatch",
		}
	}

	return configPaths, nil
}
