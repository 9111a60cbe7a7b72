// Package config provides configuration helpers for clawft-go commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default gateway configuration.
const (
	DefaultGatewayPort = "7600"
	DefaultGatewayHost = "127.0.0.1"
)

// GatewayURL returns the gateway base URL from CLAWFT_GATEWAY_URL.
// Falls back to the local default if not set.
func GatewayURL() string {
	if url := os.Getenv("CLAWFT_GATEWAY_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("http://%s:%s", DefaultGatewayHost, DefaultGatewayPort)
}

// GatewayToken returns the bearer token from CLAWFT_TOKEN, or "" if unset.
func GatewayToken() string {
	return os.Getenv("CLAWFT_TOKEN")
}

// Mode returns the backend mode from CLAWFT_MODE.
// Falls back to the provided default if not set.
func Mode(defaultMode string) string {
	if mode := os.Getenv("CLAWFT_MODE"); mode != "" {
		return mode
	}
	return defaultMode
}

// DataDir returns the embedded-mode data directory from CLAWFT_DATA_DIR.
// Falls back to ~/.clawft if not set.
func DataDir() string {
	if dir := os.Getenv("CLAWFT_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clawft"
	}
	return filepath.Join(home, ".clawft")
}

// LogLevel returns the log level from CLAWFT_LOG_LEVEL or "info".
func LogLevel() string {
	if lvl := os.Getenv("CLAWFT_LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}
