// Package config provides environment and tuning-file helpers for go-jellyfish commands.
package config

import (
	"os"
	"strconv"
)

// Default destination and dashboard settings.
const (
	DefaultOSCHost = "127.0.0.1"
	DefaultOSCPort = 12000
	DefaultWebPort = "8181"
)

// OSCHost returns the OSC destination host from OSC_HOST.
// Falls back to the provided default if not set.
func OSCHost(defaultHost string) string {
	if host := os.Getenv("OSC_HOST"); host != "" {
		return host
	}
	return defaultHost
}

// OSCPort returns the OSC destination port from OSC_PORT.
// Falls back to the provided default if unset or not a number.
func OSCPort(defaultPort int) int {
	if v := os.Getenv("OSC_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			return port
		}
	}
	return defaultPort
}

// WebPort returns the dashboard port from JELLYFISH_WEB_PORT or default.
func WebPort(defaultPort string) string {
	if port := os.Getenv("JELLYFISH_WEB_PORT"); port != "" {
		return port
	}
	return defaultPort
}

// ModelPath returns the pose model path from JELLYFISH_MODEL or default.
func ModelPath(defaultPath string) string {
	if path := os.Getenv("JELLYFISH_MODEL"); path != "" {
		return path
	}
	return defaultPath
}
