package utils

import (
	"os"
	"strconv"
	"strings"
)

// GetEnv returns the value of key, or fallback when it is unset or blank.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

// GetEnvInt parses key as an integer. Bad values fall back with a warning.
func GetEnvInt(key string, fallback int) int {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		GetLogger().Warn("invalid integer in environment, using default",
			"key", key, "value", raw, "default", fallback)
		return fallback
	}
	return value
}

// GetEnvFloat parses key as a float. Bad values fall back with a warning.
func GetEnvFloat(key string, fallback float64) float64 {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		GetLogger().Warn("invalid number in environment, using default",
			"key", key, "value", raw, "default", fallback)
		return fallback
	}
	return value
}

// CreateFolder creates folderPath and any missing parents.
func CreateFolder(folderPath string) error {
	return os.MkdirAll(folderPath, 0o755)
}
