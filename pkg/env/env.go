package env

import (
	"os"
	"strconv"
	"time"

	"github.com/hashdeck/hashdeck/pkg/debug"
)

// GetOrDefault returns the environment variable value or the default if not set
func GetOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	debug.Debug("%s not set, using default: %s", key, defaultValue)
	return defaultValue
}

// GetBool returns the environment variable as a boolean.
// Returns false unless the value is "true", "1", "yes", or "y" (case insensitive).
func GetBool(key string) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes", "y", "TRUE", "YES", "Y":
		return true
	default:
		return false
	}
}

// GetIntOrDefault returns the environment variable as an int or the default
// when the variable is unset or not a valid integer.
func GetIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		debug.Warning("Invalid integer for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// GetDurationOrDefault returns the environment variable parsed as a duration
// or the default when the variable is unset or malformed.
func GetDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		debug.Warning("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return d
}
