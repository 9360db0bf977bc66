package platform

import (
	"os"
	"strconv"
	"strings"
)

// GetEnv reads an env var, falling back to defaultVal when unset or empty.
func GetEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return val
	}
	return defaultVal
}

// GetEnvInt reads an integer env var. Unset, empty or non-numeric values
// keep defaultVal.
func GetEnvInt(key string, defaultVal int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetEnvBool reads a boolean env var in any form strconv.ParseBool accepts
// (1, t, true, 0, f, false, ...). Anything else keeps defaultVal.
func GetEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultVal
	}
	return b
}
