// Package util holds small environment helpers shared by the cmd entrypoint.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// BoolEnv reads a boolean toggle such as CRESCE_DEBUG from the environment.
// It accepts true/1/yes/on and false/0/no/off in any case; an unset variable
// or an unrecognized spelling yields fallback.
func BoolEnv(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("BoolEnv: unrecognized value, keeping fallback", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
}

// EnvOrDefault returns the variable's value, or fallback when it is unset or
// blank.
func EnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
