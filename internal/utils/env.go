package utils

import (
	"os"
	"strings"
)

// EnvOr returns the trimmed value of key. Unset and blank variables yield
// fallback.
func EnvOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
