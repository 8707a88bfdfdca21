package utils

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// EnvDuration parses a Go duration ("15m", "1h"). Bad values fall back with a warning.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("⚠️  %s=%q is not a valid duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}

// EnvInt parses a non-negative integer. Bad values fall back with a warning.
func EnvInt(key string, fallback int) int {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("⚠️  %s=%q is not a valid integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// SplitList splits a comma-separated value and drops empty items.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
