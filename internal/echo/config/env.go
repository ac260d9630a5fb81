package config

import (
	"os"
	"strconv"
	"time"
)

// Environment lookup helpers. Each returns the parsed value of the named
// variable, or defaultValue when the variable is unset, empty, or fails to
// parse. Misconfiguration degrades to the default rather than aborting.

func stringOr(name, defaultValue string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return defaultValue
}

func intOr(name string, defaultValue int) int {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func durationOr(name string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
