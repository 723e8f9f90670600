package api

import (
	"os"
	"strconv"
	"strings"
)

const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// Config holds the HTTP-facing knobs of the API handler.
type Config struct {
	MaxBodyBytes int64
}

// LoadConfigFromEnv reads Config from environment variables with defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{MaxBodyBytes: defaultMaxBodyBytes}

	if v := strings.TrimSpace(os.Getenv("CIRCUITO_API_MAX_BODY_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
	return cfg
}
