package password

import (
	"os"
	"strconv"
	"strings"
)

// Argon2idParams defines the Argon2id cost parameters.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Config is the effective hashing + policy configuration.
type Config struct {
	Params         Argon2idParams
	MinPasswordLen int
}

// DefaultConfig returns production-safe defaults.
func DefaultConfig() Config {
	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		MinPasswordLen: 8,
	}
}

// FromEnv returns DefaultConfig overlaid with env overrides.
// Invalid values fall back to the default (never weaker than the floor).
func FromEnv() Config {
	cfg := DefaultConfig()

	if v := envU32("CIRCUITO_PW_MEMORY_KIB", 0); v >= 8*1024 {
		cfg.Params.MemoryKiB = v
	}
	if v := envU32("CIRCUITO_PW_ITERATIONS", 0); v >= 1 {
		cfg.Params.Iterations = v
	}
	if v := envU32("CIRCUITO_PW_PARALLELISM", 0); v >= 1 && v <= 255 {
		cfg.Params.Parallelism = uint8(v)
	}
	if v := envU32("CIRCUITO_PW_MIN_LEN", 0); v >= 8 && v <= 256 {
		cfg.MinPasswordLen = int(v)
	}

	return cfg
}

// Validate applies the password policy to a candidate password.
func (c Config) Validate(pw string) error {
	if len(pw) < c.MinPasswordLen {
		return ErrPasswordTooShort
	}
	return nil
}

func envU32(key string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}
