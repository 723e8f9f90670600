package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Service-level knobs. Zero means the service default.
	ProofTokenTTL  time.Duration
	RedemptionTTL  time.Duration
	SessionTTL     time.Duration
	SweepInterval  time.Duration
	MetricsEnabled bool

	// Seed the in-memory catalogs with demo stations and rewards.
	// Has no effect when a database is configured.
	DevSeed bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, CIRCUITO_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and opaque
	// token hashing must be HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("CIRCUITO_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("CIRCUITO_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("CIRCUITO_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CIRCUITO_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CIRCUITO_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CIRCUITO_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CIRCUITO_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("CIRCUITO_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("CIRCUITO_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("CIRCUITO_DB_MIN_CONNS", 0),

		ProofTokenTTL:  EnvDuration("CIRCUITO_PROOF_TOKEN_TTL", 0),
		RedemptionTTL:  EnvDuration("CIRCUITO_REDEMPTION_TTL", 0),
		SessionTTL:     EnvDuration("CIRCUITO_SESSION_TTL", 0),
		SweepInterval:  EnvDuration("CIRCUITO_SWEEP_INTERVAL", 10*time.Minute),
		MetricsEnabled: EnvBool("CIRCUITO_METRICS_ENABLED", true),

		DevSeed: EnvBool("CIRCUITO_DEV_SEED", true),

		ReadinessRequireDB: EnvBool("CIRCUITO_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("CIRCUITO_REQUIRE_TOKEN_HMAC", false),
	}
}
