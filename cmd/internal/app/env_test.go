package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("CIRCUITO_TEST_STR", "  value  ")
	if got := EnvString("CIRCUITO_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString = %q, want %q", got, "value")
	}
	if got := EnvString("CIRCUITO_TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("EnvString default = %q, want %q", got, "def")
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("CIRCUITO_TEST_BOOL", "true")
	if !EnvBool("CIRCUITO_TEST_BOOL", false) {
		t.Fatalf("EnvBool(true) = false")
	}
	t.Setenv("CIRCUITO_TEST_BOOL", "not-a-bool")
	if EnvBool("CIRCUITO_TEST_BOOL", false) {
		t.Fatalf("EnvBool(garbage) should fall back to default")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("CIRCUITO_TEST_INT", "42")
	if got := EnvInt("CIRCUITO_TEST_INT", 7); got != 42 {
		t.Fatalf("EnvInt = %d, want 42", got)
	}
	t.Setenv("CIRCUITO_TEST_INT", "-5")
	if got := EnvInt("CIRCUITO_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt(negative) = %d, want default 7", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("CIRCUITO_TEST_DUR", "90s")
	if got := EnvDuration("CIRCUITO_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("EnvDuration = %v, want 90s", got)
	}
	t.Setenv("CIRCUITO_TEST_DUR", "0s")
	if got := EnvDuration("CIRCUITO_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("EnvDuration(zero) = %v, want default 1m", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.HTTPAddr == "" {
		t.Fatalf("empty HTTPAddr")
	}
	if cfg.SweepInterval <= 0 {
		t.Fatalf("SweepInterval = %v, want positive", cfg.SweepInterval)
	}
}
