package app

import (
	"strings"
	"testing"
)

func TestValidateSecurityConfig(t *testing.T) {
	t.Run("policy off", func(t *testing.T) {
		t.Setenv("CIRCUITO_TOKEN_HMAC_KEY", "")
		if err := ValidateSecurityConfig(Config{RequireTokenHMAC: false}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("CIRCUITO_TOKEN_HMAC_KEY", "")
		err := ValidateSecurityConfig(Config{RequireTokenHMAC: true})
		if err == nil || !strings.Contains(err.Error(), "missing") {
			t.Fatalf("err = %v, want missing-key error", err)
		}
	})

	t.Run("short key", func(t *testing.T) {
		t.Setenv("CIRCUITO_TOKEN_HMAC_KEY", "too-short")
		err := ValidateSecurityConfig(Config{RequireTokenHMAC: true})
		if err == nil || !strings.Contains(err.Error(), "too short") {
			t.Fatalf("err = %v, want short-key error", err)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		t.Setenv("CIRCUITO_TOKEN_HMAC_KEY", strings.Repeat("k", 32))
		if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
