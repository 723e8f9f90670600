// Package token provides opaque-token hashing primitives for Circuito.
//
// It is the single source of truth for how proof tokens, redemption codes,
// and session tokens are hashed before storage.
//
// Design goals:
// - Default dev mode: SHA-256(token) when no HMAC key is configured.
// - Production mode: HMAC-SHA256(token, key) when a key is set.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - CIRCUITO_TOKEN_HMAC_KEY: when set, enables HMAC mode.
package token
