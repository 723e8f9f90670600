package auth

import "errors"

var (
	// ErrInvalidInput is returned for malformed session requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned when email or password do not
	// match. Deliberately one error for both cases.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound is returned when a bearer token is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session outlived its TTL.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned after logout.
	ErrSessionRevoked = errors.New("session revoked")
)
