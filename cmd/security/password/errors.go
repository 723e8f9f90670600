package password

import "errors"

var (
	// ErrInvalidHash is returned for malformed or unsupported encoded hashes.
	ErrInvalidHash = errors.New("invalid password hash")

	// ErrPasswordTooShort is returned when a password fails the length policy.
	ErrPasswordTooShort = errors.New("password too short")

	// ErrConfig is returned for invalid configuration values.
	ErrConfig = errors.New("invalid password config")
)
