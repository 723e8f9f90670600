package collection

import "errors"

var (
	// ErrInvalidInput is returned for non-positive weights, unknown
	// materials, or missing identities, before anything is persisted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUserNotFound is returned when the token's user no longer exists.
	ErrUserNotFound = errors.New("user not found")
)
