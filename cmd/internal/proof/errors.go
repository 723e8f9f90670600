package proof

import "errors"

var (
	// ErrInvalidInput is returned for malformed issue/consume requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTokenNotFound is returned when a token value is unknown.
	ErrTokenNotFound = errors.New("proof token not found")

	// ErrTokenExpired is returned when the token's TTL has elapsed.
	ErrTokenExpired = errors.New("proof token expired")

	// ErrTokenConsumed is returned when a prior validation already consumed
	// the token. Retrying will never succeed; the user must issue a new one.
	ErrTokenConsumed = errors.New("proof token already consumed")

	// ErrTokenSuperseded is returned when the user regenerated their code
	// and an older QR is scanned.
	ErrTokenSuperseded = errors.New("proof token superseded")
)
