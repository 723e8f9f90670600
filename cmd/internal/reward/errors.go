package reward

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for malformed redemption requests.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRewardNotFound is returned when a reward is absent or inactive.
	// A reward can go inactive between listing and redemption.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrUserNotFound is returned when the redeeming user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrLevelTooLow is returned when the user's level is below the
	// reward's minimum level gate.
	ErrLevelTooLow = errors.New("level too low for reward")

	// ErrInsufficientPoints is the kind wrapped by InsufficientPointsError.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrCodeNotFound is returned when a redemption code is unknown.
	ErrCodeNotFound = errors.New("redemption code not found")

	// ErrCodeExpired is returned when the code's 24h window has elapsed.
	ErrCodeExpired = errors.New("redemption code expired")

	// ErrCodeUsed is returned when a prior redemption already consumed the
	// code. Retrying will never succeed.
	ErrCodeUsed = errors.New("redemption code already used")
)

// InsufficientPointsError reports the shortfall so the UI can show
// required versus available balance.
type InsufficientPointsError struct {
	Required  int
	Available int
}

func (e InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: need %d, have %d", e.Required, e.Available)
}

// Unwrap makes errors.Is(err, ErrInsufficientPoints) hold.
func (e InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }
