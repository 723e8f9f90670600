// Package collection implements the ambassador-facing validation workflow:
// a scanned proof token plus a weighed material becomes a validated
// collection record and an impact-point credit.
package collection

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"circuito/cmd/identity/ids"
)

// TokenConsumer resolves and consumes a scanned proof token. Implemented by
// the proof service; its failure modes pass through to the ambassador
// unchanged so the UI can ask for a fresh code.
type TokenConsumer interface {
	ValidateAndConsume(ctx context.Context, tokenValue string, now time.Time) (userID string, err error)
}

// Notifier receives leveled-up events. Delivery is best-effort; a failed
// notification never fails the validation.
type Notifier interface {
	LevelUp(ctx context.Context, userID string, prevLevel, newLevel, totalPoints int)
}

// ValidateInput is one ambassador confirmation. The acting ambassador and
// station are explicit inputs, never ambient state.
type ValidateInput struct {
	Token    string
	Material Material
	WeightKg float64

	AmbassadorID string
	StationID    string

	Now time.Time
}

// Result is the outcome of a successful validation.
type Result struct {
	Collection Record
	PrevLevel  int
	NewLevel   int
	NewBalance int
	LeveledUp  bool
}

// Service orchestrates the validation workflow.
type Service struct {
	log      *slog.Logger
	tokens   TokenConsumer
	store    Store
	notifier Notifier
}

// NewService constructs a Service. notifier may be nil.
func NewService(log *slog.Logger, tokens TokenConsumer, store Store, notifier Notifier) (*Service, error) {
	if tokens == nil || store == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log, tokens: tokens, store: store, notifier: notifier}, nil
}

// Validate consumes the proof token and commits the credit.
//
// The token consume and the credit are two atomic units: if the credit
// fails after the token was consumed, the error surfaces to the ambassador
// and the retry path is a fresh token with the same weight and material.
func (s *Service) Validate(ctx context.Context, in ValidateInput) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(in.AmbassadorID) == "" || strings.TrimSpace(in.StationID) == "" {
		return Result{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Reject bad input before consuming the token: a typo in the weight
	// must not burn the user's code.
	points, err := PointsFor(in.WeightKg, in.Material)
	if err != nil {
		return Result{}, err
	}

	userID, err := s.tokens.ValidateAndConsume(ctx, in.Token, now)
	if err != nil {
		return Result{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Result{}, err
	}

	ambassadorID := in.AmbassadorID
	rec := Record{
		ID:            id,
		UserID:        userID,
		StationID:     in.StationID,
		AmbassadorID:  &ambassadorID,
		Material:      in.Material,
		WeightKg:      in.WeightKg,
		PointsAwarded: points,
		Status:        StatusValidated,
		ValidatedAt:   now,
		CreatedAt:     now,
	}

	applied, err := s.store.ApplyValidated(ctx, rec)
	if err != nil {
		s.log.Error("collection.apply.fail",
			"user_id", userID,
			"station_id", in.StationID,
			"err", err,
		)
		return Result{}, err
	}

	res := Result{
		Collection: rec,
		PrevLevel:  applied.PrevLevel,
		NewLevel:   applied.NewLevel,
		NewBalance: applied.NewPoints,
		LeveledUp:  applied.NewLevel > applied.PrevLevel,
	}

	s.log.Info("collection.validated",
		"user_id", userID,
		"station_id", in.StationID,
		"material", string(in.Material),
		"weight_kg", in.WeightKg,
		"points", points,
		"new_balance", applied.NewPoints,
	)

	if res.LeveledUp && s.notifier != nil {
		s.notifier.LevelUp(ctx, userID, applied.PrevLevel, applied.NewLevel, applied.NewPoints)
	}

	return res, nil
}

// HistoryForUser lists a user's validated drop-offs, newest first.
func (s *Service) HistoryForUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.HistoryForUser(ctx, userID, limit)
}

// ListStations returns the station catalog.
func (s *Service) ListStations(ctx context.Context) ([]Station, error) {
	return s.store.ListStations(ctx)
}
