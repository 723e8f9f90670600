package collection

import (
	"context"
	"time"
)

// Status is a collection record state. Records created by the validation
// workflow are born validated and immutable afterwards.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
)

// Record is one validated recycling drop-off.
type Record struct {
	ID           string
	UserID       string
	StationID    string
	AmbassadorID *string

	Material      Material
	WeightKg      float64
	PointsAwarded int

	Status      Status
	ValidatedAt time.Time
	CreatedAt   time.Time
}

// Station is a physical collection point.
type Station struct {
	ID      string
	Name    string
	Address string
}

// ApplyResult reports the balance transition caused by a validated
// collection.
type ApplyResult struct {
	PrevPoints int
	NewPoints  int
	PrevLevel  int
	NewLevel   int
}

// Store is the persistence boundary for collections.
//
// ApplyValidated must be atomic as a unit: the collection insert, the
// balance credit with level recompute, and the ambassador counter bump
// commit together or not at all.
type Store interface {
	ApplyValidated(ctx context.Context, rec Record) (ApplyResult, error)
	HistoryForUser(ctx context.Context, userID string, limit int) ([]Record, error)
	ListStations(ctx context.Context) ([]Station, error)
}
