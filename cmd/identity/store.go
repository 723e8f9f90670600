package identity

import (
	"context"
	"strings"
	"time"
)

// Role classifies what a user may do in the system.
type Role string

const (
	// RoleStudent earns impact points by recycling.
	RoleStudent Role = "student"
	// RoleAmbassador validates drop-offs at a station.
	RoleAmbassador Role = "ambassador"
	// RolePartnerStaff consumes redemption codes at a partner business.
	RolePartnerStaff Role = "partner_staff"
	// RoleCommunity is a non-student participant.
	RoleCommunity Role = "community"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.TrimSpace(s)) {
	case RoleStudent:
		return RoleStudent, true
	case RoleAmbassador:
		return RoleAmbassador, true
	case RolePartnerStaff:
		return RolePartnerStaff, true
	case RoleCommunity:
		return RoleCommunity, true
	default:
		return "", false
	}
}

// User is Circuito's canonical principal.
//
// ImpactPoints is the authoritative balance; Level is a cache recomputed by
// whichever workflow last changed the balance.
type User struct {
	ID        string
	Email     string
	EmailNorm string

	DisplayName string
	Role        Role

	// StationID links ambassadors to their assigned station; PartnerID links
	// partner staff to their business. Nil for everyone else.
	StationID *string
	PartnerID *string

	ImpactPoints int
	Level        int

	// CollectionsValidated is the ambassador's lifetime validated counter.
	CollectionsValidated int

	// PasswordHash is the PHC Argon2id hash; never serialized outward.
	PasswordHash string

	CreatedAt time.Time
}

// CreateUserInput describes a registration request.
type CreateUserInput struct {
	Email        string
	DisplayName  string
	Role         Role
	StationID    *string
	PartnerID    *string
	PasswordHash string
	Now          time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmailNorm(ctx context.Context, emailNorm string) (User, error)
}

// NormalizeEmail lowers and trims an email for unique lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
