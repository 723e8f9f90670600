// Package notify pushes per-user events (leveled up, redemption used)
// to connected clients over WebSocket. Delivery is best-effort: a slow
// or absent client never blocks the workflow that emitted the event.
package notify

import (
	"encoding/json"
	"time"
)

// Event types sent down the wire.
const (
	TypeLevelUp        = "level.up"
	TypeRedemptionUsed = "redemption.used"
)

// Event is the envelope pushed to a client.
type Event struct {
	Type    string          `json:"type"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// LevelUpPayload announces a tier change after a validated collection.
type LevelUpPayload struct {
	PrevLevel   int `json:"prev_level"`
	NewLevel    int `json:"new_level"`
	TotalPoints int `json:"total_points"`
}

// RedemptionUsedPayload tells the user their code was honored.
type RedemptionUsedPayload struct {
	RewardID string    `json:"reward_id"`
	UsedAt   time.Time `json:"used_at"`
}
