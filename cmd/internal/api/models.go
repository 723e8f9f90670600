package api

import "time"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	Role         string `json:"role"`
	ImpactPoints int    `json:"impact_points"`
	Level        int    `json:"level"`
	LevelName    string `json:"level_name"`
	// Progress is the percentage into the current tier; PointsToNext is
	// absent for the top tier.
	Progress     int  `json:"progress"`
	PointsToNext *int `json:"points_to_next,omitempty"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type proofIssueResponse struct {
	Token     string    `json:"token"`
	QRPayload string    `json:"qr_payload"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type renderRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
	Size  int    `json:"size"`
}

type validateCollectionRequest struct {
	Token    string  `json:"token"`
	Material string  `json:"material"`
	WeightKg float64 `json:"weight_kg"`
}

type collectionResponse struct {
	ID            string    `json:"id"`
	StationID     string    `json:"station_id"`
	Material      string    `json:"material"`
	WeightKg      float64   `json:"weight_kg"`
	PointsAwarded int       `json:"points_awarded"`
	Status        string    `json:"status"`
	ValidatedAt   time.Time `json:"validated_at"`
}

type validateCollectionResponse struct {
	Collection collectionResponse `json:"collection"`
	NewBalance int                `json:"new_balance"`
	PrevLevel  int                `json:"prev_level"`
	NewLevel   int                `json:"new_level"`
	LeveledUp  bool               `json:"leveled_up"`
}

type collectionHistoryResponse struct {
	Collections []collectionResponse `json:"collections"`
}

type stationResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type stationsResponse struct {
	Stations []stationResponse `json:"stations"`
}

type rewardResponse struct {
	ID          string `json:"id"`
	PartnerID   string `json:"partner_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PointsCost  int    `json:"points_cost"`
	MinLevel    int    `json:"min_level"`
}

type rewardsResponse struct {
	Rewards []rewardResponse `json:"rewards"`
}

type redemptionRequest struct {
	RewardID string `json:"reward_id"`
}

type redemptionResponse struct {
	ID         string     `json:"id"`
	RewardID   string     `json:"reward_id"`
	PointsCost int        `json:"points_cost"`
	Status     string     `json:"status"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

type redemptionMintResponse struct {
	Redemption redemptionResponse `json:"redemption"`
	Code       string             `json:"code"`
	QRPayload  string             `json:"qr_payload"`
	NewBalance int                `json:"new_balance"`
}

type redemptionHistoryResponse struct {
	Redemptions []redemptionResponse `json:"redemptions"`
}

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	Redemption redemptionResponse `json:"redemption"`
}
