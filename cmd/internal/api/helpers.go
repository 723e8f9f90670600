package api

import (
	"net/http"
	"strings"

	"circuito/cmd/identity"
	"circuito/cmd/internal/collection"
	"circuito/cmd/internal/level"
	"circuito/cmd/internal/reward"
)

func toUserResponse(u identity.User) userResponse {
	resp := userResponse{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		Role:         string(u.Role),
		ImpactPoints: u.ImpactPoints,
		Level:        u.Level,
	}

	if lvl, err := level.For(u.ImpactPoints); err == nil {
		resp.Level = lvl.Number
		resp.LevelName = lvl.Name
	}
	if pct, err := level.Progress(u.ImpactPoints); err == nil {
		resp.Progress = pct
	}
	if missing, ok, err := level.PointsToNext(u.ImpactPoints); err == nil && ok {
		resp.PointsToNext = &missing
	}
	return resp
}

func toCollectionResponse(rec collection.Record) collectionResponse {
	return collectionResponse{
		ID:            rec.ID,
		StationID:     rec.StationID,
		Material:      string(rec.Material),
		WeightKg:      rec.WeightKg,
		PointsAwarded: rec.PointsAwarded,
		Status:        string(rec.Status),
		ValidatedAt:   rec.ValidatedAt,
	}
}

func toRewardResponse(rw reward.Reward) rewardResponse {
	return rewardResponse{
		ID:          rw.ID,
		PartnerID:   rw.PartnerID,
		Title:       rw.Title,
		Description: rw.Description,
		PointsCost:  rw.PointsCost,
		MinLevel:    rw.MinLevel,
	}
}

func toRedemptionResponse(rec reward.Redemption) redemptionResponse {
	return redemptionResponse{
		ID:         rec.ID,
		RewardID:   rec.RewardID,
		PointsCost: rec.PointsCost,
		Status:     string(rec.Status),
		IssuedAt:   rec.IssuedAt,
		ExpiresAt:  rec.ExpiresAt,
		UsedAt:     rec.UsedAt,
	}
}

// bearerToken extracts the session token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	return ""
}
