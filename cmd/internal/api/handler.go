// Package api wires the HTTP endpoints to the domain services: login,
// proof token issuance, collection validation, rewards, and redemption.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"circuito/cmd/identity"
	"circuito/cmd/internal/auth"
	"circuito/cmd/internal/collection"
	"circuito/cmd/internal/notify"
	"circuito/cmd/internal/proof"
	"circuito/cmd/internal/qr"
	"circuito/cmd/internal/reward"
)

// Handler routes HTTP requests to the domain services.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions    *auth.Service
	proofs      *proof.Service
	collections *collection.Service
	rewards     *reward.Service
	hub         *notify.Hub
	metrics     *Metrics
}

// NewHandler constructs a Handler. hub and metrics may be nil.
func NewHandler(
	log *slog.Logger,
	cfg Config,
	sessions *auth.Service,
	proofs *proof.Service,
	collections *collection.Service,
	rewards *reward.Service,
	hub *notify.Hub,
	metrics *Metrics,
) (*Handler, error) {
	if sessions == nil || proofs == nil || collections == nil || rewards == nil {
		return nil, errors.New("api: missing service dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		log:         log,
		cfg:         cfg,
		sessions:    sessions,
		proofs:      proofs,
		collections: collections,
		rewards:     rewards,
		hub:         hub,
		metrics:     metrics,
	}, nil
}

// Register wires the API routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/me", h.handleMe)
	mux.HandleFunc("/proof/issue", h.handleProofIssue)
	mux.HandleFunc("/qr", h.handleRenderQR)
	mux.HandleFunc("/collections/validate", h.handleValidateCollection)
	mux.HandleFunc("/collections/history", h.handleCollectionHistory)
	mux.HandleFunc("/stations", h.handleStations)
	mux.HandleFunc("/rewards", h.handleRewards)
	mux.HandleFunc("/redemptions", h.handleRequestRedemption)
	mux.HandleFunc("/redemptions/history", h.handleRedemptionHistory)
	mux.HandleFunc("/redemptions/redeem", h.handleRedeem)
}

// ---- auth ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	issued, err := h.sessions.Login(r.Context(), req.Email, req.Password, time.Now().UTC())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.countLogin("failure")
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
			return
		}
		h.log.Error("api.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "please retry later")
		return
	}

	h.countLogin("success")
	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(issued.User),
		Session: sessionResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := h.sessions.Logout(r.Context(), bearerToken(r), time.Now().UTC()); err != nil {
		h.log.Error("api.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "please retry later")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- proof tokens ----

func (h *Handler) handleProofIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	issued, err := h.proofs.Issue(r.Context(), u.ID, time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	payload, err := qr.EncodePayload(qr.KindProofToken, issued.Token)
	if err != nil {
		h.log.Error("api.proof.encode.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "please retry later")
		return
	}

	if h.metrics != nil {
		h.metrics.ProofTokensIssued.Inc()
	}
	writeJSON(w, http.StatusOK, proofIssueResponse{
		Token:     issued.Token,
		QRPayload: payload,
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
	})
}

// handleRenderQR turns a payload into a PNG. The client sends back the
// qr_payload it received at issue time.
func (h *Handler) handleRenderQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	var req renderRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	payload, err := qr.EncodePayload(qr.Kind(req.Kind), req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown payload kind or empty value")
		return
	}

	opts := qr.DefaultRenderOptions()
	if req.Size > 0 {
		opts.Size = req.Size
	}
	img, err := qr.RenderPNG(payload, opts)
	if err != nil {
		h.log.Error("api.qr.render.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "please retry later")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

// ---- collections ----

func (h *Handler) handleValidateCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := h.requireRole(w, r, identity.RoleAmbassador)
	if !ok {
		return
	}
	if u.StationID == nil || *u.StationID == "" {
		writeError(w, http.StatusForbidden, "no_station", "ambassador has no assigned station")
		return
	}

	var req validateCollectionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	// Scanned values arrive as tagged QR payloads; typed-in values as
	// plain strings. A redemption code held up at a station is rejected
	// before touching the backend stores.
	payload, err := qr.DecodePayload(req.Token)
	if err != nil || payload.Kind == qr.KindRedemptionCode {
		writeError(w, http.StatusBadRequest, "invalid_input", "not a collection token")
		return
	}

	material, ok2 := collection.ParseMaterial(req.Material)
	if !ok2 {
		writeError(w, http.StatusBadRequest, "invalid_input", "unknown material type")
		return
	}

	res, err := h.collections.Validate(r.Context(), collection.ValidateInput{
		Token:        payload.Value,
		Material:     material,
		WeightKg:     req.WeightKg,
		AmbassadorID: u.ID,
		StationID:    *u.StationID,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.CollectionsValidated.WithLabelValues(string(material)).Inc()
		h.metrics.PointsAwardedTotal.Add(float64(res.Collection.PointsAwarded))
	}
	writeJSON(w, http.StatusOK, validateCollectionResponse{
		Collection: toCollectionResponse(res.Collection),
		NewBalance: res.NewBalance,
		PrevLevel:  res.PrevLevel,
		NewLevel:   res.NewLevel,
		LeveledUp:  res.LeveledUp,
	})
}

func (h *Handler) handleCollectionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	recs, err := h.collections.HistoryForUser(r.Context(), u.ID, 50)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]collectionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toCollectionResponse(rec))
	}
	writeJSON(w, http.StatusOK, collectionHistoryResponse{Collections: out})
}

func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	stations, err := h.collections.ListStations(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]stationResponse, 0, len(stations))
	for _, st := range stations {
		out = append(out, stationResponse{ID: st.ID, Name: st.Name, Address: st.Address})
	}
	writeJSON(w, http.StatusOK, stationsResponse{Stations: out})
}

// ---- rewards ----

func (h *Handler) handleRewards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if _, ok := h.requireUser(w, r); !ok {
		return
	}

	rewards, err := h.rewards.ListActive(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]rewardResponse, 0, len(rewards))
	for _, rw := range rewards {
		out = append(out, toRewardResponse(rw))
	}
	writeJSON(w, http.StatusOK, rewardsResponse{Rewards: out})
}

func (h *Handler) handleRequestRedemption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req redemptionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	minted, err := h.rewards.RequestRedemption(r.Context(), u.ID, req.RewardID, time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	payload, err := qr.EncodePayload(qr.KindRedemptionCode, minted.Code)
	if err != nil {
		h.log.Error("api.redemption.encode.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "please retry later")
		return
	}

	if h.metrics != nil {
		h.metrics.RedemptionsMinted.Inc()
	}
	writeJSON(w, http.StatusOK, redemptionMintResponse{
		Redemption: toRedemptionResponse(minted.Redemption),
		Code:       minted.Code,
		QRPayload:  payload,
		NewBalance: minted.NewBalance,
	})
}

func (h *Handler) handleRedemptionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	u, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	recs, err := h.rewards.HistoryForUser(r.Context(), u.ID, 50)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]redemptionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRedemptionResponse(rec))
	}
	writeJSON(w, http.StatusOK, redemptionHistoryResponse{Redemptions: out})
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if _, ok := h.requireRole(w, r, identity.RolePartnerStaff); !ok {
		return
	}

	var req redeemRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	payload, err := qr.DecodePayload(req.Code)
	if err != nil || payload.Kind == qr.KindProofToken {
		writeError(w, http.StatusBadRequest, "invalid_input", "not a redemption code")
		return
	}

	now := time.Now().UTC()
	rec, err := h.rewards.Redeem(r.Context(), payload.Value, now)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RedemptionsUsed.Inc()
	}
	if h.hub != nil && rec.UsedAt != nil {
		h.hub.RedemptionUsed(r.Context(), rec.UserID, rec.RewardID, *rec.UsedAt)
	}
	writeJSON(w, http.StatusOK, redeemResponse{Redemption: toRedemptionResponse(rec)})
}

// ---- auth helpers ----

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return identity.User{}, false
	}

	u, err := h.sessions.UserForToken(r.Context(), tok, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrSessionNotFound),
			errors.Is(err, auth.ErrSessionExpired),
			errors.Is(err, auth.ErrSessionRevoked):
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		default:
			h.log.Error("api.session.resolve.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "please retry later")
		}
		return identity.User{}, false
	}
	return u, true
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role identity.Role) (identity.User, bool) {
	u, ok := h.requireUser(w, r)
	if !ok {
		return identity.User{}, false
	}
	if u.Role != role {
		writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
		return identity.User{}, false
	}
	return u, true
}

// ---- error mapping ----

// writeDomainError maps typed domain failures to stable HTTP codes. The
// messages tell the operator what to do next; duplicates read as
// "already processed", never as a fresh error.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var short reward.InsufficientPointsError

	switch {
	case errors.Is(err, proof.ErrTokenNotFound):
		h.countFailure("token_not_found")
		writeError(w, http.StatusNotFound, "token_not_found", "unrecognized code, ask the user to regenerate")
	case errors.Is(err, proof.ErrTokenExpired):
		h.countFailure("token_expired")
		writeError(w, http.StatusGone, "token_expired", "code expired, ask the user to regenerate")
	case errors.Is(err, proof.ErrTokenConsumed):
		h.countFailure("token_consumed")
		writeError(w, http.StatusConflict, "token_consumed", "this drop-off was already processed")
	case errors.Is(err, proof.ErrTokenSuperseded):
		h.countFailure("token_superseded")
		writeError(w, http.StatusConflict, "token_superseded", "a newer code was issued, scan the latest one")

	case errors.Is(err, reward.ErrCodeNotFound):
		h.countFailure("code_not_found")
		writeError(w, http.StatusNotFound, "code_not_found", "unrecognized code, ask the user to rescan")
	case errors.Is(err, reward.ErrCodeExpired):
		h.countFailure("code_expired")
		writeError(w, http.StatusGone, "code_expired", "code expired, the user must redeem again")
	case errors.Is(err, reward.ErrCodeUsed):
		h.countFailure("code_used")
		writeError(w, http.StatusConflict, "code_used", "this code was already honored")

	case errors.Is(err, reward.ErrRewardNotFound):
		h.countFailure("reward_not_found")
		writeError(w, http.StatusNotFound, "reward_not_found", "reward unavailable, refresh the list")
	case errors.Is(err, reward.ErrLevelTooLow):
		h.countFailure("level_too_low")
		writeError(w, http.StatusForbidden, "level_too_low", "user level is below the reward's minimum")
	case errors.As(err, &short):
		h.countFailure("insufficient_points")
		writeError(w, http.StatusConflict, "insufficient_points", short.Error())

	case errors.Is(err, collection.ErrUserNotFound), errors.Is(err, reward.ErrUserNotFound):
		h.countFailure("user_not_found")
		writeError(w, http.StatusNotFound, "user_not_found", "user no longer exists")

	case errors.Is(err, collection.ErrInvalidInput),
		errors.Is(err, reward.ErrInvalidInput),
		errors.Is(err, proof.ErrInvalidInput):
		h.countFailure("invalid_input")
		writeError(w, http.StatusBadRequest, "invalid_input", "check material and weight and try again")

	default:
		h.log.Error("api.request.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "please retry later")
	}
}

func (h *Handler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) countFailure(code string) {
	if h.metrics != nil {
		h.metrics.WorkflowFailuresTotal.WithLabelValues(code).Inc()
	}
}
