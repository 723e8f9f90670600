package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"circuito/cmd/identity"
	"circuito/cmd/internal/auth"
	"circuito/cmd/internal/collection"
	"circuito/cmd/internal/notify"
	"circuito/cmd/internal/proof"
	"circuito/cmd/internal/reward"
	"circuito/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
)

type testEnv struct {
	srv   *httptest.Server
	users *identity.MemoryStore

	stationsSeed string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := identity.NewMemoryStore()

	pwCfg := password.DefaultConfig()
	pwCfg.Params.MemoryKiB = 8 * 1024
	pwCfg.Params.Iterations = 1

	sessions, err := auth.NewService(nil, users, auth.NewMemoryStore(), pwCfg)
	if err != nil {
		t.Fatalf("auth.NewService: %v", err)
	}
	proofs, err := proof.NewService(proof.NewMemoryStore())
	if err != nil {
		t.Fatalf("proof.NewService: %v", err)
	}

	hub := notify.NewHub(nil)

	collectionStore := collection.NewMemoryStore(users)
	collectionStore.SeedStations([]collection.Station{
		{ID: "station-1", Name: "Estacao Central", Address: "Rua A, 1"},
	})
	collections, err := collection.NewService(nil, proofs, collectionStore, hub)
	if err != nil {
		t.Fatalf("collection.NewService: %v", err)
	}

	rewardStore := reward.NewMemoryStore(users)
	rewardStore.SeedRewards([]reward.Reward{
		{ID: "rw-1", PartnerID: "partner-1", Title: "Desconto na cantina", PointsCost: 100, MinLevel: 1, Active: true},
	})
	rewards, err := reward.NewService(nil, rewardStore)
	if err != nil {
		t.Fatalf("reward.NewService: %v", err)
	}

	h, err := NewHandler(nil, Config{MaxBodyBytes: 1 << 20},
		sessions, proofs, collections, rewards, hub, NewMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, users: users, stationsSeed: "station-1"}
}

func (e *testEnv) createUser(t *testing.T, email, pw string, role identity.Role, stationID string) identity.User {
	t.Helper()

	pwCfg := password.DefaultConfig()
	pwCfg.Params.MemoryKiB = 8 * 1024
	pwCfg.Params.Iterations = 1
	hash, err := pwCfg.Hash(pw)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	in := identity.CreateUserInput{
		Email:        email,
		DisplayName:  "Test User",
		Role:         role,
		PasswordHash: hash,
	}
	if stationID != "" {
		in.StationID = &stationID
	}
	u, err := e.users.CreateUser(t.Context(), in)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (e *testEnv) login(t *testing.T, email, pw string) string {
	t.Helper()

	status, body := e.post(t, "", "/auth/login", map[string]any{"email": email, "password": pw})
	if status != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", status, body)
	}
	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("login response: %v", err)
	}
	if resp.Session.Token == "" {
		t.Fatalf("empty session token")
	}
	return resp.Session.Token
}

func (e *testEnv) do(t *testing.T, method, token, path string, reqBody any) (int, []byte) {
	t.Helper()

	var body *bytes.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do %s %s: %v", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res.StatusCode, buf.Bytes()
}

func (e *testEnv) post(t *testing.T, token, path string, body any) (int, []byte) {
	t.Helper()
	return e.do(t, http.MethodPost, token, path, body)
}

func (e *testEnv) get(t *testing.T, token, path string) (int, []byte) {
	t.Helper()
	return e.do(t, http.MethodGet, token, path, nil)
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("error body: %v (%s)", err, body)
	}
	return resp.Error.Code
}

func TestAPI_CollectionFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "aluno@escola.br", "senha-forte", identity.RoleStudent, "")
	env.createUser(t, "embaixador@escola.br", "senha-forte", identity.RoleAmbassador, env.stationsSeed)

	student := env.login(t, "aluno@escola.br", "senha-forte")
	ambassador := env.login(t, "embaixador@escola.br", "senha-forte")

	status, body := env.post(t, student, "/proof/issue", nil)
	if status != http.StatusOK {
		t.Fatalf("issue status = %d, body = %s", status, body)
	}
	var issued proofIssueResponse
	if err := json.Unmarshal(body, &issued); err != nil {
		t.Fatalf("issue response: %v", err)
	}
	if issued.Token == "" || issued.QRPayload == "" {
		t.Fatalf("unexpected issue response: %+v", issued)
	}

	// The ambassador submits the scanned payload as-is.
	status, body = env.post(t, ambassador, "/collections/validate", map[string]any{
		"token": issued.QRPayload, "material": "plastic", "weight_kg": 2.5,
	})
	if status != http.StatusOK {
		t.Fatalf("validate status = %d, body = %s", status, body)
	}
	var validated validateCollectionResponse
	if err := json.Unmarshal(body, &validated); err != nil {
		t.Fatalf("validate response: %v", err)
	}
	if validated.Collection.PointsAwarded != 25 || validated.NewBalance != 25 {
		t.Fatalf("unexpected validation: %+v", validated)
	}

	// A duplicate scan reads as already processed.
	status, body = env.post(t, ambassador, "/collections/validate", map[string]any{
		"token": issued.QRPayload, "material": "plastic", "weight_kg": 2.5,
	})
	if status != http.StatusConflict || errorCode(t, body) != "token_consumed" {
		t.Fatalf("duplicate validate: status = %d, body = %s", status, body)
	}

	// /me reflects the credit.
	status, body = env.get(t, student, "/me")
	if status != http.StatusOK {
		t.Fatalf("me status = %d", status)
	}
	var me meResponse
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("me response: %v", err)
	}
	if me.User.ImpactPoints != 25 || me.User.Level != 1 || me.User.LevelName != "Iniciante" {
		t.Fatalf("unexpected me: %+v", me.User)
	}
	if me.User.PointsToNext == nil || *me.User.PointsToNext != 75 {
		t.Fatalf("points_to_next = %v, want 75", me.User.PointsToNext)
	}

	status, body = env.get(t, student, "/collections/history")
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	var history collectionHistoryResponse
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("history response: %v", err)
	}
	if len(history.Collections) != 1 || history.Collections[0].StationID != env.stationsSeed {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestAPI_RedemptionFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	student := func() string {
		u := env.createUser(t, "aluno@escola.br", "senha-forte", identity.RoleStudent, "")
		if _, _, _, _, err := env.users.CreditPoints(t.Context(), u.ID, 150); err != nil {
			t.Fatalf("CreditPoints: %v", err)
		}
		return env.login(t, "aluno@escola.br", "senha-forte")
	}()
	env.createUser(t, "parceiro@loja.br", "senha-forte", identity.RolePartnerStaff, "")
	partner := env.login(t, "parceiro@loja.br", "senha-forte")

	status, body := env.get(t, student, "/rewards")
	if status != http.StatusOK {
		t.Fatalf("rewards status = %d", status)
	}
	var list rewardsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("rewards response: %v", err)
	}
	if len(list.Rewards) != 1 || list.Rewards[0].ID != "rw-1" {
		t.Fatalf("unexpected rewards: %+v", list)
	}

	status, body = env.post(t, student, "/redemptions", map[string]any{"reward_id": "rw-1"})
	if status != http.StatusOK {
		t.Fatalf("mint status = %d, body = %s", status, body)
	}
	var minted redemptionMintResponse
	if err := json.Unmarshal(body, &minted); err != nil {
		t.Fatalf("mint response: %v", err)
	}
	if minted.Code == "" || minted.NewBalance != 50 {
		t.Fatalf("unexpected mint: %+v", minted)
	}

	// A second mint fails on the remaining 50 points.
	status, body = env.post(t, student, "/redemptions", map[string]any{"reward_id": "rw-1"})
	if status != http.StatusConflict || errorCode(t, body) != "insufficient_points" {
		t.Fatalf("second mint: status = %d, body = %s", status, body)
	}

	status, body = env.post(t, partner, "/redemptions/redeem", map[string]any{"code": minted.QRPayload})
	if status != http.StatusOK {
		t.Fatalf("redeem status = %d, body = %s", status, body)
	}
	var redeemed redeemResponse
	if err := json.Unmarshal(body, &redeemed); err != nil {
		t.Fatalf("redeem response: %v", err)
	}
	if redeemed.Redemption.Status != string(reward.StatusUsed) {
		t.Fatalf("unexpected redeem: %+v", redeemed)
	}

	// The second device scanning the same code sees already honored.
	status, body = env.post(t, partner, "/redemptions/redeem", map[string]any{"code": minted.QRPayload})
	if status != http.StatusConflict || errorCode(t, body) != "code_used" {
		t.Fatalf("duplicate redeem: status = %d, body = %s", status, body)
	}

	status, body = env.get(t, student, "/redemptions/history")
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	var history redemptionHistoryResponse
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("history response: %v", err)
	}
	if len(history.Redemptions) != 1 || history.Redemptions[0].Status != string(reward.StatusUsed) {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestAPI_AuthAndRoles(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "aluno@escola.br", "senha-forte", identity.RoleStudent, "")
	student := env.login(t, "aluno@escola.br", "senha-forte")

	// Wrong password.
	status, body := env.post(t, "", "/auth/login", map[string]any{"email": "aluno@escola.br", "password": "errada"})
	if status != http.StatusUnauthorized || errorCode(t, body) != "invalid_credentials" {
		t.Fatalf("bad login: status = %d, body = %s", status, body)
	}

	// Missing token.
	status, _ = env.get(t, "", "/me")
	if status != http.StatusUnauthorized {
		t.Fatalf("me without token: status = %d", status)
	}

	// Students cannot validate collections.
	status, _ = env.post(t, student, "/collections/validate", map[string]any{
		"token": "x", "material": "paper", "weight_kg": 1,
	})
	if status != http.StatusForbidden {
		t.Fatalf("validate as student: status = %d", status)
	}

	// Students cannot redeem partner codes.
	status, _ = env.post(t, student, "/redemptions/redeem", map[string]any{"code": "x"})
	if status != http.StatusForbidden {
		t.Fatalf("redeem as student: status = %d", status)
	}

	// Logout invalidates the session.
	status, _ = env.post(t, student, "/auth/logout", nil)
	if status != http.StatusNoContent {
		t.Fatalf("logout status = %d", status)
	}
	status, _ = env.get(t, student, "/me")
	if status != http.StatusUnauthorized {
		t.Fatalf("me after logout: status = %d", status)
	}
}

func TestAPI_AmbassadorWithoutStation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "embaixador@escola.br", "senha-forte", identity.RoleAmbassador, "")
	ambassador := env.login(t, "embaixador@escola.br", "senha-forte")

	status, body := env.post(t, ambassador, "/collections/validate", map[string]any{
		"token": "x", "material": "paper", "weight_kg": 1,
	})
	if status != http.StatusForbidden || errorCode(t, body) != "no_station" {
		t.Fatalf("status = %d, body = %s", status, body)
	}
}

func TestAPI_RenderQR(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "aluno@escola.br", "senha-forte", identity.RoleStudent, "")
	student := env.login(t, "aluno@escola.br", "senha-forte")

	status, body := env.post(t, student, "/qr", map[string]any{
		"kind": "proof_token", "value": "tok-123", "size": 128,
	})
	if status != http.StatusOK {
		t.Fatalf("qr status = %d, body = %s", status, body)
	}
	if !bytes.HasPrefix(body, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("response is not a PNG")
	}

	status, body = env.post(t, student, "/qr", map[string]any{"kind": "bogus", "value": "x"})
	if status != http.StatusBadRequest {
		t.Fatalf("qr bad kind: status = %d, body = %s", status, body)
	}
}

func TestAPI_ValidateRejectsRedemptionPayload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.createUser(t, "embaixador@escola.br", "senha-forte", identity.RoleAmbassador, env.stationsSeed)
	ambassador := env.login(t, "embaixador@escola.br", "senha-forte")

	payload := fmt.Sprintf(`{"kind":%q,"value":"code-123"}`, "redemption_code")
	status, body := env.post(t, ambassador, "/collections/validate", map[string]any{
		"token": payload, "material": "paper", "weight_kg": 1,
	})
	if status != http.StatusBadRequest || !strings.Contains(string(body), "invalid_input") {
		t.Fatalf("status = %d, body = %s", status, body)
	}
}
