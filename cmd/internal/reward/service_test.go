package reward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"circuito/cmd/identity"
)

func newTestService(t *testing.T) (*Service, *MemoryStore, *identity.MemoryStore) {
	t.Helper()

	users := identity.NewMemoryStore()
	store := NewMemoryStore(users)
	svc, err := NewService(nil, store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, users
}

func newTestUser(t *testing.T, users *identity.MemoryStore, points int) identity.User {
	t.Helper()

	u, err := users.CreateUser(context.Background(), identity.CreateUserInput{
		Email:        "student-" + time.Now().Format("150405.000000000") + "@test.local",
		DisplayName:  "Test Student",
		Role:         identity.RoleStudent,
		PasswordHash: "$argon2id$fake",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if points > 0 {
		if _, _, _, _, err := users.CreditPoints(context.Background(), u.ID, points); err != nil {
			t.Fatalf("CreditPoints: %v", err)
		}
	}
	return u
}

func seedReward(store *MemoryStore, id string, cost, minLevel int, active bool) Reward {
	rw := Reward{
		ID:         id,
		PartnerID:  "partner-1",
		Title:      "Desconto na cantina",
		PointsCost: cost,
		MinLevel:   minLevel,
		Active:     active,
		CreatedAt:  time.Now().UTC(),
	}
	store.SeedRewards([]Reward{rw})
	return rw
}

func TestRequestRedemption_MintAndRedeem(t *testing.T) {
	t.Parallel()

	svc, store, users := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := newTestUser(t, users, 150)
	rw := seedReward(store, "rw-1", 100, 1, true)

	minted, err := svc.RequestRedemption(ctx, user.ID, rw.ID, now)
	if err != nil {
		t.Fatalf("RequestRedemption: %v", err)
	}
	if minted.Code == "" {
		t.Fatalf("expected a plain code")
	}
	if minted.NewBalance != 50 {
		t.Fatalf("balance = %d, want 50", minted.NewBalance)
	}
	if got := minted.Redemption.ExpiresAt.Sub(minted.Redemption.IssuedAt); got != DefaultCodeTTL {
		t.Fatalf("ttl = %v, want %v", got, DefaultCodeTTL)
	}

	// Deduction dropped the user back below Bronze.
	u, err := users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.ImpactPoints != 50 || u.Level != 1 {
		t.Fatalf("user = %d points, level %d; want 50, 1", u.ImpactPoints, u.Level)
	}

	rec, err := svc.Redeem(ctx, minted.Code, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if rec.Status != StatusUsed || rec.UsedAt == nil {
		t.Fatalf("unexpected redemption: %+v", rec)
	}

	if _, err := svc.Redeem(ctx, minted.Code, now.Add(2*time.Hour)); !errors.Is(err, ErrCodeUsed) {
		t.Fatalf("expected ErrCodeUsed, got %v", err)
	}
}

func TestRequestRedemption_Failures(t *testing.T) {
	t.Parallel()

	svc, store, users := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := newTestUser(t, users, 50)

	if _, err := svc.RequestRedemption(ctx, user.ID, "missing", now); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound, got %v", err)
	}

	seedReward(store, "rw-inactive", 10, 1, false)
	if _, err := svc.RequestRedemption(ctx, user.ID, "rw-inactive", now); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound for inactive, got %v", err)
	}

	seedReward(store, "rw-gated", 10, 3, true)
	if _, err := svc.RequestRedemption(ctx, user.ID, "rw-gated", now); !errors.Is(err, ErrLevelTooLow) {
		t.Fatalf("expected ErrLevelTooLow, got %v", err)
	}

	seedReward(store, "rw-pricey", 200, 1, true)
	_, err := svc.RequestRedemption(ctx, user.ID, "rw-pricey", now)
	var short InsufficientPointsError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientPointsError, got %v", err)
	}
	if short.Required != 200 || short.Available != 50 {
		t.Fatalf("shortfall = %+v", short)
	}
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected wrap of ErrInsufficientPoints")
	}

	// The failed attempts left the balance alone.
	u, err := users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.ImpactPoints != 50 {
		t.Fatalf("balance = %d, want 50", u.ImpactPoints)
	}
}

func TestRequestRedemption_ConcurrentExactBalance(t *testing.T) {
	t.Parallel()

	svc, store, users := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := newTestUser(t, users, 100)
	rw := seedReward(store, "rw-1", 100, 1, true)

	var wg sync.WaitGroup
	wg.Add(2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.RequestRedemption(ctx, user.ID, rw.ID, now)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success, short := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrInsufficientPoints):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 || short != 1 {
		t.Fatalf("success = %d, short = %d; want 1, 1", success, short)
	}

	u, err := users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if u.ImpactPoints != 0 {
		t.Fatalf("balance = %d, want 0", u.ImpactPoints)
	}
}

func TestRedeem_ConcurrentSingleUse(t *testing.T) {
	t.Parallel()

	svc, store, users := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := newTestUser(t, users, 100)
	rw := seedReward(store, "rw-1", 100, 1, true)

	minted, err := svc.RequestRedemption(ctx, user.ID, rw.ID, now)
	if err != nil {
		t.Fatalf("RequestRedemption: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	wg.Add(attempts)
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Redeem(ctx, minted.Code, now.Add(time.Minute))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrCodeUsed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}
}

func TestRedeem_ExpiryAndSweep(t *testing.T) {
	t.Parallel()

	svc, store, users := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := newTestUser(t, users, 200)
	rw := seedReward(store, "rw-1", 100, 1, true)

	minted, err := svc.RequestRedemption(ctx, user.ID, rw.ID, now)
	if err != nil {
		t.Fatalf("RequestRedemption: %v", err)
	}

	// 25 hours later the code is past its 24h window.
	if _, err := svc.Redeem(ctx, minted.Code, now.Add(25*time.Hour)); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	history, err := svc.HistoryForUser(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("HistoryForUser: %v", err)
	}
	if len(history) != 1 || history[0].Status != StatusExpired {
		t.Fatalf("unexpected history: %+v", history)
	}

	// Expired is terminal: a later in-window timestamp cannot revive it.
	if _, err := svc.Redeem(ctx, minted.Code, now.Add(time.Hour)); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired after flip, got %v", err)
	}

	second, err := svc.RequestRedemption(ctx, user.ID, rw.ID, now)
	if err != nil {
		t.Fatalf("RequestRedemption second: %v", err)
	}
	n, err := svc.SweepExpired(ctx, now.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if _, err := svc.Redeem(ctx, second.Code, now.Add(26*time.Hour)); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired for swept code, got %v", err)
	}
}

func TestRedeem_UnknownCode(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	if _, err := svc.Redeem(context.Background(), "garbled", time.Now().UTC()); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), "", time.Now().UTC()); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound for empty input, got %v", err)
	}
}
