// Package app wires the Circuito server runtime: config, logging, stores,
// HTTP routes, and the realtime notification gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"circuito/cmd/identity"
	"circuito/cmd/internal/api"
	"circuito/cmd/internal/auth"
	"circuito/cmd/internal/collection"
	"circuito/cmd/internal/notify"
	"circuito/cmd/internal/proof"
	"circuito/cmd/internal/reward"
	"circuito/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// stores groups the per-package persistence backends behind their
// service-facing interfaces.
type stores struct {
	users       identity.Store
	sessions    auth.Store
	proofs      proof.Store
	collections collection.Store
	rewards     reward.Store
}

// App is the Circuito server runtime.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	sessions    *auth.Service
	proofs      *proof.Service
	collections *collection.Service
	rewards     *reward.Service

	hub *notify.Hub
	ws  *notify.WSGateway

	api *api.Handler

	httpMetrics    *HTTPMetrics
	metricsHandler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, pool, backends, dbEnabled, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	sessions, err := auth.NewService(log, backends.users, backends.sessions,
		password.FromEnv(), sessionOpts(cfg)...)
	if err != nil {
		return nil, err
	}

	proofs, err := proof.NewService(backends.proofs, proofOpts(cfg)...)
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub(log)

	collections, err := collection.NewService(log, proofs, backends.collections, hub)
	if err != nil {
		return nil, err
	}

	rewards, err := reward.NewService(log, backends.rewards, rewardOpts(cfg)...)
	if err != nil {
		return nil, err
	}

	var (
		apiMetrics     *api.Metrics
		httpMetrics    *HTTPMetrics
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		apiMetrics = api.NewMetrics(reg)
		httpMetrics = NewHTTPMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	apiHandler, err := api.NewHandler(log, api.LoadConfigFromEnv(),
		sessions, proofs, collections, rewards, hub, apiMetrics)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:            cfg,
		log:            log,
		store:          st,
		dbPool:         pool,
		dbEnabled:      dbEnabled,
		sessions:       sessions,
		proofs:         proofs,
		collections:    collections,
		rewards:        rewards,
		hub:            hub,
		ws:             notify.NewWSGateway(log, hub, sessions),
		api:            apiHandler,
		httpMetrics:    httpMetrics,
		metricsHandler: metricsHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.api, a.ws, a.metricsHandler)

	handler := WithRequestLogging(mux, a.log)
	handler = WithHTTPMetrics(handler, a.httpMetrics)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go a.sweepLoop(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

// sweepLoop expires stale proof tokens, redemption codes, and sessions in
// the background. Consumption paths already treat stale rows as expired,
// so the sweep only reclaims storage and flips statuses for reporting.
func (a *App) sweepLoop(ctx context.Context) {
	interval := nonZeroDuration(a.cfg.SweepInterval, 10*time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()

			if n, err := a.proofs.GC(ctx, now); err != nil {
				a.log.Warn("sweep.proofs.fail", "err", err)
			} else if n > 0 {
				a.log.Info("sweep.proofs", "removed", n)
			}

			if n, err := a.rewards.SweepExpired(ctx, now); err != nil {
				a.log.Warn("sweep.redemptions.fail", "err", err)
			} else if n > 0 {
				a.log.Info("sweep.redemptions", "expired", n)
			}

			if n, err := a.sessions.GC(ctx, now); err != nil {
				a.log.Warn("sweep.sessions.fail", "err", err)
			} else if n > 0 {
				a.log.Info("sweep.sessions", "removed", n)
			}
		}
	}
}

func sessionOpts(cfg Config) []auth.Option {
	if cfg.SessionTTL > 0 {
		return []auth.Option{auth.WithSessionTTL(cfg.SessionTTL)}
	}
	return nil
}

func proofOpts(cfg Config) []proof.Option {
	if cfg.ProofTokenTTL > 0 {
		return []proof.Option{proof.WithTTL(cfg.ProofTokenTTL)}
	}
	return nil
}

func rewardOpts(cfg Config) []reward.Option {
	if cfg.RedemptionTTL > 0 {
		return []reward.Option{reward.WithCodeTTL(cfg.RedemptionTTL)}
	}
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and the in-memory
// dev store.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, stores, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")

		users := identity.NewMemoryStore()
		collections := collection.NewMemoryStore(users)
		rewards := reward.NewMemoryStore(users)
		if cfg.DevSeed {
			seedDevCatalogs(collections, rewards)
		}

		backends := stores{
			users:       users,
			sessions:    auth.NewMemoryStore(),
			proofs:      proof.NewMemoryStore(),
			collections: collections,
			rewards:     rewards,
		}
		return nopStore{}, nil, backends, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, stores{}, false, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model: app owns the pool lifecycle; the per-package
	// Postgres stores borrow it.
	backends, err := newPostgresStores(pool)
	if err != nil {
		pool.Close()
		return nil, nil, stores{}, false, err
	}

	return dbStore{pool: pool}, pool, backends, true, nil
}

func newPostgresStores(pool *pgxpool.Pool) (stores, error) {
	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		return stores{}, err
	}
	sessions, err := auth.NewPostgresStore(pool)
	if err != nil {
		return stores{}, err
	}
	proofs, err := proof.NewPostgresStore(pool)
	if err != nil {
		return stores{}, err
	}
	collections, err := collection.NewPostgresStore(pool)
	if err != nil {
		return stores{}, err
	}
	rewards, err := reward.NewPostgresStore(pool)
	if err != nil {
		return stores{}, err
	}
	return stores{
		users:       users,
		sessions:    sessions,
		proofs:      proofs,
		collections: collections,
		rewards:     rewards,
	}, nil
}

// seedDevCatalogs loads a small demo catalog so the in-memory mode is
// usable out of the box.
func seedDevCatalogs(collections *collection.MemoryStore, rewards *reward.MemoryStore) {
	collections.SeedStations([]collection.Station{
		{ID: "station-escola-central", Name: "Escola Central", Address: "Rua das Flores, 100"},
		{ID: "station-praca-verde", Name: "Praca Verde", Address: "Av. Sustentavel, 45"},
	})
	rewards.SeedRewards([]reward.Reward{
		{
			ID:         "reward-cinema",
			PartnerID:  "partner-cinema",
			Title:      "Ingresso de cinema",
			PointsCost: 300,
			MinLevel:   2,
			Active:     true,
		},
		{
			ID:         "reward-lanche",
			PartnerID:  "partner-cantina",
			Title:      "Lanche na cantina",
			PointsCost: 100,
			MinLevel:   1,
			Active:     true,
		},
	})
}
