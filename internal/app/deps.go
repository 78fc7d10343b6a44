package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/auth"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/config"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/db"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/handlers"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/middleware"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/repositories"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/storage"
	"github.com/gunde1hikaye-sketch/mertinan-tryon/internal/tryon"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup drains background workers and must run before
// the process exits.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	sessionStore := repositories.NewPostgresSessionStore(pool)
	sessions := auth.NewManager(15*time.Minute, 24*time.Hour, sessionStore)

	ledger := repositories.NewPostgresCreditLedger(pool)
	tryons := repositories.NewPostgresTryOnRepository(pool)

	pipeline := &tryon.Pipeline{
		Verifier:      sessions,
		Ledger:        ledger,
		Generator:     tryon.NewFalClient(cfg.GenerationURL, cfg.GenerationKey, cfg.GenerationTimeout),
		Records:       tryons,
		MaxImageBytes: cfg.MaxImageBytes,
	}

	cleanup := func(context.Context) error { return nil }

	// Result archiving only runs when a bucket is configured; without one the
	// history endpoint serves the backend-hosted URLs for as long as they last.
	if cfg.ObjectStore.Bucket != "" {
		store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, fmt.Errorf("configure object store: %w", err)
		}

		archiver := tryon.NewArchiver(store, tryons, tryon.ArchiverConfig{
			QueueSize: cfg.Archiver.QueueSize,
			Workers:   cfg.Archiver.Workers,
		}, slog.Default())
		pipeline.Archive = archiver
		cleanup = archiver.Shutdown
	}

	deps := handlers.Dependencies{
		Users:         repositories.NewPostgresUserRepository(pool),
		Sessions:      sessions,
		Pipeline:      pipeline,
		Credits:       ledger,
		History:       tryons,
		TryOnLimiter:  middleware.NewIPRateLimiter(cfg.TryOnRatePerMinute, time.Minute, cfg.TryOnRatePerMinute, 10*time.Minute),
		LoginLimiter:  middleware.NewIPRateLimiter(cfg.LoginRatePerMinute, time.Minute, cfg.LoginRatePerMinute, 10*time.Minute),
		SignupCredits: cfg.SignupCredits,
	}

	return deps, cleanup, nil
}
