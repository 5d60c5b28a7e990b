package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbConnectTimeout    = 3 * time.Second
	dbMaxConnLifetime   = 30 * time.Minute
	dbHealthCheckPeriod = time.Minute
)

// NewDBPool opens the chat store's pgx pool and verifies connectivity with a
// round-trip ping. It does not run migrations; the chat schema is owned by
// the platform's migration pipeline.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}

	// Chat connections are long-lived and bursty (history pages, unread
	// scans); recycle them on a schedule so the pool tracks server restarts.
	pcfg.MaxConnLifetime = dbMaxConnLifetime
	pcfg.HealthCheckPeriod = dbHealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := PingDB(ctx, pool, dbConnectTimeout); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// PingDB does a round-trip to the database within the timeout. The readiness
// endpoint uses it with a short deadline.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	return pool.Ping(ctx)
}
