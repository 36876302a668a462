package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 2 * time.Second
)

// DB owns the pgx pool shared by the Postgres defense repositories.
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConnection opens the pool and proves it with a ping. An unreachable
// server is reported as models.ErrStorageUnavailable.
func NewConnection(cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", errors.Join(models.ErrStorageUnavailable, err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s:%d: %w", cfg.Host, cfg.Port, errors.Join(models.ErrStorageUnavailable, err))
	}

	logger.Info("postgres defense store connected",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_conns", int(cfg.MaxConns)))

	return &DB{Pool: pool, logger: logger}, nil
}

// NewFromPool wraps a pool whose lifecycle belongs to the caller.
func NewFromPool(pool *pgxpool.Pool, logger *slog.Logger) *DB {
	return &DB{Pool: pool, logger: logger}
}

func (db *DB) Close() {
	if db.logger != nil {
		db.logger.Info("closing postgres defense store")
	}
	db.Pool.Close()
}

// HealthCheck pings the pool for /health.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", errors.Join(models.ErrStorageUnavailable, err))
	}
	return nil
}
