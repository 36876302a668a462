package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/gatekeeper/internal/background"
	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/BradenHooton/gatekeeper/internal/repositories"
	"github.com/BradenHooton/gatekeeper/internal/services"
)

type blockStore interface {
	services.BlockedIdentityRepository
	background.ExpiredSweeper
}

type eventStore interface {
	services.SecurityLogRepository
	background.AgeSweeper
}

type csrfStore interface {
	services.CSRFTokenRepository
	background.AgeSweeper
}

type revocationStore interface {
	services.SessionRevocationRepository
	background.ExpiredSweeper
}

// stores is one storage backend behind the defense engine
type stores struct {
	attempts    services.LoginAttemptRepository
	blocks      blockStore
	events      eventStore
	csrf        csrfStore
	revocations revocationStore
	health      handlers.HealthCheckFunc
	close       func()
}

// openStores connects the backend selected by STORE_BACKEND
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return &stores{
			attempts:    repositories.NewLoginAttemptRepository(db),
			blocks:      repositories.NewBlockedIdentityRepository(db),
			events:      repositories.NewSecurityLogRepository(db),
			csrf:        repositories.NewCSRFTokenRepository(db),
			revocations: repositories.NewSessionRevocationRepository(db),
			health:      db.HealthCheck,
			close:       db.Close,
		}, nil

	case config.BackendRedis:
		client, err := database.NewRedisClient(&cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		prefix := cfg.Redis.Prefix
		return &stores{
			attempts:    repositories.NewRedisLoginAttemptRepository(client, prefix),
			blocks:      repositories.NewRedisBlockedIdentityRepository(client, prefix),
			events:      repositories.NewRedisSecurityLogRepository(client, prefix),
			csrf:        repositories.NewRedisCSRFTokenRepository(client, prefix, cfg.Session.Timeout),
			revocations: repositories.NewRedisSessionRevocationRepository(client, prefix),
			health: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			close: func() { _ = client.Close() },
		}, nil

	case config.BackendMemory:
		logger.Warn("using in-memory defense store; state is lost on restart and not shared between instances")
		return &stores{
			attempts:    repositories.NewMemoryLoginAttemptRepository(),
			blocks:      repositories.NewMemoryBlockedIdentityRepository(),
			events:      repositories.NewMemorySecurityLogRepository(),
			csrf:        repositories.NewMemoryCSRFTokenRepository(),
			revocations: repositories.NewMemorySessionRevocationRepository(),
			health:      func(ctx context.Context) error { return nil },
			close:       func() {},
		}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
