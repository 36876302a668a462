package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connection established", slog.String("addr", cfg.Addr), slog.Int("db", cfg.DB))
	return client, nil
}

// MapRedisError translates go-redis errors into model sentinels. Anything
// that is not a server reply means the store could not be reached.
func MapRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return models.ErrNotFound
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		return err
	}

	return errors.Join(models.ErrStorageUnavailable, err)
}
