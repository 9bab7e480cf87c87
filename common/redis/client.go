package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/pubgate/gateway/common/config"
	"github.com/pubgate/gateway/common/logger"
	"github.com/redis/go-redis/v9"
)

// New creates a Redis client from configuration and verifies connectivity.
// Redis backs both the task queue and the CDN config key-value store.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("redis connected", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)

	return client, nil
}
