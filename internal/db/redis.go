package db

import (
	"context"
	"fmt"

	"ctchen222/hotseat-tictactoe/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient creates a Redis client from cfg and pings it.
func NewRedisClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Ping the server to ensure the connection is established.
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}
