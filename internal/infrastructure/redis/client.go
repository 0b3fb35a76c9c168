package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 100,
	})

	// Ping to test connection on startup
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
