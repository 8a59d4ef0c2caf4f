package redisconn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect opens a redis client for the given address and verifies it with a
// ping. Redis is optional infrastructure here (it backs the per-character
// turn lease), so callers treat a connection failure as a degraded mode, not
// a startup-fatal one.
func Connect(addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
