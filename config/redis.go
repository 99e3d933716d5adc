package config

import (
	"context"
	"fmt"
	"log"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a client against addr and verifies it with a ping
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 50,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	log.Printf("Connected to redis at %s", addr)
	return rdb, nil
}

// NewLocker builds the distributed lock client used for capacity placement
func NewLocker(rdb *redis.Client) *redislock.Client {
	return redislock.New(rdb)
}
