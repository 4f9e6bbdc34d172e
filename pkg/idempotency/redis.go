// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "zapmedia:idem:"

// RedisGuard implements Guard with SET NX, sharing the dedup window
// across all worker processes.
type RedisGuard struct {
	client *redis.Client
}

var _ Guard = (*RedisGuard)(nil)

// NewRedisGuard creates a guard on an existing Redis client.
func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency acquire: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}
