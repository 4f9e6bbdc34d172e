// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewMemoryGuard()

	ok, err := g.TryAcquire(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Duplicate delivery refused.
	ok, err = g.TryAcquire(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Released keys can be reacquired.
	require.NoError(t, g.Release(ctx, "evt-1"))
	ok, err = g.TryAcquire(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuardExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewMemoryGuard()

	ok, err := g.TryAcquire(ctx, "evt-1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	ok, err = g.TryAcquire(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	g := NewRedisGuard(client)

	ok, err := g.TryAcquire(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.TryAcquire(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.Release(ctx, "evt-1"))
	ok, err = g.TryAcquire(ctx, "evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
