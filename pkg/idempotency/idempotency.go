// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package idempotency deduplicates at-least-once event deliveries.
// Consumers acquire the event ID before processing; a second delivery of
// the same ID is refused until the first holder releases it (failure) or
// the record expires.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Guard tracks processed keys.
type Guard interface {
	// TryAcquire claims the key. Returns false if the key is already
	// claimed or processed.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release un-claims a key after a failed attempt so a redelivery can
	// retry it.
	Release(ctx context.Context, key string) error
}

// MemoryGuard is an in-process Guard for tests and single-node runs.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time // expiry per key
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates an empty in-process guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]time.Time)}
}

func (g *MemoryGuard) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if exp, ok := g.seen[key]; ok && exp.After(now) {
		return false, nil
	}
	g.seen[key] = now.Add(ttl)
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.seen, key)
	return nil
}
