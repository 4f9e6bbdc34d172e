// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package events provides the pub/sub layer between the upload services
// and the async processing workers.
package events

import (
	"context"
	"sync"
)

// Publisher delivers raw event bytes to a topic.
type Publisher interface {
	// Name returns the publisher identifier for logs and metrics.
	Name() string
	Publish(ctx context.Context, topic string, data []byte) error
	Close() error
}

// Subscriber consumes raw event bytes from a topic. The returned channel
// is closed when ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
}

// Broker is a Publisher that can also be subscribed to.
type Broker interface {
	Publisher
	Subscriber
}

// MemoryBroker is an in-process Broker for tests and single-node runs.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker creates an in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string][]chan []byte)}
}

func (b *MemoryBroker) Name() string { return "memory" }

func (b *MemoryBroker) Publish(ctx context.Context, topic string, data []byte) error {
	b.mu.Lock()
	subs := append([]chan []byte(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- data:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		list := b.subs[topic]
		for i, c := range list {
			if c == ch {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (b *MemoryBroker) Close() error { return nil }
