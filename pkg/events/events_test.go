// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

func TestMemoryBrokerPubSub(t *testing.T) {
	t.Parallel()
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "topic-a")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "topic-a", []byte("hello")))
	require.NoError(t, b.Publish(ctx, "topic-b", []byte("other")))

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	// Nothing from the other topic.
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitterFillsEnvelope(t *testing.T) {
	t.Parallel()
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, TopicUploads)
	require.NoError(t, err)

	e := NewEmitter(b)
	actor := types.Actor{TenantID: "t", ActorID: "alice", ActorType: types.ActorTypeUser}
	file := &types.FileEntity{
		FileID:     "f-1",
		TenantID:   "t",
		Size:       42,
		StorageKey: "t/f-1",
		Checksum:   "sha256:abc",
	}
	e.EmitFileUploaded(ctx, actor, file, "up-1")

	select {
	case msg := <-ch:
		env, err := Unmarshal(msg)
		require.NoError(t, err)
		assert.Equal(t, EventFileUploaded, env.EventName)
		assert.NotEmpty(t, env.EventID)
		assert.NotZero(t, env.Timestamp)
		assert.Equal(t, "f-1", env.FileID)
		assert.Equal(t, "up-1", env.UploadID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestNoopEmitterDrops(t *testing.T) {
	t.Parallel()
	e := NoopEmitter()
	// Must be a safe no-op.
	e.Emit(context.Background(), TopicUploads, &Envelope{EventName: EventFileDeleted})
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	b, err := NewRedisBroker(DefaultRedisConfig(mr.Addr()))
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "zapmedia:test")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "zapmedia:test", []byte(`{"event_id":"e1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"event_id":"e1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received from redis")
	}
}
