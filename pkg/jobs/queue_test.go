// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()

	job := &Job{Type: JobTypeScan, Payload: []byte(`{}`)}
	require.NoError(t, q.Enqueue(ctx, job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)

	got, err := q.Dequeue(ctx, JobTypeScan)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, StatusRunning, got.Status)

	// Queue is empty while the job runs.
	next, err := q.Dequeue(ctx, JobTypeScan)
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, q.Complete(ctx, job.ID))
	done, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotZero(t, done.CompletedAt)
}

func TestMemoryQueueTypeFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.Enqueue(ctx, &Job{Type: JobTypeThumbnail}))

	got, err := q.Dequeue(ctx, JobTypeScan)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = q.Dequeue(ctx, JobTypeThumbnail, JobTypeScan)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestMemoryQueuePriority(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.Enqueue(ctx, &Job{ID: "low", Type: JobTypeScan, Priority: PriorityLow}))
	require.NoError(t, q.Enqueue(ctx, &Job{ID: "high", Type: JobTypeScan, Priority: PriorityHigh}))

	got, err := q.Dequeue(ctx, JobTypeScan)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "high", got.ID)
}

func TestFailRetriesWithBackoff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()

	job := &Job{Type: JobTypeScan, MaxRetries: 3}
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx, JobTypeScan)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, q.Fail(ctx, job.ID, errors.New("boom")))

	failed, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, failed.Status)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, "boom", failed.LastError)

	// Backoff pushes it past "now", so an immediate dequeue finds nothing.
	got, err = q.Dequeue(ctx, JobTypeScan)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFailMovesToDeadLetter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()

	job := &Job{Type: JobTypeScan, MaxRetries: 1}
	require.NoError(t, q.Enqueue(ctx, job))

	_, err := q.Dequeue(ctx, JobTypeScan)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, errors.New("fatal")))

	dead, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeadLetter, dead.Status)
}

func TestRequeueDeadLetter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()

	job := &Job{Type: JobTypeScan, MaxRetries: 1}
	require.NoError(t, q.Enqueue(ctx, job))
	_, err := q.Dequeue(ctx, JobTypeScan)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, errors.New("fatal")))

	// Requeue only applies to dead-letter jobs.
	require.NoError(t, q.Requeue(ctx, job.ID))
	back, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, back.Status)
	assert.Equal(t, 0, back.Attempts)
	assert.Empty(t, back.LastError)

	assert.ErrorIs(t, q.Requeue(ctx, job.ID), ErrNotDeadLetter)
}

func TestQueueStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.Enqueue(ctx, &Job{Type: JobTypeScan}))
	require.NoError(t, q.Enqueue(ctx, &Job{Type: JobTypeNotify}))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.ByType[JobTypeScan])
}
