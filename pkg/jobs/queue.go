// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrJobNotFound        = errors.New("job not found")
	ErrQueueClosed        = errors.New("job queue is closed")
	ErrNotDeadLetter      = errors.New("job is not in dead letter state")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// JobFilter for querying jobs.
type JobFilter struct {
	Type   JobType   `json:"type,omitempty"`
	Status JobStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// QueueStats provides queue metrics.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Running    int64 `json:"running"`
	Completed  int64 `json:"completed"`
	DeadLetter int64 `json:"dead_letter"`

	ByType map[JobType]int64 `json:"by_type"`
}

// Queue defines the interface for job queue operations.
type Queue interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue retrieves the next available job for processing.
	// Returns nil if no jobs are available.
	Dequeue(ctx context.Context, jobTypes ...JobType) (*Job, error)

	// Complete marks a job as successfully completed.
	Complete(ctx context.Context, jobID string) error

	// Fail records a failed attempt. If retries remain the job is
	// rescheduled with exponential backoff, otherwise it moves to
	// dead_letter.
	Fail(ctx context.Context, jobID string, err error) error

	// Requeue resets a dead-letter job for another round of attempts.
	Requeue(ctx context.Context, jobID string) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, jobID string) (*Job, error)

	// List returns jobs matching the filter.
	List(ctx context.Context, filter JobFilter) ([]*Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)

	// Cleanup removes completed jobs older than the given age.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Close shuts down the queue.
	Close() error
}

// Handler processes jobs of a specific type.
type Handler interface {
	// Type returns the job type this handler processes.
	Type() JobType

	// Handle processes the job and returns an error if it failed.
	Handle(ctx context.Context, job *Job) error
}

// backoff returns the delay before the next attempt: 2s, 4s, 8s...
func backoff(attempts int) time.Duration {
	return time.Duration(1<<attempts) * time.Second
}
