// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time interface verification
var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is an in-memory implementation of Queue for testing.
// NOT for production use - jobs are not persisted.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool
}

// NewMemoryQueue creates a new in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs: make(map[string]*Job),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	now := time.Now().UnixNano()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = DefaultMaxRetries
	}
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	if job.ScheduledAt == 0 {
		job.ScheduledAt = now
	}
	job.UpdatedAt = now
	q.jobs[job.ID] = job
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, jobTypes ...JobType) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	now := time.Now().UnixNano()
	var best *Job

	for _, job := range q.jobs {
		if job.Status != StatusPending {
			continue
		}
		if job.ScheduledAt > now {
			continue
		}
		if len(jobTypes) > 0 {
			match := false
			for _, t := range jobTypes {
				if job.Type == t {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}

		// Pick highest priority, oldest first
		if best == nil || job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.ScheduledAt < best.ScheduledAt) {
			best = job
		}
	}

	if best == nil {
		return nil, nil
	}

	best.Status = StatusRunning
	best.StartedAt = now
	best.UpdatedAt = now

	cp := *best
	return &cp, nil
}

func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	now := time.Now().UnixNano()
	job.Status = StatusCompleted
	job.CompletedAt = now
	job.UpdatedAt = now
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, jobID string, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	now := time.Now()
	job.Attempts++
	job.LastError = err.Error()
	job.UpdatedAt = now.UnixNano()

	if job.Attempts >= job.MaxRetries {
		job.Status = StatusDeadLetter
	} else {
		job.Status = StatusPending
		job.ScheduledAt = now.Add(backoff(job.Attempts)).UnixNano()
	}
	return nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusDeadLetter {
		return ErrNotDeadLetter
	}

	now := time.Now().UnixNano()
	job.Status = StatusPending
	job.Attempts = 0
	job.LastError = ""
	job.ScheduledAt = now
	job.UpdatedAt = now
	return nil
}

func (q *MemoryQueue) Get(ctx context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (q *MemoryQueue) List(ctx context.Context, filter JobFilter) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []*Job
	for _, job := range q.jobs {
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		cp := *job
		result = append(result, &cp)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (*QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := &QueueStats{ByType: make(map[JobType]int64)}
	for _, job := range q.jobs {
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusDeadLetter:
			stats.DeadLetter++
		}
		stats.ByType[job.Type]++
	}
	return stats, nil
}

func (q *MemoryQueue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UnixNano()
	removed := 0
	for id, job := range q.jobs {
		if job.Status == StatusCompleted && job.CompletedAt < cutoff {
			delete(q.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	return nil
}
