// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapmedia/pkg/idempotency"
	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
)

// Worker polls the queue and executes jobs through registered handlers.
//
// Delivery is at-least-once; the idempotency guard suppresses duplicate
// executions of the same event+type across workers. A guard claim is
// released when the handler fails so the retry can run.
type Worker struct {
	id       string
	queue    Queue
	guard    idempotency.Guard
	handlers map[JobType]Handler

	pollInterval   time.Duration
	concurrency    int
	attemptTimeout time.Duration
	dedupTTL       time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// WorkerConfig configures the job worker.
type WorkerConfig struct {
	ID    string
	Queue Queue
	// Guard deduplicates deliveries. Nil disables dedup (single-worker
	// test setups).
	Guard          idempotency.Guard
	PollInterval   time.Duration
	Concurrency    int
	AttemptTimeout time.Duration
	// DedupTTL bounds how long a processed event ID is remembered.
	DedupTTL time.Duration
}

// NewWorker creates a new job worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.DedupTTL == 0 {
		cfg.DedupTTL = 24 * time.Hour
	}

	return &Worker{
		id:             cfg.ID,
		queue:          cfg.Queue,
		guard:          cfg.Guard,
		handlers:       make(map[JobType]Handler),
		pollInterval:   cfg.PollInterval,
		concurrency:    cfg.Concurrency,
		attemptTimeout: cfg.AttemptTimeout,
		dedupTTL:       cfg.DedupTTL,
		stopCh:         make(chan struct{}),
	}
}

// RegisterHandler registers a handler for a job type.
func (w *Worker) RegisterHandler(h Handler) {
	if h == nil {
		return
	}
	w.handlers[h.Type()] = h
	logger.Debug().
		Str("type", string(h.Type())).
		Msg("jobs: registered handler")
}

// Start begins processing jobs.
func (w *Worker) Start(ctx context.Context) {
	types := make([]JobType, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}

	if len(types) == 0 {
		logger.Warn().Msg("jobs: worker started with no handlers")
		return
	}

	logger.Info().
		Str("worker_id", w.id).
		Int("concurrency", w.concurrency).
		Int("handlers", len(types)).
		Msg("jobs: worker starting")

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.work(ctx, types)
	}
	workersActive.Add(float64(w.concurrency))
}

// Stop gracefully shuts down the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	workersActive.Sub(float64(w.concurrency))
	logger.Info().Str("worker_id", w.id).Msg("jobs: worker stopped")
}

func (w *Worker) work(ctx context.Context, types []JobType) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOne(ctx, types)
		}
	}
}

func (w *Worker) processOne(ctx context.Context, types []JobType) {
	job, err := w.queue.Dequeue(ctx, types...)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			dequeueErrors.Inc()
			logger.Error().Err(err).Msg("jobs: dequeue failed")
		}
		return
	}
	if job == nil {
		return
	}

	handler, ok := w.handlers[job.Type]
	if !ok {
		logger.Error().
			Str("job_id", job.ID).
			Str("type", string(job.Type)).
			Msg("jobs: no handler for job type")
		w.queue.Fail(ctx, job.ID, errors.New("no handler registered"))
		jobsProcessedTotal.WithLabelValues(string(job.Type), "no_handler").Inc()
		return
	}

	dedupKey := w.dedupKey(job)
	if w.guard != nil && dedupKey != "" {
		acquired, err := w.guard.TryAcquire(ctx, dedupKey, w.dedupTTL)
		if err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: idempotency check failed")
			w.queue.Fail(ctx, job.ID, err)
			return
		}
		if !acquired {
			// Already processed elsewhere; treat as success.
			logger.Debug().
				Str("job_id", job.ID).
				Str("dedup_key", dedupKey).
				Msg("jobs: duplicate delivery suppressed")
			w.queue.Complete(ctx, job.ID)
			jobsProcessedTotal.WithLabelValues(string(job.Type), "duplicate").Inc()
			return
		}
	}

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, w.attemptTimeout)
	err = handler.Handle(attemptCtx, job)
	cancel()
	jobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("type", string(job.Type)).
			Int("attempt", job.Attempts).
			Msg("jobs: job failed")
		if w.guard != nil && dedupKey != "" {
			if relErr := w.guard.Release(ctx, dedupKey); relErr != nil {
				logger.Warn().Err(relErr).Str("job_id", job.ID).Msg("jobs: idempotency release failed")
			}
		}
		w.queue.Fail(ctx, job.ID, err)
		jobRetries.WithLabelValues(string(job.Type)).Inc()
		jobsProcessedTotal.WithLabelValues(string(job.Type), "failed").Inc()
		return
	}

	w.queue.Complete(ctx, job.ID)
	jobsProcessedTotal.WithLabelValues(string(job.Type), "completed").Inc()
}

func (w *Worker) dedupKey(job *Job) string {
	var payload ProcessPayload
	if err := UnmarshalPayload(job.Payload, &payload); err != nil || payload.EventID == "" {
		return ""
	}
	return payload.DedupKey(job.Type)
}

// Queue returns the underlying queue (for testing/metrics).
func (w *Worker) Queue() Queue {
	return w.queue
}
