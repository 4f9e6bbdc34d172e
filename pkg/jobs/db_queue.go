// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Compile-time interface verification
var _ Queue = (*DBQueue)(nil)

// DBQueue is a PostgreSQL-backed durable queue. Dequeue uses
// FOR UPDATE SKIP LOCKED so multiple worker processes can poll the same
// table without stepping on each other.
type DBQueue struct {
	db *sql.DB
}

// NewDBQueue creates a queue on an existing database handle. The
// processing_jobs table is created by the store migrations.
func NewDBQueue(db *sql.DB) *DBQueue {
	return &DBQueue{db: db}
}

const jobColumns = `id, job_type, status, priority, payload, attempts, max_retries, last_error, created_at, updated_at, scheduled_at, started_at, completed_at`

func (q *DBQueue) Enqueue(ctx context.Context, job *Job) error {
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

	payload := job.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, job_type, status, priority, payload, attempts, max_retries, last_error, created_at, updated_at, scheduled_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		job.ID,
		string(job.Type),
		string(job.Status),
		int(job.Priority),
		string(payload),
		job.Attempts,
		job.MaxRetries,
		job.LastError,
		job.CreatedAt,
		job.UpdatedAt,
		job.ScheduledAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (q *DBQueue) Dequeue(ctx context.Context, jobTypes ...JobType) (*Job, error) {
	now := time.Now().UnixNano()

	query := `
		SELECT ` + jobColumns + `
		FROM processing_jobs
		WHERE status = 'pending' AND scheduled_at <= $1
	`
	args := []any{now}
	if len(jobTypes) > 0 {
		placeholders := make([]string, 0, len(jobTypes))
		for _, t := range jobTypes {
			args = append(args, string(t))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		query += ` AND job_type IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += `
		ORDER BY priority DESC, scheduled_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.Status = StatusRunning
	job.StartedAt = now
	job.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'running', started_at = $1, updated_at = $1
		WHERE id = $2
	`, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}
	return job, nil
}

func (q *DBQueue) Complete(ctx context.Context, jobID string) error {
	now := time.Now().UnixNano()
	res, err := q.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'completed', completed_at = $1, updated_at = $1
		WHERE id = $2
	`, now, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireRow(res)
}

func (q *DBQueue) Fail(ctx context.Context, jobID string, failure error) error {
	job, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Attempts++
	if job.Attempts >= job.MaxRetries {
		res, err := q.db.ExecContext(ctx, `
			UPDATE processing_jobs
			SET status = 'dead_letter', attempts = $1, last_error = $2, updated_at = $3
			WHERE id = $4
		`, job.Attempts, failure.Error(), now.UnixNano(), jobID)
		if err != nil {
			return fmt.Errorf("dead-letter job: %w", err)
		}
		return requireRow(res)
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'pending', attempts = $1, last_error = $2, scheduled_at = $3, updated_at = $4
		WHERE id = $5
	`, job.Attempts, failure.Error(), now.Add(backoff(job.Attempts)).UnixNano(), now.UnixNano(), jobID)
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	return requireRow(res)
}

func (q *DBQueue) Requeue(ctx context.Context, jobID string) error {
	now := time.Now().UnixNano()
	res, err := q.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'pending', attempts = 0, last_error = '', scheduled_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'dead_letter'
	`, now, jobID)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := q.Get(ctx, jobID); err != nil {
			return err
		}
		return ErrNotDeadLetter
	}
	return nil
}

func (q *DBQueue) Get(ctx context.Context, jobID string) (*Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM processing_jobs WHERE id = $1
	`, jobID))
}

func (q *DBQueue) List(ctx context.Context, filter JobFilter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs`
	var conds []string
	var args []any
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("job_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (q *DBQueue) Stats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{ByType: make(map[JobType]int64)}

	rows, err := q.db.QueryContext(ctx, `
		SELECT status, job_type, COUNT(*) FROM processing_jobs GROUP BY status, job_type
	`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, jobType string
		var count int64
		if err := rows.Scan(&status, &jobType, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		switch JobStatus(status) {
		case StatusPending:
			stats.Pending += count
		case StatusRunning:
			stats.Running += count
		case StatusCompleted:
			stats.Completed += count
		case StatusDeadLetter:
			stats.DeadLetter += count
		}
		stats.ByType[JobType(jobType)] += count
	}
	return stats, rows.Err()
}

func (q *DBQueue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM processing_jobs WHERE status = 'completed' AND completed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the database handle is owned by the store.
func (q *DBQueue) Close() error {
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row *sql.Row) (*Job, error) {
	job, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func scanJobRow(row rowScanner) (*Job, error) {
	var job Job
	var jobType, status, payload string
	var priority int
	err := row.Scan(&job.ID, &jobType, &status, &priority, &payload, &job.Attempts,
		&job.MaxRetries, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
		&job.ScheduledAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Type = JobType(jobType)
	job.Status = JobStatus(status)
	job.Priority = JobPriority(priority)
	job.Payload = []byte(payload)
	return &job, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
