// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobs provides the durable queue and workers for async media
// processing. Jobs are created by the dispatcher from upload events and
// executed at-least-once; handlers are idempotent so redeliveries and
// retries are safe.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"
)

// Default configuration values
const (
	DefaultPollInterval   = time.Second
	DefaultConcurrency    = 5
	DefaultMaxRetries     = 3
	DefaultAttemptTimeout = 5 * time.Minute
)

// JobType identifies the kind of processing for routing to handlers.
type JobType string

const (
	JobTypeScan      JobType = "scan"      // content scanning (malware, policy)
	JobTypeThumbnail JobType = "thumbnail" // image thumbnail generation
	JobTypePreview   JobType = "preview"   // document/image preview
	JobTypeTranscode JobType = "transcode" // audio/video transcode
	JobTypeNotify    JobType = "notify"    // downstream notification
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"     // Waiting to be picked up
	StatusRunning    JobStatus = "running"     // Currently being processed
	StatusCompleted  JobStatus = "completed"   // Successfully finished
	StatusDeadLetter JobStatus = "dead_letter" // Failed permanently, awaiting operator action
)

// JobPriority allows urgent jobs to be processed first.
type JobPriority int

const (
	PriorityLow    JobPriority = 0
	PriorityNormal JobPriority = 5
	PriorityHigh   JobPriority = 10
)

// Job is one unit of processing work for a single file.
type Job struct {
	ID       string      `json:"id"`
	Type     JobType     `json:"type"`
	Status   JobStatus   `json:"status"`
	Priority JobPriority `json:"priority"`

	// Payload is the JSON-encoded ProcessPayload.
	Payload json.RawMessage `json:"payload"`

	// Retry handling. Attempts counts finished attempts; once it reaches
	// MaxRetries the job moves to dead_letter.
	Attempts   int    `json:"attempts"`
	MaxRetries int    `json:"max_retries"`
	LastError  string `json:"last_error,omitempty"`

	CreatedAt   int64 `json:"created_at"` // Unix nanoseconds
	UpdatedAt   int64 `json:"updated_at"`
	ScheduledAt int64 `json:"scheduled_at"` // not dequeued before this time
	StartedAt   int64 `json:"started_at,omitempty"`
	CompletedAt int64 `json:"completed_at,omitempty"`
}

// ProcessPayload is the payload carried by every processing job. EventID
// is the originating event's idempotency key; WorkerID-scoped dedup keys
// are derived from it plus the job type.
type ProcessPayload struct {
	EventID     string `json:"event_id"`
	FileID      string `json:"file_id"`
	TenantID    string `json:"tenant_id"`
	StorageKey  string `json:"storage_key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// DedupKey returns the idempotency key for this payload under the given
// job type.
func (p *ProcessPayload) DedupKey(t JobType) string {
	return string(t) + ":" + p.EventID
}

// MarshalPayload is a helper to marshal a payload struct to JSON.
func MarshalPayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload decodes a job payload into v.
func UnmarshalPayload(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
