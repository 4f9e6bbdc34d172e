// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records state-changing actions in an append-only log.
// Recording is best-effort: a failed append is logged and counted but
// never fails the calling operation.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// Recorder appends audit entries for pipeline actions.
type Recorder struct {
	store store.AuditStore
}

// NewRecorder creates a Recorder on top of an AuditStore.
func NewRecorder(as store.AuditStore) *Recorder {
	return &Recorder{store: as}
}

// Entry is the caller-facing shape of one audited action. Actor context
// is always passed explicitly, including from async workers.
type Entry struct {
	Actor    types.Actor
	Action   types.AuditAction
	FileID   string
	UploadID string
	Metadata map[string]string
}

// Record appends the entry. Errors are swallowed after logging so audit
// failures cannot abort uploads or worker progress.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	rec := &types.AuditEntry{
		ID:        uuid.New(),
		Action:    e.Action,
		ActorType: e.Actor.ActorType,
		ActorID:   e.Actor.ActorID,
		TenantID:  e.Actor.TenantID,
		FileID:    e.FileID,
		UploadID:  e.UploadID,
		SourceIP:  e.Actor.SourceIP,
		UserAgent: e.Actor.UserAgent,
		Metadata:  e.Metadata,
		Timestamp: time.Now().UnixNano(),
	}

	if err := r.store.AppendAudit(ctx, rec); err != nil {
		appendFailures.Inc()
		logger.Error().Err(err).
			Str("action", string(e.Action)).
			Str("tenant_id", e.Actor.TenantID).
			Str("file_id", e.FileID).
			Msg("audit append failed")
		return
	}
	appendsTotal.WithLabelValues(string(e.Action)).Inc()
}

// List returns the most recent entries for a tenant.
func (r *Recorder) List(ctx context.Context, tenantID string, limit int) ([]*types.AuditEntry, error) {
	return r.store.ListAudit(ctx, tenantID, limit)
}
