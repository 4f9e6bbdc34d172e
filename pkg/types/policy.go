// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// LifecycleAction is what the sweeper does to matching records.
type LifecycleAction string

const (
	// LifecycleExpireUpload marks stale non-terminal uploads EXPIRED and
	// aborts the backing store upload.
	LifecycleExpireUpload LifecycleAction = "expire_upload"
	// LifecyclePurgeDeleted physically removes soft-deleted files and
	// releases their quota.
	LifecyclePurgeDeleted LifecycleAction = "purge_deleted"
	// LifecycleHardDelete soft-deletes files past their retention age.
	LifecycleHardDelete LifecycleAction = "hard_delete"
)

// LifecyclePolicy is a retention rule consumed by the sweeper.
// TenantID may be empty to apply to all tenants.
type LifecyclePolicy struct {
	ID       string          `json:"id"`
	TenantID string          `json:"tenant_id,omitempty"`
	Action   LifecycleAction `json:"action"`
	// MaxAge is the age threshold relative to the record's reference time
	// (ExpiresAt for uploads, DeletedAt/CreatedAt for files).
	MaxAge  time.Duration `json:"max_age"`
	Enabled bool          `json:"enabled"`
}
