// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "github.com/google/uuid"

// AuditAction is the fixed vocabulary of audited actions.
type AuditAction string

const (
	AuditActionInit            AuditAction = "init"
	AuditActionComplete        AuditAction = "complete"
	AuditActionDownload        AuditAction = "download"
	AuditActionDelete          AuditAction = "delete"
	AuditActionUpdatePolicy    AuditAction = "update_policy"
	AuditActionSign            AuditAction = "sign"
	AuditActionRestore         AuditAction = "restore"
	AuditActionUpdateACL       AuditAction = "update_acl"
	AuditActionGeneratePreview AuditAction = "generate_preview"
)

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorTypeUser    ActorType = "user"
	ActorTypeService ActorType = "service"
	ActorTypeSystem  ActorType = "system"
)

// AuditEntry is an immutable record of one state-changing action.
// Append-only; never updated.
type AuditEntry struct {
	ID        uuid.UUID         `json:"id"`
	Action    AuditAction       `json:"action"`
	ActorType ActorType         `json:"actor_type"`
	ActorID   string            `json:"actor_id"`
	TenantID  string            `json:"tenant_id"`
	FileID    string            `json:"file_id,omitempty"`
	UploadID  string            `json:"upload_id,omitempty"`
	SourceIP  string            `json:"source_ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Actor is the tenant/actor context resolved by upstream middleware and
// passed explicitly through every call in the pipeline, including into
// async workers via event payloads.
type Actor struct {
	TenantID  string    `json:"tenant_id"`
	ActorID   string    `json:"actor_id"`
	ActorType ActorType `json:"actor_type"`
	SourceIP  string    `json:"source_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// System returns a system actor for the given tenant, used by the
// sweeper and workers.
func System(tenantID string) Actor {
	return Actor{TenantID: tenantID, ActorID: "system", ActorType: ActorTypeSystem}
}
