// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "github.com/google/uuid"

// FileStatus represents the lifecycle state of a durable file record.
type FileStatus string

const (
	FileStatusInit       FileStatus = "INIT"
	FileStatusUploading  FileStatus = "UPLOADING"
	FileStatusProcessing FileStatus = "PROCESSING"
	FileStatusCompleted  FileStatus = "COMPLETED"
	FileStatusFailed     FileStatus = "FAILED"
	FileStatusDeleted    FileStatus = "DELETED"
)

// AccessPolicy controls how access URLs are issued for a file.
type AccessPolicy string

const (
	// AccessPublic files get a stable, unsigned URL.
	AccessPublic AccessPolicy = "PUBLIC"
	// AccessPrivate files get short-lived signed URLs.
	AccessPrivate AccessPolicy = "PRIVATE"
)

// Valid reports whether p is a known access policy.
func (p AccessPolicy) Valid() bool {
	return p == AccessPublic || p == AccessPrivate
}

// Metadata keys set by processing workers.
const (
	MetaScanResult    = "scan.result"
	MetaScanVerdict   = "scan.verdict"
	MetaAuditResult   = "audit.result"
	MetaThumbnailKey  = "derivative.thumbnail"
	MetaPreviewKey    = "derivative.preview"
	MetaTranscodeKey  = "derivative.transcode"
	MetaProcessingErr = "processing.last_error"
)

// FileEntity is the durable object record, independent of how it was
// uploaded. Soft-transitioned to DELETED; physical reclaim is deferred
// to the lifecycle sweeper.
type FileEntity struct {
	FileID   string `json:"file_id"`
	TenantID string `json:"tenant_id"`
	OwnerID  string `json:"owner_id"`

	Status       FileStatus   `json:"status"`
	AccessPolicy AccessPolicy `json:"access_policy"`

	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum,omitempty"`
	ETag        string `json:"etag,omitempty"`
	StorageKey  string `json:"storage_key"`

	// Metadata holds worker annotations (scan result, derivative keys, ...).
	Metadata map[string]string `json:"metadata,omitempty"`

	// Version is compared-and-swapped on every update.
	Version int64 `json:"version"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
	DeletedAt int64 `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the file has been soft-deleted.
func (f *FileEntity) IsDeleted() bool {
	return f.Status == FileStatusDeleted
}

// FileDerivative is a generated artifact (thumbnail, preview, transcode)
// linked to a FileEntity.
type FileDerivative struct {
	ID          uuid.UUID `json:"id"`
	FileID      string    `json:"file_id"`
	Kind        string    `json:"kind"` // thumbnail, preview, transcode
	StorageKey  string    `json:"storage_key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   int64     `json:"created_at"`
}

// DownloadToken is a signed, time-boxed grant for private-object access.
type DownloadToken struct {
	ID        uuid.UUID `json:"id"`
	FileID    string    `json:"file_id"`
	TenantID  string    `json:"tenant_id"`
	ActorID   string    `json:"actor_id"`
	ExpiresAt int64     `json:"expires_at"`
	CreatedAt int64     `json:"created_at"`
}
