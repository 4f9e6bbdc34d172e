// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"github.com/google/uuid"
)

// UploadStatus represents the state of an upload attempt.
type UploadStatus string

const (
	UploadStatusInit       UploadStatus = "INIT"
	UploadStatusInProgress UploadStatus = "IN_PROGRESS"
	UploadStatusProcessing UploadStatus = "PROCESSING"
	UploadStatusCompleted  UploadStatus = "COMPLETED"
	UploadStatusFailed     UploadStatus = "FAILED"
	UploadStatusExpired    UploadStatus = "EXPIRED"
	UploadStatusAborted    UploadStatus = "ABORTED"
)

// Terminal reports whether the status admits no further transitions.
func (s UploadStatus) Terminal() bool {
	switch s {
	case UploadStatusCompleted, UploadStatusFailed, UploadStatusExpired, UploadStatusAborted:
		return true
	}
	return false
}

// Upload is one upload attempt. Owned exclusively by the upload service;
// workers never mutate it.
type Upload struct {
	ID       uuid.UUID `json:"id"`
	UploadID string    `json:"upload_id"` // caller-facing, base64url-encoded UUID
	FileID   string    `json:"file_id"`
	TenantID string    `json:"tenant_id"`
	OwnerID  string    `json:"owner_id"`

	Status UploadStatus `json:"status"`

	Multipart bool  `json:"multipart"`
	PartSize  int64 `json:"part_size,omitempty"`
	PartCount int   `json:"part_count"`

	DeclaredSize int64  `json:"declared_size"`
	ContentType  string `json:"content_type"`
	Checksum     string `json:"checksum,omitempty"` // client-declared content checksum
	StorageKey   string `json:"storage_key"`

	// StoreUploadID is the backing object store's multipart upload handle.
	StoreUploadID string `json:"store_upload_id,omitempty"`

	// Version is compared-and-swapped on every update.
	Version int64 `json:"version"`

	CreatedAt int64 `json:"created_at"` // Unix nanoseconds
	UpdatedAt int64 `json:"updated_at"`
	ExpiresAt int64 `json:"expires_at"`
}

// MultipartPart is one part of a multipart Upload. Part numbers for one
// upload form a contiguous 1..N set with no duplicates at completion time.
type MultipartPart struct {
	ID           uuid.UUID `json:"id"`
	UploadID     string    `json:"upload_id"`
	PartNumber   int       `json:"part_number"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	Registered   bool      `json:"registered"` // client confirmed the part upload
	URLExpiresAt int64     `json:"url_expires_at"`
	LastModified int64     `json:"last_modified"`
}
