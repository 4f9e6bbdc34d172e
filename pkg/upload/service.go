// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload implements the upload pipeline: admission, presigned
// URL issuance, part tracking and atomic completion.
package upload

import (
	"context"

	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// Service defines the interface for upload operations.
// This separates business logic from HTTP handling.
type Service interface {
	// Init admits a new upload against the tenant quota and issues
	// presigned URLs. Content-addressed duplicates complete instantly
	// without transferring bytes.
	Init(ctx context.Context, actor types.Actor, req *InitRequest) (*InitResult, error)

	// RegisterPart records a client-confirmed part upload.
	RegisterPart(ctx context.Context, actor types.Actor, req *RegisterPartRequest) error

	// RefreshParts re-issues presigned URLs for parts whose URLs expired.
	RefreshParts(ctx context.Context, actor types.Actor, uploadID string, partNumbers []int) ([]PartURL, error)

	// Complete validates the uploaded content and atomically finalizes
	// upload, file, and quota. Completing an already-completed upload is
	// idempotent.
	Complete(ctx context.Context, actor types.Actor, req *CompleteRequest) (*CompleteResult, error)

	// Abort cancels a non-terminal upload, discards uploaded bytes and
	// returns the reserved quota.
	Abort(ctx context.Context, actor types.Actor, uploadID string) error

	// Status reports the upload's current state including per-part detail.
	Status(ctx context.Context, actor types.Actor, uploadID string) (*StatusResult, error)

	// List returns the tenant's uploads, oldest first.
	List(ctx context.Context, actor types.Actor, limit int) ([]*types.Upload, error)
}

// InitRequest contains parameters for starting an upload.
type InitRequest struct {
	Filename     string
	ContentType  string
	Size         int64
	// Checksum is the client-declared content hash ("sha256:..."),
	// enabling dedup. Optional.
	Checksum     string
	AccessPolicy types.AccessPolicy
	// Multipart forces a multipart upload; large files get one anyway.
	Multipart bool
}

// PartURL is one presigned part upload URL.
type PartURL struct {
	PartNumber int    `json:"part_number"`
	URL        string `json:"url"`
	ExpiresAt  int64  `json:"expires_at"`
}

// InitResult contains the admitted upload and its presigned URLs.
type InitResult struct {
	UploadID string `json:"upload_id,omitempty"`
	FileID   string `json:"file_id"`

	// Deduplicated is true when the declared checksum matched the
	// tenant's existing file. No upload session exists in that case;
	// URL points at the already stored object.
	Deduplicated bool   `json:"deduplicated"`
	URL          string `json:"url,omitempty"`

	// PutURL is set for single-shot uploads.
	PutURL string `json:"put_url,omitempty"`
	// PartURLs is set for multipart uploads.
	PartURLs []PartURL `json:"part_urls,omitempty"`
	PartSize int64     `json:"part_size,omitempty"`

	ExpiresAt int64 `json:"expires_at"`
}

// RegisterPartRequest confirms one uploaded part.
type RegisterPartRequest struct {
	UploadID   string
	PartNumber int
	ETag       string
	Size       int64
}

// PartEntry identifies a part in a complete request.
type PartEntry struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// CompleteRequest finalizes an upload.
type CompleteRequest struct {
	UploadID string
	// Parts must list every part for multipart uploads. Ignored for
	// single-shot uploads.
	Parts []PartEntry
}

// CompleteResult is the finalized file.
type CompleteResult struct {
	File *types.FileEntity `json:"file"`
}

// StatusResult reports upload progress.
type StatusResult struct {
	Upload *types.Upload          `json:"upload"`
	File   *types.FileEntity      `json:"file,omitempty"`
	Parts  []*types.MultipartPart `json:"parts,omitempty"`
}
