// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry owns file lifecycle state and is the sole issuer of
// access URLs. Public files get a stable unsigned URL, private files a
// short-lived signed URL backed by a persisted download token.
package registry

import (
	"context"

	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// ProcessingState is the tri-state answer clients poll for while an
// upload works its way through the pipeline.
type ProcessingState string

const (
	// StatePending covers every non-terminal file status.
	StatePending ProcessingState = "pending"
	// StateReady means the file completed; the result carries a URL.
	StateReady ProcessingState = "ready"
	// StateFailed means the file failed or was deleted; the result
	// carries a reason.
	StateFailed ProcessingState = "failed"
)

// URLResult is an issued access URL.
type URLResult struct {
	URL string `json:"url"`
	// ExpiresAt is zero for public URLs, which never expire.
	ExpiresAt int64 `json:"expires_at,omitempty"`
	// Token is the signed bearer token for private URLs.
	Token string `json:"token,omitempty"`
}

// StatusResult answers a processing-status poll.
type StatusResult struct {
	State  ProcessingState `json:"state"`
	File   *types.FileEntity
	URL    *URLResult `json:"url,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// Service is the file registry.
type Service interface {
	// Get loads a file record, enforcing tenant isolation.
	Get(ctx context.Context, actor types.Actor, fileID string) (*types.FileEntity, error)

	// Status returns the tri-state processing status of a file. A
	// completed file's status carries a ready-to-use access URL.
	Status(ctx context.Context, actor types.Actor, fileID string) (*StatusResult, error)

	// IssueURL generates an access URL according to the file's access
	// policy. Private URLs are generated on demand and never cached.
	IssueURL(ctx context.Context, actor types.Actor, fileID string) (*URLResult, error)

	// VerifyToken validates a signed download token and returns the
	// file it grants access to.
	VerifyToken(ctx context.Context, token string) (*types.FileEntity, error)

	// ChangeAccessPolicy switches a file between PUBLIC and PRIVATE.
	ChangeAccessPolicy(ctx context.Context, actor types.Actor, fileID string, policy types.AccessPolicy) error

	// MarkDeleted soft-deletes a file. Bytes stay in the object store
	// until the lifecycle sweeper reclaims them.
	MarkDeleted(ctx context.Context, actor types.Actor, fileID string) error

	// Restore brings a soft-deleted file back to COMPLETED, provided
	// the sweeper has not reclaimed it yet.
	Restore(ctx context.Context, actor types.Actor, fileID string) error

	// Derivatives lists generated artifacts for a file.
	Derivatives(ctx context.Context, actor types.Actor, fileID string) ([]*types.FileDerivative, error)
}
