// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package store defines the persistence interfaces for the media pipeline.
// Implementations: memory (tests, dev) and postgres.
package store

import (
	"context"
	"errors"

	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// Common errors
var (
	ErrUploadNotFound = errors.New("upload not found")
	ErrFileNotFound   = errors.New("file not found")
	ErrQuotaNotFound  = errors.New("quota not found")

	// ErrVersionConflict is returned when a compare-and-swap update finds a
	// different version than the caller read.
	ErrVersionConflict = errors.New("version conflict")

	// Conditional quota reservation failures.
	ErrBytesQuotaExceeded  = errors.New("byte quota exceeded")
	ErrObjectQuotaExceeded = errors.New("object count limit exceeded")
)

// UploadStore persists Upload and MultipartPart records.
type UploadStore interface {
	CreateUpload(ctx context.Context, upload *types.Upload) error

	// GetUpload fetches by the caller-facing upload ID.
	GetUpload(ctx context.Context, uploadID string) (*types.Upload, error)

	// UpdateUpload persists the upload if upload.Version still matches the
	// stored row, then increments the version. Returns ErrVersionConflict
	// otherwise.
	UpdateUpload(ctx context.Context, upload *types.Upload) error

	// ListStaleUploads returns non-terminal uploads whose ExpiresAt is
	// before cutoff (Unix nanoseconds).
	ListStaleUploads(ctx context.Context, cutoff int64, limit int) ([]*types.Upload, error)

	ListUploads(ctx context.Context, tenantID string, limit int) ([]*types.Upload, error)

	// UpsertPart inserts or replaces a part keyed by (uploadID, partNumber).
	UpsertPart(ctx context.Context, part *types.MultipartPart) error

	// ListParts returns all parts for an upload ordered by part number.
	ListParts(ctx context.Context, uploadID string) ([]*types.MultipartPart, error)

	DeleteParts(ctx context.Context, uploadID string) error
}

// FileStore persists FileEntity and FileDerivative records.
type FileStore interface {
	CreateFile(ctx context.Context, file *types.FileEntity) error
	GetFile(ctx context.Context, fileID string) (*types.FileEntity, error)

	// UpdateFile persists the file if file.Version still matches, then
	// increments the version. Returns ErrVersionConflict otherwise.
	UpdateFile(ctx context.Context, file *types.FileEntity) error

	// FindByChecksum returns a COMPLETED file with the given content
	// checksum for the tenant, or ErrFileNotFound.
	FindByChecksum(ctx context.Context, tenantID, checksum string) (*types.FileEntity, error)

	// ListDeletedBefore returns soft-deleted files whose DeletedAt is
	// before cutoff.
	ListDeletedBefore(ctx context.Context, cutoff int64, limit int) ([]*types.FileEntity, error)

	// ListCreatedBefore returns non-deleted files created before cutoff,
	// optionally scoped to one tenant.
	ListCreatedBefore(ctx context.Context, tenantID string, cutoff int64, limit int) ([]*types.FileEntity, error)

	// DeleteFile removes the row. Only the sweeper calls this, after the
	// backing object has been reclaimed.
	DeleteFile(ctx context.Context, fileID string) error

	CreateDerivative(ctx context.Context, d *types.FileDerivative) error
	ListDerivatives(ctx context.Context, fileID string) ([]*types.FileDerivative, error)
}

// QuotaStore persists per-tenant quota counters. Reserve and Release must
// be atomic conditional updates, not read-then-write.
type QuotaStore interface {
	GetQuota(ctx context.Context, tenantID string) (*types.Quota, error)

	// SetQuotaLimits creates or updates the limits for a tenant without
	// touching the usage counters.
	SetQuotaLimits(ctx context.Context, tenantID string, maxBytes, maxObjects int64) error

	// Reserve atomically adds bytes/objects to the tenant's counters iff
	// both stay within the limits. Returns ErrBytesQuotaExceeded or
	// ErrObjectQuotaExceeded without any partial mutation on denial.
	Reserve(ctx context.Context, tenantID string, bytes, objects int64) error

	// ForceAdd unconditionally adds bytes/objects to the counters, past
	// the limits if need be. For reconciling bytes that already landed
	// in the object store.
	ForceAdd(ctx context.Context, tenantID string, bytes, objects int64) error

	// Release atomically subtracts bytes/objects, flooring at zero.
	Release(ctx context.Context, tenantID string, bytes, objects int64) error
}

// TokenStore persists issued DownloadTokens.
type TokenStore interface {
	CreateDownloadToken(ctx context.Context, token *types.DownloadToken) error

	// DeleteExpiredTokens removes tokens whose ExpiresAt is before cutoff
	// and returns the number removed.
	DeleteExpiredTokens(ctx context.Context, cutoff int64) (int64, error)
}

// PolicyStore persists lifecycle retention policies.
type PolicyStore interface {
	ListPolicies(ctx context.Context) ([]*types.LifecyclePolicy, error)
	UpsertPolicy(ctx context.Context, policy *types.LifecyclePolicy) error
}

// AuditStore is the append-only audit sink.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *types.AuditEntry) error
	ListAudit(ctx context.Context, tenantID string, limit int) ([]*types.AuditEntry, error)
}

// Store is the full persistence interface for the media pipeline.
type Store interface {
	UploadStore
	FileStore
	QuotaStore
	TokenStore
	PolicyStore
	AuditStore

	Close() error
}
