// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package objectstore abstracts the backing blob store. Clients never
// stream bytes through this service; they talk to the store directly via
// presigned URLs issued here.
package objectstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrObjectNotFound is returned when the key does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrUploadNotFound is returned for an unknown multipart handle.
	ErrUploadNotFound = errors.New("store upload not found")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// PartUpload identifies one uploaded part when merging.
type PartUpload struct {
	PartNumber int
	ETag       string
}

// ObjectStore is the blob-store surface needed by the upload pipeline.
type ObjectStore interface {
	// PresignPut returns a URL a client can PUT object bytes to.
	PresignPut(ctx context.Context, key string, expires time.Duration) (string, error)
	// PresignGet returns a URL a client can GET object bytes from.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// CreateMultipart starts a multipart upload and returns the store's handle.
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)
	// PresignPart returns a URL for uploading one part of a multipart upload.
	PresignPart(ctx context.Context, key, storeUploadID string, partNumber int, expires time.Duration) (string, error)
	// MergeParts completes a multipart upload and returns the final ETag.
	MergeParts(ctx context.Context, key, storeUploadID string, parts []PartUpload) (string, error)
	// AbortMultipart discards all uploaded parts.
	AbortMultipart(ctx context.Context, key, storeUploadID string) error

	// Head returns object metadata, or ErrObjectNotFound.
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	// Copy duplicates an object server-side and returns the copy's info.
	Copy(ctx context.Context, srcKey, dstKey string) (*ObjectInfo, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PublicURL returns the stable unsigned URL for a key.
	PublicURL(key string) string
}
