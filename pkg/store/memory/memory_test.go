// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

func TestUploadCRUD(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	up := &types.Upload{
		ID:       uuid.New(),
		UploadID: "up-1",
		TenantID: "tenant-a",
		Status:   types.UploadStatusInit,
	}
	require.NoError(t, m.CreateUpload(ctx, up))

	got, err := m.GetUpload(ctx, "up-1")
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusInit, got.Status)

	_, err = m.GetUpload(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrUploadNotFound)
}

func TestUpdateUploadVersionConflict(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	up := &types.Upload{ID: uuid.New(), UploadID: "up-1", Status: types.UploadStatusInit}
	require.NoError(t, m.CreateUpload(ctx, up))

	a, err := m.GetUpload(ctx, "up-1")
	require.NoError(t, err)
	b, err := m.GetUpload(ctx, "up-1")
	require.NoError(t, err)

	a.Status = types.UploadStatusInProgress
	require.NoError(t, m.UpdateUpload(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	b.Status = types.UploadStatusAborted
	assert.ErrorIs(t, m.UpdateUpload(ctx, b), store.ErrVersionConflict)
}

func TestListStaleUploads(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()
	now := time.Now().UnixNano()

	stale := &types.Upload{ID: uuid.New(), UploadID: "stale", Status: types.UploadStatusInProgress, ExpiresAt: now - 1}
	fresh := &types.Upload{ID: uuid.New(), UploadID: "fresh", Status: types.UploadStatusInProgress, ExpiresAt: now + int64(time.Hour)}
	done := &types.Upload{ID: uuid.New(), UploadID: "done", Status: types.UploadStatusCompleted, ExpiresAt: now - 1}
	for _, u := range []*types.Upload{stale, fresh, done} {
		require.NoError(t, m.CreateUpload(ctx, u))
	}

	got, err := m.ListStaleUploads(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "stale", got[0].UploadID)
}

func TestUpsertPartReplaces(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	require.NoError(t, m.UpsertPart(ctx, &types.MultipartPart{ID: uuid.New(), UploadID: "u", PartNumber: 1, Size: 10}))
	require.NoError(t, m.UpsertPart(ctx, &types.MultipartPart{ID: uuid.New(), UploadID: "u", PartNumber: 2, Size: 20}))
	require.NoError(t, m.UpsertPart(ctx, &types.MultipartPart{ID: uuid.New(), UploadID: "u", PartNumber: 1, Size: 15, ETag: "abc", Registered: true}))

	parts, err := m.ListParts(ctx, "u")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, 1, parts[0].PartNumber)
	assert.Equal(t, int64(15), parts[0].Size)
	assert.True(t, parts[0].Registered)
}

func TestFindByChecksum(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	require.NoError(t, m.CreateFile(ctx, &types.FileEntity{
		FileID: "f1", TenantID: "a", Checksum: "sha256:abc", Status: types.FileStatusCompleted,
	}))
	require.NoError(t, m.CreateFile(ctx, &types.FileEntity{
		FileID: "f2", TenantID: "a", Checksum: "sha256:pending", Status: types.FileStatusUploading,
	}))

	got, err := m.FindByChecksum(ctx, "a", "sha256:abc")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.FileID)

	// Incomplete files do not count as dedup sources.
	_, err = m.FindByChecksum(ctx, "a", "sha256:pending")
	assert.ErrorIs(t, err, store.ErrFileNotFound)

	// Checksums are tenant-scoped.
	_, err = m.FindByChecksum(ctx, "b", "sha256:abc")
	assert.ErrorIs(t, err, store.ErrFileNotFound)
}

func TestFileMetadataIsolation(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	f := &types.FileEntity{FileID: "f1", Metadata: map[string]string{"k": "v"}}
	require.NoError(t, m.CreateFile(ctx, f))
	f.Metadata["k"] = "mutated"

	got, err := m.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Metadata["k"])
}

func TestReserveEnforcesLimits(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	require.NoError(t, m.SetQuotaLimits(ctx, "t", 100, 2))

	require.NoError(t, m.Reserve(ctx, "t", 60, 1))
	assert.ErrorIs(t, m.Reserve(ctx, "t", 50, 1), store.ErrBytesQuotaExceeded)
	require.NoError(t, m.Reserve(ctx, "t", 40, 1))
	assert.ErrorIs(t, m.Reserve(ctx, "t", 0, 1), store.ErrObjectQuotaExceeded)

	q, err := m.GetQuota(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.UsedBytes)
	assert.Equal(t, int64(2), q.UsedObjects)
}

func TestReserveConcurrent(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	require.NoError(t, m.SetQuotaLimits(ctx, "t", 1000, 0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Reserve(ctx, "t", 100, 1); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
	q, err := m.GetQuota(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), q.UsedBytes)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	require.NoError(t, m.Reserve(ctx, "t", 10, 1))
	require.NoError(t, m.Release(ctx, "t", 100, 5))

	q, err := m.GetQuota(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.UsedBytes)
	assert.Equal(t, int64(0), q.UsedObjects)
}

func TestAuditAppendOnly(t *testing.T) {
	t.Parallel()
	m := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.AppendAudit(ctx, &types.AuditEntry{
			ID:       uuid.New(),
			TenantID: "t",
			Action:   types.AuditActionInit,
		}))
	}
	require.NoError(t, m.AppendAudit(ctx, &types.AuditEntry{ID: uuid.New(), TenantID: "other", Action: types.AuditActionDelete}))

	got, err := m.ListAudit(ctx, "t", 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = m.ListAudit(ctx, "t", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
