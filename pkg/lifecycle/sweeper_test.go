// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/quota"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store/memory"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

const testTenant = "acme"

type testEnv struct {
	sweeper *Sweeper
	store   *memory.Memory
	objects *objectstore.MemoryStore
	ledger  *quota.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	obj := objectstore.NewMemoryStore()
	ledger := quota.NewLedger(st)

	sw, err := NewSweeper(Config{
		Store:   st,
		Objects: obj,
		Quota:   ledger,
		Audit:   audit.NewRecorder(st),
	})
	require.NoError(t, err)
	return &testEnv{sweeper: sw, store: st, objects: obj, ledger: ledger}
}

func seedStaleUpload(t *testing.T, env *testEnv, status types.UploadStatus) *types.Upload {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	id := uuid.New()
	fileID := uuid.NewString()

	require.NoError(t, env.ledger.Reserve(ctx, testTenant, 100, 1))
	require.NoError(t, env.store.CreateFile(ctx, &types.FileEntity{
		FileID:     fileID,
		TenantID:   testTenant,
		Status:     types.FileStatusUploading,
		Filename:   "stale.bin",
		Size:       100,
		StorageKey: testTenant + "/" + fileID,
		CreatedAt:  now.UnixNano(),
		UpdatedAt:  now.UnixNano(),
	}))

	up := &types.Upload{
		ID:           id,
		UploadID:     id.String(),
		FileID:       fileID,
		TenantID:     testTenant,
		Status:       status,
		DeclaredSize: 100,
		StorageKey:   testTenant + "/" + fileID,
		CreatedAt:    now.Add(-2 * time.Hour).UnixNano(),
		UpdatedAt:    now.Add(-2 * time.Hour).UnixNano(),
		ExpiresAt:    now.Add(-time.Hour).UnixNano(),
	}
	require.NoError(t, env.store.CreateUpload(ctx, up))
	return up
}

func TestExpireStaleUploads(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	stale := seedStaleUpload(t, env, types.UploadStatusInProgress)
	done := seedStaleUpload(t, env, types.UploadStatusCompleted)

	env.sweeper.Sweep(ctx)

	got, err := env.store.GetUpload(ctx, stale.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusExpired, got.Status)

	file, err := env.store.GetFile(ctx, stale.FileID)
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusFailed, file.Status)

	// Terminal uploads are left alone.
	got, err = env.store.GetUpload(ctx, done.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusCompleted, got.Status)

	// Only the expired upload's reservation came back.
	q, err := env.ledger.Usage(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.UsedBytes)
	assert.Equal(t, int64(1), q.UsedObjects)

	// A second pass changes nothing.
	env.sweeper.Sweep(ctx)
	q, err = env.ledger.Usage(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.UsedBytes)
}

func TestExpireLosesRaceToCompletion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	// The upload was listed as stale, but a completion commits before
	// the sweeper gets to it.
	stale := seedStaleUpload(t, env, types.UploadStatusInProgress)
	env.objects.Put(stale.StorageKey, []byte("committed bytes"))

	current, err := env.store.GetUpload(ctx, stale.UploadID)
	require.NoError(t, err)
	current.Status = types.UploadStatusCompleted
	require.NoError(t, env.store.UpdateUpload(ctx, current))

	require.NoError(t, env.sweeper.expireUpload(ctx, stale))

	// Losing the CAS means hands off: object, records and quota survive.
	got, err := env.store.GetUpload(ctx, stale.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusCompleted, got.Status)

	_, err = env.objects.Head(ctx, stale.StorageKey)
	require.NoError(t, err)

	q, err := env.ledger.Usage(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.UsedBytes)
	assert.Equal(t, int64(1), q.UsedObjects)
}

func seedDeletedFile(t *testing.T, env *testEnv, fileID, checksum string, deletedAt time.Time) *types.FileEntity {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.ledger.Reserve(ctx, testTenant, 50, 1))
	file := &types.FileEntity{
		FileID:     fileID,
		TenantID:   testTenant,
		Status:     types.FileStatusDeleted,
		Filename:   "gone.bin",
		Size:       50,
		Checksum:   checksum,
		StorageKey: testTenant + "/" + fileID,
		CreatedAt:  deletedAt.Add(-time.Hour).UnixNano(),
		UpdatedAt:  deletedAt.UnixNano(),
		DeletedAt:  deletedAt.UnixNano(),
	}
	env.objects.Put(file.StorageKey, []byte("x"))
	require.NoError(t, env.store.CreateFile(ctx, file))
	return file
}

func TestPurgeDeletedFiles(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.UpsertPolicy(ctx, &types.LifecyclePolicy{
		ID:      "purge-1h",
		Action:  types.LifecyclePurgeDeleted,
		MaxAge:  time.Hour,
		Enabled: true,
	}))

	old := seedDeletedFile(t, env, "old", "", time.Now().Add(-2*time.Hour))
	fresh := seedDeletedFile(t, env, "fresh", "", time.Now().Add(-time.Minute))

	env.sweeper.Sweep(ctx)

	_, err := env.store.GetFile(ctx, old.FileID)
	assert.ErrorIs(t, err, store.ErrFileNotFound)
	_, err = env.objects.Head(ctx, old.StorageKey)
	assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)

	// Inside the retention window: untouched.
	_, err = env.store.GetFile(ctx, fresh.FileID)
	require.NoError(t, err)
	_, err = env.objects.Head(ctx, fresh.StorageKey)
	require.NoError(t, err)

	q, err := env.ledger.Usage(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, int64(50), q.UsedBytes)
	assert.Equal(t, int64(1), q.UsedObjects)
}

func TestRetentionHardDelete(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.UpsertPolicy(ctx, &types.LifecyclePolicy{
		ID:       "retain-30d",
		TenantID: testTenant,
		Action:   types.LifecycleHardDelete,
		MaxAge:   30 * 24 * time.Hour,
		Enabled:  true,
	}))

	now := time.Now()
	require.NoError(t, env.store.CreateFile(ctx, &types.FileEntity{
		FileID:     "ancient",
		TenantID:   testTenant,
		Status:     types.FileStatusCompleted,
		Filename:   "ancient.bin",
		Size:       10,
		StorageKey: testTenant + "/ancient",
		CreatedAt:  now.Add(-40 * 24 * time.Hour).UnixNano(),
		UpdatedAt:  now.UnixNano(),
	}))
	require.NoError(t, env.store.CreateFile(ctx, &types.FileEntity{
		FileID:     "recent",
		TenantID:   testTenant,
		Status:     types.FileStatusCompleted,
		Filename:   "recent.bin",
		Size:       10,
		StorageKey: testTenant + "/recent",
		CreatedAt:  now.Add(-24 * time.Hour).UnixNano(),
		UpdatedAt:  now.UnixNano(),
	}))

	env.sweeper.Sweep(ctx)

	ancient, err := env.store.GetFile(ctx, "ancient")
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusDeleted, ancient.Status)
	assert.NotZero(t, ancient.DeletedAt)

	recent, err := env.store.GetFile(ctx, "recent")
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusCompleted, recent.Status)
}

func TestDisabledPolicyIgnored(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.UpsertPolicy(ctx, &types.LifecyclePolicy{
		ID:      "purge-disabled",
		Action:  types.LifecyclePurgeDeleted,
		MaxAge:  time.Hour,
		Enabled: false,
	}))
	old := seedDeletedFile(t, env, "old", "", time.Now().Add(-2*time.Hour))

	env.sweeper.Sweep(ctx)

	_, err := env.store.GetFile(ctx, old.FileID)
	require.NoError(t, err)
}

func TestExpiredTokenCleanup(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, env.store.CreateDownloadToken(ctx, &types.DownloadToken{
		ID:        uuid.New(),
		FileID:    "f-1",
		TenantID:  testTenant,
		ExpiresAt: now.Add(-time.Minute).UnixNano(),
		CreatedAt: now.Add(-time.Hour).UnixNano(),
	}))
	require.NoError(t, env.store.CreateDownloadToken(ctx, &types.DownloadToken{
		ID:        uuid.New(),
		FileID:    "f-2",
		TenantID:  testTenant,
		ExpiresAt: now.Add(time.Hour).UnixNano(),
		CreatedAt: now.UnixNano(),
	}))

	env.sweeper.Sweep(ctx)

	// Only the live token remains.
	n, err := env.store.DeleteExpiredTokens(ctx, now.Add(2*time.Hour).UnixNano())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.sweeper.Start(ctx)
	env.sweeper.Stop()
}
