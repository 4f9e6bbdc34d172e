// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/events"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/quota"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store/memory"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

type testEnv struct {
	svc     Service
	store   *memory.Memory
	objects *objectstore.MemoryStore
	ledger  *quota.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	obj := objectstore.NewMemoryStore()
	ledger := quota.NewLedger(st)

	svc, err := NewService(Config{
		Store:              st,
		Objects:            obj,
		Quota:              ledger,
		Audit:              audit.NewRecorder(st),
		Emitter:            events.NoopEmitter(),
		PartSize:           4,
		MultipartThreshold: 16,
	})
	require.NoError(t, err)

	return &testEnv{svc: svc, store: st, objects: obj, ledger: ledger}
}

var testActor = types.Actor{TenantID: "acme", ActorID: "u-1", ActorType: types.ActorTypeUser}

func TestNewServiceValidation(t *testing.T) {
	t.Parallel()

	_, err := NewService(Config{})
	assert.Error(t, err)

	_, err = NewService(Config{Store: memory.New()})
	assert.Error(t, err)
}

func TestInitSingleUpload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{
		Filename:    "photo.jpg",
		ContentType: "image/jpeg",
		Size:        10,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.UploadID)
	assert.NotEmpty(t, res.FileID)
	assert.NotEmpty(t, res.PutURL)
	assert.Empty(t, res.PartURLs)
	assert.False(t, res.Deduplicated)

	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusInit, status.Upload.Status)
	assert.Equal(t, types.FileStatusUploading, status.File.Status)

	// Quota was reserved on admission.
	q, err := env.ledger.Usage(ctx, testActor.TenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), q.UsedBytes)
	assert.Equal(t, int64(1), q.UsedObjects)
}

func TestInitValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  InitRequest
	}{
		{"missing filename", InitRequest{Size: 10}},
		{"zero size", InitRequest{Filename: "a.txt"}},
		{"bad policy", InitRequest{Filename: "a.txt", Size: 1, AccessPolicy: "SHARED"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Init(ctx, testActor, &tc.req)
			var svcErr *Error
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, ErrCodeInvalidArgument, svcErr.Code)
		})
	}
}

func TestInitQuotaDenied(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.ledger.SetLimits(ctx, testActor.TenantID, 5, 0))

	_, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "big.bin", Size: 10})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeQuotaExceeded, svcErr.Code)

	var deny *quota.DenyError
	assert.ErrorAs(t, err, &deny)
}

func TestSingleUploadLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("0123456789")
	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "doc.txt", ContentType: "text/plain", Size: int64(len(data))})
	require.NoError(t, err)

	// Simulate the client PUT against the presigned URL.
	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	env.objects.Put(status.Upload.StorageKey, data)

	completed, err := env.svc.Complete(ctx, testActor, &CompleteRequest{UploadID: res.UploadID})
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusCompleted, completed.File.Status)
	assert.Equal(t, int64(len(data)), completed.File.Size)
	assert.NotEmpty(t, completed.File.ETag)

	// Completing again is idempotent: same file state, no double charge.
	again, err := env.svc.Complete(ctx, testActor, &CompleteRequest{UploadID: res.UploadID})
	require.NoError(t, err)
	assert.Equal(t, completed.File.FileID, again.File.FileID)
	assert.Equal(t, completed.File.Status, again.File.Status)
	assert.Equal(t, completed.File.ETag, again.File.ETag)

	q, err := env.ledger.Usage(ctx, testActor.TenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), q.UsedBytes)
	assert.Equal(t, int64(1), q.UsedObjects)
}

func TestCompleteWithoutBytes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "doc.txt", Size: 10})
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, testActor, &CompleteRequest{UploadID: res.UploadID})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeMissingPart, svcErr.Code)
}

func TestCompleteMergeFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "v.bin", Size: 8, Multipart: true})
	require.NoError(t, err)
	require.Len(t, res.PartURLs, 2)

	// Both parts registered but the bytes never reached the store, so
	// the merge fails.
	for n := 1; n <= 2; n++ {
		require.NoError(t, env.svc.RegisterPart(ctx, testActor, &RegisterPartRequest{
			UploadID:   res.UploadID,
			PartNumber: n,
			ETag:       "phantom",
			Size:       4,
		}))
	}

	_, err = env.svc.Complete(ctx, testActor, &CompleteRequest{UploadID: res.UploadID})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInternalError, svcErr.Code)

	// All or nothing: both records FAILED and the reservation returned.
	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusFailed, status.Upload.Status)
	assert.Equal(t, types.FileStatusFailed, status.File.Status)

	q, err := env.ledger.Usage(ctx, testActor.TenantID)
	require.NoError(t, err)
	assert.Zero(t, q.UsedBytes)
	assert.Zero(t, q.UsedObjects)
}

func TestCompleteSizeMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "doc.txt", Size: 10})
	require.NoError(t, err)

	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	env.objects.Put(status.Upload.StorageKey, []byte("short"))

	_, err = env.svc.Complete(ctx, testActor, &CompleteRequest{UploadID: res.UploadID})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeSizeMismatch, svcErr.Code)

	// The upload failed, the file is quarantined and the quota returned.
	status, err = env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusFailed, status.Upload.Status)
	assert.Equal(t, types.FileStatusFailed, status.File.Status)

	q, err := env.ledger.Usage(ctx, testActor.TenantID)
	require.NoError(t, err)
	assert.Zero(t, q.UsedBytes)
	assert.Zero(t, q.UsedObjects)
}

func TestMultipartLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	// 10 bytes at part size 4 means parts of 4+4+2.
	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "video.mp4", ContentType: "video/mp4", Size: 10, Multipart: true})
	require.NoError(t, err)
	require.Len(t, res.PartURLs, 3)
	assert.Empty(t, res.PutURL)
	assert.Equal(t, int64(4), res.PartSize)

	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	storeUploadID := status.Upload.StoreUploadID
	require.NotEmpty(t, storeUploadID)

	chunks := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cc")}
	etags := make([]string, len(chunks))
	for i, chunk := range chunks {
		etag, err := env.objects.PutPart(storeUploadID, i+1, chunk)
		require.NoError(t, err)
		etags[i] = etag
		require.NoError(t, env.svc.RegisterPart(ctx, testActor, &RegisterPartRequest{
			UploadID:   res.UploadID,
			PartNumber: i + 1,
			ETag:       etag,
			Size:       int64(len(chunk)),
		}))
	}

	status, err = env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusInProgress, status.Upload.Status)

	completed, err := env.svc.Complete(ctx, testActor, &CompleteRequest{
		UploadID: res.UploadID,
		Parts: []PartEntry{
			{PartNumber: 1, ETag: etags[0]},
			{PartNumber: 2, ETag: etags[1]},
			{PartNumber: 3, ETag: etags[2]},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusCompleted, completed.File.Status)
	assert.Equal(t, int64(10), completed.File.Size)

	info, err := env.objects.Head(ctx, completed.File.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
}

func TestCompleteMissingPart(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "video.mp4", Size: 10, Multipart: true})
	require.NoError(t, err)

	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)

	// Register only the first part.
	etag, err := env.objects.PutPart(status.Upload.StoreUploadID, 1, []byte("aaaa"))
	require.NoError(t, err)
	require.NoError(t, env.svc.RegisterPart(ctx, testActor, &RegisterPartRequest{
		UploadID: res.UploadID, PartNumber: 1, ETag: etag, Size: 4,
	}))

	_, err = env.svc.Complete(ctx, testActor, &CompleteRequest{UploadID: res.UploadID})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeMissingPart, svcErr.Code)
}

func TestCompleteETagMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "a.bin", Size: 8, Multipart: true})
	require.NoError(t, err)

	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	for n, chunk := range [][]byte{[]byte("aaaa"), []byte("bbbb")} {
		etag, err := env.objects.PutPart(status.Upload.StoreUploadID, n+1, chunk)
		require.NoError(t, err)
		require.NoError(t, env.svc.RegisterPart(ctx, testActor, &RegisterPartRequest{
			UploadID: res.UploadID, PartNumber: n + 1, ETag: etag, Size: int64(len(chunk)),
		}))
	}

	_, err = env.svc.Complete(ctx, testActor, &CompleteRequest{
		UploadID: res.UploadID,
		Parts:    []PartEntry{{PartNumber: 1, ETag: "bogus"}},
	})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeETagMismatch, svcErr.Code)
}

func TestRegisterPartValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "a.bin", Size: 8, Multipart: true})
	require.NoError(t, err)

	err = env.svc.RegisterPart(ctx, testActor, &RegisterPartRequest{UploadID: res.UploadID, PartNumber: 99, ETag: "x"})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidArgument, svcErr.Code)

	err = env.svc.RegisterPart(ctx, testActor, &RegisterPartRequest{UploadID: res.UploadID, PartNumber: 1})
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidArgument, svcErr.Code)

	single, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "b.txt", Size: 4})
	require.NoError(t, err)
	err = env.svc.RegisterPart(ctx, testActor, &RegisterPartRequest{UploadID: single.UploadID, PartNumber: 1, ETag: "x"})
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidArgument, svcErr.Code)
}

func TestRefreshParts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "a.bin", Size: 8, Multipart: true})
	require.NoError(t, err)

	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	etag, err := env.objects.PutPart(status.Upload.StoreUploadID, 1, []byte("aaaa"))
	require.NoError(t, err)
	require.NoError(t, env.svc.RegisterPart(ctx, testActor, &RegisterPartRequest{
		UploadID: res.UploadID, PartNumber: 1, ETag: etag, Size: 4,
	}))

	// With no explicit numbers, only unregistered parts get fresh URLs.
	urls, err := env.svc.RefreshParts(ctx, testActor, res.UploadID, nil)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, 2, urls[0].PartNumber)

	_, err = env.svc.RefreshParts(ctx, testActor, res.UploadID, []int{42})
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidArgument, svcErr.Code)
}

func TestDeduplicatedInit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	data := []byte("same bytes")
	checksum := "sha256:feedface"
	first, err := env.svc.Init(ctx, testActor, &InitRequest{
		Filename: "orig.txt", Size: int64(len(data)), Checksum: checksum,
	})
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)

	status, err := env.svc.Status(ctx, testActor, first.UploadID)
	require.NoError(t, err)
	env.objects.Put(status.Upload.StorageKey, data)
	_, err = env.svc.Complete(ctx, testActor, &CompleteRequest{UploadID: first.UploadID})
	require.NoError(t, err)

	// Same checksum, same tenant: instant upload pointing at the
	// existing file, no session, no new quota charge.
	second, err := env.svc.Init(ctx, testActor, &InitRequest{
		Filename: "copy.txt", Size: int64(len(data)), Checksum: checksum,
	})
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Empty(t, second.PutURL)
	assert.Empty(t, second.UploadID)
	assert.Equal(t, first.FileID, second.FileID)
	assert.NotEmpty(t, second.URL)

	q, err := env.ledger.Usage(ctx, testActor.TenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), q.UsedBytes)
	assert.Equal(t, int64(1), q.UsedObjects)

	// A different tenant with the same checksum does not dedup.
	other := types.Actor{TenantID: "rival", ActorID: "u-9", ActorType: types.ActorTypeUser}
	third, err := env.svc.Init(ctx, other, &InitRequest{
		Filename: "theirs.txt", Size: int64(len(data)), Checksum: checksum,
	})
	require.NoError(t, err)
	assert.False(t, third.Deduplicated)
}

func TestAbort(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "a.bin", Size: 8, Multipart: true})
	require.NoError(t, err)

	require.NoError(t, env.svc.Abort(ctx, testActor, res.UploadID))

	status, err := env.svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.UploadStatusAborted, status.Upload.Status)
	assert.Equal(t, types.FileStatusFailed, status.File.Status)
	assert.Empty(t, status.Parts)

	q, err := env.ledger.Usage(ctx, testActor.TenantID)
	require.NoError(t, err)
	assert.Zero(t, q.UsedBytes)

	// Idempotent.
	require.NoError(t, env.svc.Abort(ctx, testActor, res.UploadID))

	// A completed upload cannot be aborted.
	data := []byte("done")
	done, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "d.txt", Size: int64(len(data))})
	require.NoError(t, err)
	st, err := env.svc.Status(ctx, testActor, done.UploadID)
	require.NoError(t, err)
	env.objects.Put(st.Upload.StorageKey, data)
	_, err = env.svc.Complete(ctx, testActor, &CompleteRequest{UploadID: done.UploadID})
	require.NoError(t, err)

	err = env.svc.Abort(ctx, testActor, done.UploadID)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidState, svcErr.Code)

	// The rejected abort must not have touched the committed object or
	// its quota.
	_, err = env.objects.Head(ctx, st.Upload.StorageKey)
	require.NoError(t, err)
	q, err = env.ledger.Usage(ctx, testActor.TenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), q.UsedBytes)
	assert.Equal(t, int64(1), q.UsedObjects)
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Init(ctx, testActor, &InitRequest{Filename: "secret.txt", Size: 4})
	require.NoError(t, err)

	other := types.Actor{TenantID: "rival", ActorID: "u-9", ActorType: types.ActorTypeUser}
	_, err = env.svc.Status(ctx, other, res.UploadID)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeNotFound, svcErr.Code)

	err = env.svc.Abort(ctx, other, res.UploadID)
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeNotFound, svcErr.Code)
}

func TestEmitterReceivesUploadEvent(t *testing.T) {
	t.Parallel()

	st := memory.New()
	obj := objectstore.NewMemoryStore()
	broker := events.NewMemoryBroker()
	defer broker.Close()

	svc, err := NewService(Config{
		Store:   st,
		Objects: obj,
		Quota:   quota.NewLedger(st),
		Emitter: events.NewEmitter(broker),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broker.Subscribe(ctx, events.TopicUploads)
	require.NoError(t, err)

	data := []byte("payload")
	res, err := svc.Init(ctx, testActor, &InitRequest{Filename: "p.bin", Size: int64(len(data))})
	require.NoError(t, err)

	st2, err := svc.Status(ctx, testActor, res.UploadID)
	require.NoError(t, err)
	obj.Put(st2.Upload.StorageKey, data)
	_, err = svc.Complete(ctx, testActor, &CompleteRequest{UploadID: res.UploadID})
	require.NoError(t, err)

	select {
	case raw := <-ch:
		env, err := events.Unmarshal(raw)
		require.NoError(t, err)
		assert.Equal(t, events.EventFileUploaded, env.EventName)
		assert.Equal(t, res.FileID, env.FileID)
		assert.Equal(t, testActor.TenantID, env.TenantID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
