// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store/memory"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

var testActor = types.Actor{TenantID: "acme", ActorID: "u-1", ActorType: types.ActorTypeUser}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T) (Service, *memory.Memory, *objectstore.MemoryStore) {
	t.Helper()
	st := memory.New()
	obj := objectstore.NewMemoryStore()
	svc, err := NewService(Config{
		Store:         st,
		Objects:       obj,
		Audit:         audit.NewRecorder(st),
		SigningSecret: testSecret,
		SignedURLTTL:  time.Minute,
	})
	require.NoError(t, err)
	return svc, st, obj
}

func seedFile(t *testing.T, st *memory.Memory, obj *objectstore.MemoryStore, status types.FileStatus, policy types.AccessPolicy) *types.FileEntity {
	t.Helper()
	now := time.Now().UnixNano()
	file := &types.FileEntity{
		FileID:       "f-" + string(status) + "-" + string(policy),
		TenantID:     testActor.TenantID,
		OwnerID:      testActor.ActorID,
		Status:       status,
		AccessPolicy: policy,
		Filename:     "sample.jpg",
		ContentType:  "image/jpeg",
		Size:         4,
		StorageKey:   testActor.TenantID + "/" + string(status),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	obj.Put(file.StorageKey, []byte("data"))
	require.NoError(t, st.CreateFile(context.Background(), file))
	return file
}

func TestNewServiceValidation(t *testing.T) {
	t.Parallel()

	_, err := NewService(Config{})
	assert.Error(t, err)

	_, err = NewService(Config{Store: memory.New(), Objects: objectstore.NewMemoryStore()})
	assert.Error(t, err, "missing signing secret")
}

func TestStatusTriState(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	pending := seedFile(t, st, obj, types.FileStatusUploading, types.AccessPublic)
	res, err := svc.Status(ctx, testActor, pending.FileID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, res.State)
	assert.Nil(t, res.URL)

	done := seedFile(t, st, obj, types.FileStatusCompleted, types.AccessPublic)
	res, err = svc.Status(ctx, testActor, done.FileID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, res.State)
	require.NotNil(t, res.URL)
	assert.NotEmpty(t, res.URL.URL)

	failed := seedFile(t, st, obj, types.FileStatusFailed, types.AccessPublic)
	failed.Metadata = map[string]string{types.MetaScanVerdict: "infected"}
	require.NoError(t, st.UpdateFile(ctx, failed))
	res, err = svc.Status(ctx, testActor, failed.FileID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Contains(t, res.Reason, "infected")
}

func TestPublicURLIsStable(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	file := seedFile(t, st, obj, types.FileStatusCompleted, types.AccessPublic)

	first, err := svc.IssueURL(ctx, testActor, file.FileID)
	require.NoError(t, err)
	second, err := svc.IssueURL(ctx, testActor, file.FileID)
	require.NoError(t, err)

	assert.Equal(t, first.URL, second.URL)
	assert.Zero(t, first.ExpiresAt)
	assert.Empty(t, first.Token)
}

func TestPrivateURLSignedAndVerifiable(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	file := seedFile(t, st, obj, types.FileStatusCompleted, types.AccessPrivate)

	res, err := svc.IssueURL(ctx, testActor, file.FileID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.URL)
	assert.NotEmpty(t, res.Token)
	assert.Greater(t, res.ExpiresAt, time.Now().UnixNano())

	verified, err := svc.VerifyToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, file.FileID, verified.FileID)
}

func TestVerifyTokenRejectsForgery(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	file := seedFile(t, st, obj, types.FileStatusCompleted, types.AccessPrivate)

	// Signed with the wrong key.
	claims := jwt.RegisteredClaims{
		Issuer:    "zapmedia",
		Subject:   file.FileID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong key"))
	require.NoError(t, err)

	_, err = svc.VerifyToken(ctx, forged)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeTokenInvalid, svcErr.Code)

	// Expired token, correct key.
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = svc.VerifyToken(ctx, expired)
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeTokenInvalid, svcErr.Code)
}

func TestIssueURLRequiresCompleted(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	file := seedFile(t, st, obj, types.FileStatusUploading, types.AccessPrivate)
	_, err := svc.IssueURL(ctx, testActor, file.FileID)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidState, svcErr.Code)
}

func TestChangeAccessPolicy(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	file := seedFile(t, st, obj, types.FileStatusCompleted, types.AccessPrivate)

	require.NoError(t, svc.ChangeAccessPolicy(ctx, testActor, file.FileID, types.AccessPublic))
	got, err := svc.Get(ctx, testActor, file.FileID)
	require.NoError(t, err)
	assert.Equal(t, types.AccessPublic, got.AccessPolicy)

	// Same policy is a no-op.
	require.NoError(t, svc.ChangeAccessPolicy(ctx, testActor, file.FileID, types.AccessPublic))

	err = svc.ChangeAccessPolicy(ctx, testActor, file.FileID, "SHARED")
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidArgument, svcErr.Code)

	// Audited with before/after.
	entries, err := st.ListAudit(ctx, testActor.TenantID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, types.AuditActionUpdatePolicy, entries[0].Action)
	assert.Equal(t, "PRIVATE", entries[0].Metadata["from"])
	assert.Equal(t, "PUBLIC", entries[0].Metadata["to"])
}

func TestDeleteAndRestore(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	file := seedFile(t, st, obj, types.FileStatusCompleted, types.AccessPublic)

	require.NoError(t, svc.MarkDeleted(ctx, testActor, file.FileID))
	got, err := svc.Get(ctx, testActor, file.FileID)
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusDeleted, got.Status)
	assert.NotZero(t, got.DeletedAt)

	// Deleting again is a no-op.
	require.NoError(t, svc.MarkDeleted(ctx, testActor, file.FileID))

	// No URLs for deleted files.
	_, err = svc.IssueURL(ctx, testActor, file.FileID)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidState, svcErr.Code)

	require.NoError(t, svc.Restore(ctx, testActor, file.FileID))
	got, err = svc.Get(ctx, testActor, file.FileID)
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusCompleted, got.Status)
	assert.Zero(t, got.DeletedAt)

	// Restoring a live file is an error.
	err = svc.Restore(ctx, testActor, file.FileID)
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidState, svcErr.Code)
}

func TestMarkDeletedRejectsInFlight(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	file := seedFile(t, st, obj, types.FileStatusUploading, types.AccessPublic)
	err := svc.MarkDeleted(ctx, testActor, file.FileID)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeInvalidState, svcErr.Code)
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()
	svc, st, obj := newTestService(t)
	ctx := context.Background()

	file := seedFile(t, st, obj, types.FileStatusCompleted, types.AccessPrivate)

	other := types.Actor{TenantID: "rival", ActorID: "u-9", ActorType: types.ActorTypeUser}
	_, err := svc.Get(ctx, other, file.FileID)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ErrCodeNotFound, svcErr.Code)
}
