// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/events"
	"github.com/LeeDigitalWorks/zapmedia/pkg/jobs"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/quota"
	"github.com/LeeDigitalWorks/zapmedia/pkg/registry"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store/memory"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
	"github.com/LeeDigitalWorks/zapmedia/pkg/upload"
)

type testEnv struct {
	server  *httptest.Server
	store   *memory.Memory
	objects *objectstore.MemoryStore
	queue   jobs.Queue
}

func newTestEnv(t *testing.T, cfgMut ...func(*Config)) *testEnv {
	t.Helper()
	st := memory.New()
	obj := objectstore.NewMemoryStore()
	ledger := quota.NewLedger(st)
	recorder := audit.NewRecorder(st)

	uploads, err := upload.NewService(upload.Config{
		Store:   st,
		Objects: obj,
		Quota:   ledger,
		Audit:   recorder,
		Emitter: events.NoopEmitter(),
	})
	require.NoError(t, err)

	reg, err := registry.NewService(registry.Config{
		Store:         st,
		Objects:       obj,
		Audit:         recorder,
		SigningSecret: []byte("0123456789abcdef0123456789abcdef"),
	})
	require.NoError(t, err)

	queue := jobs.NewMemoryQueue()
	cfg := Config{
		Uploads:  uploads,
		Registry: reg,
		Quota:    ledger,
		Audit:    recorder,
		Jobs:     queue,
	}
	for _, mut := range cfgMut {
		mut(&cfg)
	}

	handler, err := NewHandler(cfg)
	require.NoError(t, err)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: st, objects: obj, queue: queue}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set(HeaderTenantID, "acme")
	req.Header.Set(HeaderActorID, "u-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestMissingTenantHeader(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/uploads")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	data := []byte("hello http")
	var initRes upload.InitResult
	resp := env.do(t, http.MethodPost, "/v1/uploads", upload.InitRequest{
		Filename:    "hello.txt",
		ContentType: "text/plain",
		Size:        int64(len(data)),
	}, &initRes)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, initRes.PutURL)

	// Simulate the client PUT.
	var status upload.StatusResult
	resp = env.do(t, http.MethodGet, "/v1/uploads/"+initRes.UploadID, nil, &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env.objects.Put(status.Upload.StorageKey, data)

	var completed upload.CompleteResult
	resp = env.do(t, http.MethodPost, "/v1/uploads/"+initRes.UploadID+"/complete", nil, &completed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.FileStatusCompleted, completed.File.Status)

	// File status poll reports ready with a URL.
	var fileStatus registry.StatusResult
	resp = env.do(t, http.MethodGet, "/v1/files/"+initRes.FileID+"/status", nil, &fileStatus)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, registry.StateReady, fileStatus.State)
	require.NotNil(t, fileStatus.URL)

	// Quota reflects the stored bytes.
	var q types.Quota
	resp = env.do(t, http.MethodGet, "/v1/quota", nil, &q)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(len(data)), q.UsedBytes)

	// Audit trail recorded the lifecycle.
	var entries []*types.AuditEntry
	resp = env.do(t, http.MethodGet, "/v1/audit", nil, &entries)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, entries)
}

func TestCompleteValidationErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var initRes upload.InitResult
	env.do(t, http.MethodPost, "/v1/uploads", upload.InitRequest{Filename: "x.bin", Size: 10}, &initRes)

	// No bytes uploaded.
	var errBody map[string]string
	resp := env.do(t, http.MethodPost, "/v1/uploads/"+initRes.UploadID+"/complete", nil, &errBody)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "missing_part", errBody["code"])

	resp = env.do(t, http.MethodGet, "/v1/uploads/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteAndRestoreFile(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	data := []byte("bytes")
	var initRes upload.InitResult
	env.do(t, http.MethodPost, "/v1/uploads", upload.InitRequest{Filename: "d.bin", Size: int64(len(data))}, &initRes)
	var status upload.StatusResult
	env.do(t, http.MethodGet, "/v1/uploads/"+initRes.UploadID, nil, &status)
	env.objects.Put(status.Upload.StorageKey, data)
	env.do(t, http.MethodPost, "/v1/uploads/"+initRes.UploadID+"/complete", nil, nil)

	resp := env.do(t, http.MethodDelete, "/v1/files/"+initRes.FileID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var file types.FileEntity
	env.do(t, http.MethodGet, "/v1/files/"+initRes.FileID, nil, &file)
	assert.Equal(t, types.FileStatusDeleted, file.Status)

	resp = env.do(t, http.MethodPost, "/v1/files/"+initRes.FileID+"/restore", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.do(t, http.MethodGet, "/v1/files/"+initRes.FileID, nil, &file)
	assert.Equal(t, types.FileStatusCompleted, file.Status)
}

func TestAccessPolicyAndDownloadToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	data := []byte("private bytes")
	var initRes upload.InitResult
	env.do(t, http.MethodPost, "/v1/uploads", upload.InitRequest{
		Filename: "p.bin", Size: int64(len(data)), AccessPolicy: types.AccessPrivate,
	}, &initRes)
	var status upload.StatusResult
	env.do(t, http.MethodGet, "/v1/uploads/"+initRes.UploadID, nil, &status)
	env.objects.Put(status.Upload.StorageKey, data)
	env.do(t, http.MethodPost, "/v1/uploads/"+initRes.UploadID+"/complete", nil, nil)

	var url registry.URLResult
	resp := env.do(t, http.MethodGet, "/v1/files/"+initRes.FileID+"/url", nil, &url)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, url.Token)

	// The signed token resolves without identity headers.
	dlResp, err := http.Get(env.server.URL + "/v1/download?token=" + url.Token)
	require.NoError(t, err)
	defer dlResp.Body.Close()
	assert.Equal(t, http.StatusOK, dlResp.StatusCode)

	// A garbage token is rejected.
	dlResp, err = http.Get(env.server.URL + "/v1/download?token=garbage")
	require.NoError(t, err)
	defer dlResp.Body.Close()
	assert.Equal(t, http.StatusForbidden, dlResp.StatusCode)

	// Flip to public: stable URL, no token.
	resp = env.do(t, http.MethodPut, "/v1/files/"+initRes.FileID+"/policy", map[string]string{"policy": "PUBLIC"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	url = registry.URLResult{}
	env.do(t, http.MethodGet, "/v1/files/"+initRes.FileID+"/url", nil, &url)
	assert.Empty(t, url.Token)
	assert.Zero(t, url.ExpiresAt)
}

func TestInitRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(cfg *Config) {
		cfg.InitRate = 1
		cfg.InitBurst = 2
	})

	var lastCode int
	for i := 0; i < 5; i++ {
		resp := env.do(t, http.MethodPost, "/v1/uploads", upload.InitRequest{
			Filename: fmt.Sprintf("f-%d.bin", i), Size: 1,
		}, nil)
		lastCode = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestQuotaLimitEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var q types.Quota
	resp := env.do(t, http.MethodPut, "/v1/quota/limits", map[string]int64{"max_bytes": 100, "max_objects": 2}, &q)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(100), q.MaxBytes)

	var errBody map[string]string
	resp = env.do(t, http.MethodPost, "/v1/uploads", upload.InitRequest{Filename: "big.bin", Size: 500}, &errBody)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "quota_exceeded", errBody["code"])
}

func TestJobAdminEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	job := &jobs.Job{
		ID:        "evt-1:scan",
		Type:      jobs.JobTypeScan,
		Payload:   []byte(`{}`),
		CreatedAt: time.Now().UnixNano(),
	}
	require.NoError(t, env.queue.Enqueue(ctx, job))

	var list []*jobs.Job
	resp := env.do(t, http.MethodGet, "/v1/jobs?status=pending", nil, &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list, 1)

	var got jobs.Job
	resp = env.do(t, http.MethodGet, "/v1/jobs/"+job.ID, nil, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, jobs.JobTypeScan, got.Type)

	var stats jobs.QueueStats
	resp = env.do(t, http.MethodGet, "/v1/jobs/stats", nil, &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), stats.Pending)

	// Requeue only applies to dead-letter jobs.
	resp = env.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/requeue", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/jobs/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
