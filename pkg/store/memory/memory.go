// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-memory store.Store implementation.
// NOT for production use - records are not persisted.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// Compile-time interface verification
var _ store.Store = (*Memory)(nil)

// Memory implements store.Store with mutex-guarded maps.
type Memory struct {
	mu sync.Mutex

	uploads     map[string]*types.Upload               // by UploadID
	parts       map[string][]*types.MultipartPart      // by UploadID
	files       map[string]*types.FileEntity           // by FileID
	derivatives map[string][]*types.FileDerivative     // by FileID
	quotas      map[string]*types.Quota                // by TenantID
	tokens      map[string]*types.DownloadToken        // by token ID
	policies    map[string]*types.LifecyclePolicy      // by policy ID
	audit       []*types.AuditEntry
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		uploads:     make(map[string]*types.Upload),
		parts:       make(map[string][]*types.MultipartPart),
		files:       make(map[string]*types.FileEntity),
		derivatives: make(map[string][]*types.FileDerivative),
		quotas:      make(map[string]*types.Quota),
		tokens:      make(map[string]*types.DownloadToken),
		policies:    make(map[string]*types.LifecyclePolicy),
	}
}

// ============================================================================
// UploadStore
// ============================================================================

func (m *Memory) CreateUpload(ctx context.Context, upload *types.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *upload
	m.uploads[upload.UploadID] = &cp
	return nil
}

func (m *Memory) GetUpload(ctx context.Context, uploadID string) (*types.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.uploads[uploadID]
	if !ok {
		return nil, store.ErrUploadNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) UpdateUpload(ctx context.Context, upload *types.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.uploads[upload.UploadID]
	if !ok {
		return store.ErrUploadNotFound
	}
	if cur.Version != upload.Version {
		return store.ErrVersionConflict
	}

	cp := *upload
	cp.Version++
	cp.UpdatedAt = time.Now().UnixNano()
	m.uploads[upload.UploadID] = &cp
	upload.Version = cp.Version
	upload.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *Memory) ListStaleUploads(ctx context.Context, cutoff int64, limit int) ([]*types.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*types.Upload
	for _, u := range m.uploads {
		if u.Status.Terminal() {
			continue
		}
		if u.ExpiresAt == 0 || u.ExpiresAt >= cutoff {
			continue
		}
		cp := *u
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) ListUploads(ctx context.Context, tenantID string, limit int) ([]*types.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*types.Upload
	for _, u := range m.uploads {
		if tenantID != "" && u.TenantID != tenantID {
			continue
		}
		cp := *u
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt < result[j].CreatedAt })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *Memory) UpsertPart(ctx context.Context, part *types.MultipartPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *part
	list := m.parts[part.UploadID]
	for i, p := range list {
		if p.PartNumber == part.PartNumber {
			list[i] = &cp
			return nil
		}
	}
	m.parts[part.UploadID] = append(list, &cp)
	return nil
}

func (m *Memory) ListParts(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.parts[uploadID]
	result := make([]*types.MultipartPart, 0, len(list))
	for _, p := range list {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PartNumber < result[j].PartNumber })
	return result, nil
}

func (m *Memory) DeleteParts(ctx context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.parts, uploadID)
	return nil
}

// ============================================================================
// FileStore
// ============================================================================

func (m *Memory) CreateFile(ctx context.Context, file *types.FileEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[file.FileID] = copyFile(file)
	return nil
}

func (m *Memory) GetFile(ctx context.Context, fileID string) (*types.FileEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[fileID]
	if !ok {
		return nil, store.ErrFileNotFound
	}
	return copyFile(f), nil
}

func (m *Memory) UpdateFile(ctx context.Context, file *types.FileEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.files[file.FileID]
	if !ok {
		return store.ErrFileNotFound
	}
	if cur.Version != file.Version {
		return store.ErrVersionConflict
	}

	cp := copyFile(file)
	cp.Version++
	cp.UpdatedAt = time.Now().UnixNano()
	m.files[file.FileID] = cp
	file.Version = cp.Version
	file.UpdatedAt = cp.UpdatedAt
	return nil
}

func (m *Memory) FindByChecksum(ctx context.Context, tenantID, checksum string) (*types.FileEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		if f.TenantID == tenantID && f.Checksum == checksum && f.Status == types.FileStatusCompleted {
			return copyFile(f), nil
		}
	}
	return nil, store.ErrFileNotFound
}

func (m *Memory) ListDeletedBefore(ctx context.Context, cutoff int64, limit int) ([]*types.FileEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*types.FileEntity
	for _, f := range m.files {
		if f.Status != types.FileStatusDeleted || f.DeletedAt >= cutoff {
			continue
		}
		result = append(result, copyFile(f))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) ListCreatedBefore(ctx context.Context, tenantID string, cutoff int64, limit int) ([]*types.FileEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*types.FileEntity
	for _, f := range m.files {
		if f.Status == types.FileStatusDeleted || f.CreatedAt >= cutoff {
			continue
		}
		if tenantID != "" && f.TenantID != tenantID {
			continue
		}
		result = append(result, copyFile(f))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) DeleteFile(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, fileID)
	delete(m.derivatives, fileID)
	return nil
}

func (m *Memory) CreateDerivative(ctx context.Context, d *types.FileDerivative) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.derivatives[d.FileID] = append(m.derivatives[d.FileID], &cp)
	return nil
}

func (m *Memory) ListDerivatives(ctx context.Context, fileID string) ([]*types.FileDerivative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.derivatives[fileID]
	result := make([]*types.FileDerivative, 0, len(list))
	for _, d := range list {
		cp := *d
		result = append(result, &cp)
	}
	return result, nil
}

// ============================================================================
// QuotaStore
// ============================================================================

func (m *Memory) GetQuota(ctx context.Context, tenantID string) (*types.Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[tenantID]
	if !ok {
		return nil, store.ErrQuotaNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *Memory) SetQuotaLimits(ctx context.Context, tenantID string, maxBytes, maxObjects int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[tenantID]
	if !ok {
		q = &types.Quota{TenantID: tenantID}
		m.quotas[tenantID] = q
	}
	q.MaxBytes = maxBytes
	q.MaxObjects = maxObjects
	q.UpdatedAt = time.Now().UnixNano()
	return nil
}

func (m *Memory) Reserve(ctx context.Context, tenantID string, bytes, objects int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[tenantID]
	if !ok {
		// Unknown tenant: admit with unlimited quota, mirroring the
		// postgres upsert-on-reserve behavior.
		q = &types.Quota{TenantID: tenantID}
		m.quotas[tenantID] = q
	}

	if q.MaxBytes > 0 && q.UsedBytes+bytes > q.MaxBytes {
		return store.ErrBytesQuotaExceeded
	}
	if q.MaxObjects > 0 && q.UsedObjects+objects > q.MaxObjects {
		return store.ErrObjectQuotaExceeded
	}

	q.UsedBytes += bytes
	q.UsedObjects += objects
	q.UpdatedAt = time.Now().UnixNano()
	return nil
}

func (m *Memory) ForceAdd(ctx context.Context, tenantID string, bytes, objects int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[tenantID]
	if !ok {
		q = &types.Quota{TenantID: tenantID}
		m.quotas[tenantID] = q
	}
	q.UsedBytes += bytes
	q.UsedObjects += objects
	q.UpdatedAt = time.Now().UnixNano()
	return nil
}

func (m *Memory) Release(ctx context.Context, tenantID string, bytes, objects int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotas[tenantID]
	if !ok {
		return nil
	}

	q.UsedBytes -= bytes
	if q.UsedBytes < 0 {
		q.UsedBytes = 0
	}
	q.UsedObjects -= objects
	if q.UsedObjects < 0 {
		q.UsedObjects = 0
	}
	q.UpdatedAt = time.Now().UnixNano()
	return nil
}

// ============================================================================
// TokenStore / PolicyStore / AuditStore
// ============================================================================

func (m *Memory) CreateDownloadToken(ctx context.Context, token *types.DownloadToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *token
	m.tokens[token.ID.String()] = &cp
	return nil
}

func (m *Memory) DeleteExpiredTokens(ctx context.Context, cutoff int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt < cutoff {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListPolicies(ctx context.Context) ([]*types.LifecyclePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*types.LifecyclePolicy, 0, len(m.policies))
	for _, p := range m.policies {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpsertPolicy(ctx context.Context, policy *types.LifecyclePolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *policy
	m.policies[policy.ID] = &cp
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	if entry.Metadata != nil {
		cp.Metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			cp.Metadata[k] = v
		}
	}
	m.audit = append(m.audit, &cp)
	return nil
}

func (m *Memory) ListAudit(ctx context.Context, tenantID string, limit int) ([]*types.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*types.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		cp := *e
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) Close() error {
	return nil
}

func copyFile(f *types.FileEntity) *types.FileEntity {
	cp := *f
	if f.Metadata != nil {
		cp.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
