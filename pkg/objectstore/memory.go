// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process ObjectStore for tests and local development.
// Presigned URLs are synthetic and not actually routable.
type MemoryStore struct {
	mu        sync.Mutex
	objects   map[string]memObject
	multipart map[string]*memUpload // by store upload ID
}

type memObject struct {
	data     []byte
	etag     string
	modified time.Time
}

type memUpload struct {
	key   string
	parts map[int][]byte
}

var _ ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:   make(map[string]memObject),
		multipart: make(map[string]*memUpload),
	}
}

// Put stores object bytes directly, standing in for a client PUT against
// a presigned URL.
func (m *MemoryStore) Put(key string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])
	m.objects[key] = memObject{data: append([]byte(nil), data...), etag: etag, modified: time.Now()}
	return etag
}

// PutPart stores one part of a multipart upload and returns its ETag.
func (m *MemoryStore) PutPart(storeUploadID string, partNumber int, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	up, ok := m.multipart[storeUploadID]
	if !ok {
		return "", ErrUploadNotFound
	}
	up.parts[partNumber] = append([]byte(nil), data...)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

func (m *MemoryStore) PresignPut(ctx context.Context, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://put/%s?expires=%d", key, time.Now().Add(expires).Unix()), nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://get/%s?expires=%d", key, time.Now().Add(expires).Unix()), nil
}

func (m *MemoryStore) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.multipart[id] = &memUpload{key: key, parts: make(map[int][]byte)}
	return id, nil
}

func (m *MemoryStore) PresignPart(ctx context.Context, key, storeUploadID string, partNumber int, expires time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.multipart[storeUploadID]; !ok {
		return "", ErrUploadNotFound
	}
	return fmt.Sprintf("memory://part/%s/%d?expires=%d", storeUploadID, partNumber, time.Now().Add(expires).Unix()), nil
}

func (m *MemoryStore) MergeParts(ctx context.Context, key, storeUploadID string, parts []PartUpload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	up, ok := m.multipart[storeUploadID]
	if !ok {
		return "", ErrUploadNotFound
	}

	var merged []byte
	for _, p := range parts {
		data, ok := up.parts[p.PartNumber]
		if !ok {
			return "", fmt.Errorf("part %d never uploaded", p.PartNumber)
		}
		merged = append(merged, data...)
	}

	sum := md5.Sum(merged)
	etag := hex.EncodeToString(sum[:])
	m.objects[key] = memObject{data: merged, etag: etag, modified: time.Now()}
	delete(m.multipart, storeUploadID)
	return etag, nil
}

func (m *MemoryStore) AbortMultipart(ctx context.Context, key, storeUploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.multipart, storeUploadID)
	return nil
}

func (m *MemoryStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		LastModified: obj.modified,
	}, nil
}

func (m *MemoryStore) Copy(ctx context.Context, srcKey, dstKey string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.objects[srcKey]
	if !ok {
		return nil, ErrObjectNotFound
	}
	cp := memObject{data: append([]byte(nil), src.data...), etag: src.etag, modified: time.Now()}
	m.objects[dstKey] = cp
	return &ObjectInfo{
		Key:          dstKey,
		Size:         int64(len(cp.data)),
		ETag:         cp.etag,
		LastModified: cp.modified,
	}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) PublicURL(key string) string {
	return "memory://public/" + key
}
