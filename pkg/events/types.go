// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"encoding/json"
	"fmt"
)

// Event names emitted by the pipeline.
const (
	EventFileUploaded  = "file.uploaded"
	EventFileDeleted   = "file.deleted"
	EventFileRestored  = "file.restored"
	EventUploadExpired = "upload.expired"
)

// Topics events are published on.
const (
	TopicUploads   = "zapmedia:uploads"
	TopicLifecycle = "zapmedia:lifecycle"
)

// Envelope wraps every published event. EventID is the idempotency key
// consumers deduplicate on; re-deliveries reuse the same ID.
type Envelope struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds

	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id,omitempty"`

	FileID   string `json:"file_id,omitempty"`
	UploadID string `json:"upload_id,omitempty"`

	// Payload carries event-specific fields.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FileUploadedPayload is the payload of a file.uploaded event.
type FileUploadedPayload struct {
	StorageKey  string `json:"storage_key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Checksum    string `json:"checksum,omitempty"`
	ETag        string `json:"etag,omitempty"`
}

// Marshal serializes the envelope for the wire.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.EventName, err)
	}
	return data, nil
}

// Unmarshal parses a wire envelope.
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &e, nil
}
