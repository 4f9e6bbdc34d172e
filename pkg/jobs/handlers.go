// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/events"
	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// maxCASRetries bounds the optimistic-update loop against worker races.
const maxCASRetries = 5

// Verdict is the outcome of a content scan.
type Verdict string

const (
	VerdictClean    Verdict = "clean"
	VerdictInfected Verdict = "infected"
)

// Scanner checks stored content. Implementations typically call out to
// an external scanning engine.
type Scanner interface {
	Scan(ctx context.Context, key, contentType string, size int64) (Verdict, string, error)
}

// NoopScanner approves everything. Used when no scanning engine is
// configured.
type NoopScanner struct{}

func (NoopScanner) Scan(ctx context.Context, key, contentType string, size int64) (Verdict, string, error) {
	return VerdictClean, "no scanner configured", nil
}

// ============================================================================
// Scan
// ============================================================================

// ScanHandler runs content scanning. A clean verdict annotates the file;
// an infected verdict quarantines it by flipping the file to FAILED so
// the registry stops issuing URLs for it.
type ScanHandler struct {
	Files   store.FileStore
	Objects objectstore.ObjectStore
	Scanner Scanner
	Audit   *audit.Recorder
}

func (h *ScanHandler) Type() JobType { return JobTypeScan }

func (h *ScanHandler) Handle(ctx context.Context, job *Job) error {
	var p ProcessPayload
	if err := UnmarshalPayload(job.Payload, &p); err != nil {
		return err
	}

	if _, err := h.Objects.Head(ctx, p.StorageKey); err != nil {
		return fmt.Errorf("source object: %w", err)
	}

	verdict, detail, err := h.Scanner.Scan(ctx, p.StorageKey, p.ContentType, p.Size)
	if err != nil {
		return fmt.Errorf("scan %s: %w", p.StorageKey, err)
	}

	err = updateFileWithRetry(ctx, h.Files, p.FileID, func(f *types.FileEntity) {
		if f.Metadata == nil {
			f.Metadata = make(map[string]string)
		}
		f.Metadata[types.MetaScanVerdict] = string(verdict)
		f.Metadata[types.MetaScanResult] = detail
		if verdict == VerdictInfected {
			f.Status = types.FileStatusFailed
		}
	})
	if err != nil {
		return err
	}

	if verdict == VerdictInfected {
		logger.Warn().
			Str("file_id", p.FileID).
			Str("tenant_id", p.TenantID).
			Str("detail", detail).
			Msg("jobs: file quarantined by scan")
		if h.Audit != nil {
			h.Audit.Record(ctx, audit.Entry{
				Actor:    types.System(p.TenantID),
				Action:   types.AuditActionUpdatePolicy,
				FileID:   p.FileID,
				Metadata: map[string]string{"verdict": string(verdict), "detail": detail},
			})
		}
	}
	return nil
}

// ============================================================================
// Derivatives (thumbnail, preview, transcode)
// ============================================================================

// Renderer produces derivative content for a source object and returns
// the derivative's object info.
type Renderer interface {
	Render(ctx context.Context, srcKey, dstKey, contentType string) (*objectstore.ObjectInfo, error)
}

// CopyRenderer is the identity renderer: the derivative is a server-side
// copy of the source. Deployments with a media engine replace this.
type CopyRenderer struct {
	Objects objectstore.ObjectStore
}

func (r *CopyRenderer) Render(ctx context.Context, srcKey, dstKey, contentType string) (*objectstore.ObjectInfo, error) {
	return r.Objects.Copy(ctx, srcKey, dstKey)
}

// DerivativeHandler generates one kind of derivative (thumbnail, preview
// or transcode output) and records it on the file. Re-running on the
// same file overwrites the same derivative key, so retries and duplicate
// deliveries converge on one result.
type DerivativeHandler struct {
	JobKind  JobType
	MetaKey  string
	Files    store.FileStore
	Renderer Renderer
	Audit    *audit.Recorder
}

// NewThumbnailHandler builds the thumbnail derivative handler.
func NewThumbnailHandler(files store.FileStore, r Renderer, rec *audit.Recorder) *DerivativeHandler {
	return &DerivativeHandler{JobKind: JobTypeThumbnail, MetaKey: types.MetaThumbnailKey, Files: files, Renderer: r, Audit: rec}
}

// NewPreviewHandler builds the preview derivative handler.
func NewPreviewHandler(files store.FileStore, r Renderer, rec *audit.Recorder) *DerivativeHandler {
	return &DerivativeHandler{JobKind: JobTypePreview, MetaKey: types.MetaPreviewKey, Files: files, Renderer: r, Audit: rec}
}

// NewTranscodeHandler builds the transcode derivative handler.
func NewTranscodeHandler(files store.FileStore, r Renderer, rec *audit.Recorder) *DerivativeHandler {
	return &DerivativeHandler{JobKind: JobTypeTranscode, MetaKey: types.MetaTranscodeKey, Files: files, Renderer: r, Audit: rec}
}

func (h *DerivativeHandler) Type() JobType { return h.JobKind }

func (h *DerivativeHandler) Handle(ctx context.Context, job *Job) error {
	var p ProcessPayload
	if err := UnmarshalPayload(job.Payload, &p); err != nil {
		return err
	}

	file, err := h.Files.GetFile(ctx, p.FileID)
	if err != nil {
		return err
	}
	if file.IsDeleted() || file.Status == types.FileStatusFailed {
		// Quarantined or deleted since the event fired; nothing to do.
		logger.Debug().
			Str("file_id", p.FileID).
			Str("status", string(file.Status)).
			Msg("jobs: skipping derivative for inactive file")
		return nil
	}

	dstKey := fmt.Sprintf("derivatives/%s/%s", h.JobKind, p.FileID)
	info, err := h.Renderer.Render(ctx, p.StorageKey, dstKey, p.ContentType)
	if err != nil {
		return fmt.Errorf("render %s: %w", h.JobKind, err)
	}

	if err := h.Files.CreateDerivative(ctx, &types.FileDerivative{
		ID:          uuid.New(),
		FileID:      p.FileID,
		Kind:        string(h.JobKind),
		StorageKey:  info.Key,
		ContentType: p.ContentType,
		Size:        info.Size,
		CreatedAt:   time.Now().UnixNano(),
	}); err != nil {
		return fmt.Errorf("record derivative: %w", err)
	}

	if err := updateFileWithRetry(ctx, h.Files, p.FileID, func(f *types.FileEntity) {
		if f.Metadata == nil {
			f.Metadata = make(map[string]string)
		}
		f.Metadata[h.MetaKey] = info.Key
	}); err != nil {
		return err
	}

	if h.JobKind == JobTypePreview && h.Audit != nil {
		h.Audit.Record(ctx, audit.Entry{
			Actor:  types.System(p.TenantID),
			Action: types.AuditActionGeneratePreview,
			FileID: p.FileID,
		})
	}
	return nil
}

// ============================================================================
// Notify
// ============================================================================

// NotifyHandler republishes a processed notification for downstream
// consumers (webhooks, search indexers) on the lifecycle topic.
type NotifyHandler struct {
	Publisher events.Publisher
}

func (h *NotifyHandler) Type() JobType { return JobTypeNotify }

func (h *NotifyHandler) Handle(ctx context.Context, job *Job) error {
	var p ProcessPayload
	if err := UnmarshalPayload(job.Payload, &p); err != nil {
		return err
	}

	env := &events.Envelope{
		EventID:   p.EventID + ":notify",
		EventName: events.EventFileUploaded,
		Timestamp: time.Now().UnixMilli(),
		TenantID:  p.TenantID,
		FileID:    p.FileID,
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return h.Publisher.Publish(ctx, events.TopicLifecycle, data)
}

// updateFileWithRetry applies mutate under the version CAS, retrying on
// conflicts with concurrent workers.
func updateFileWithRetry(ctx context.Context, files store.FileStore, fileID string, mutate func(*types.FileEntity)) error {
	for i := 0; i < maxCASRetries; i++ {
		file, err := files.GetFile(ctx, fileID)
		if err != nil {
			return err
		}
		mutate(file)
		err = files.UpdateFile(ctx, file)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("update file %s: %w", fileID, store.ErrVersionConflict)
}
