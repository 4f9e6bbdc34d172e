// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/events"
	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/quota"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// Default configuration values
const (
	DefaultURLTTL             = 15 * time.Minute
	DefaultUploadTTL          = 24 * time.Hour
	DefaultPartSize           = 8 << 20  // 8 MiB
	DefaultMultipartThreshold = 64 << 20 // 64 MiB
	MaxParts                  = 10000
)

const casRetries = 5

// Config holds configuration for the upload service
type Config struct {
	Store   store.Store
	Objects objectstore.ObjectStore
	Quota   *quota.Ledger
	Audit   *audit.Recorder
	Emitter *events.Emitter // Optional, for pipeline event notifications

	// URLTTL is the lifetime of issued presigned URLs.
	URLTTL time.Duration
	// UploadTTL is how long a non-terminal upload may linger before the
	// sweeper expires it.
	UploadTTL time.Duration
	// PartSize is the advertised multipart part size.
	PartSize int64
	// MultipartThreshold is the size at which uploads become multipart.
	MultipartThreshold int64
}

// serviceImpl implements the Service interface
type serviceImpl struct {
	store   store.Store
	objects objectstore.ObjectStore
	quota   *quota.Ledger
	audit   *audit.Recorder
	emitter *events.Emitter

	urlTTL             time.Duration
	uploadTTL          time.Duration
	partSize           int64
	multipartThreshold int64
}

// NewService creates a new upload service
func NewService(cfg Config) (Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("Store is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("Objects is required")
	}
	if cfg.Quota == nil {
		return nil, errors.New("Quota is required")
	}

	if cfg.URLTTL == 0 {
		cfg.URLTTL = DefaultURLTTL
	}
	if cfg.UploadTTL == 0 {
		cfg.UploadTTL = DefaultUploadTTL
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = DefaultPartSize
	}
	if cfg.MultipartThreshold == 0 {
		cfg.MultipartThreshold = DefaultMultipartThreshold
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.NoopEmitter()
	}

	return &serviceImpl{
		store:              cfg.Store,
		objects:            cfg.Objects,
		quota:              cfg.Quota,
		audit:              cfg.Audit,
		emitter:            cfg.Emitter,
		urlTTL:             cfg.URLTTL,
		uploadTTL:          cfg.UploadTTL,
		partSize:           cfg.PartSize,
		multipartThreshold: cfg.MultipartThreshold,
	}, nil
}

func (s *serviceImpl) Init(ctx context.Context, actor types.Actor, req *InitRequest) (*InitResult, error) {
	if err := validateInit(actor, req); err != nil {
		return nil, err
	}

	policy := req.AccessPolicy
	if policy == "" {
		policy = types.AccessPrivate
	}

	multipart := req.Multipart || req.Size >= s.multipartThreshold
	partCount := 0
	if multipart {
		partCount = int((req.Size + s.partSize - 1) / s.partSize)
		if partCount < 1 {
			partCount = 1
		}
		if partCount > MaxParts {
			return nil, &Error{
				Code:    ErrCodeInvalidArgument,
				Message: fmt.Sprintf("size requires %d parts, maximum is %d", partCount, MaxParts),
			}
		}
	}

	// Instant upload: a declared checksum matching an existing completed
	// object skips the byte transfer entirely.
	if req.Checksum != "" {
		source, err := s.store.FindByChecksum(ctx, actor.TenantID, req.Checksum)
		if err == nil {
			return s.initDeduplicated(ctx, actor, source)
		}
		if !errors.Is(err, store.ErrFileNotFound) {
			return nil, &Error{Code: ErrCodeInternalError, Message: "dedup lookup failed", Err: err}
		}
	}

	if err := s.quota.Reserve(ctx, actor.TenantID, req.Size, 1); err != nil {
		var deny *quota.DenyError
		if errors.As(err, &deny) {
			return nil, &Error{Code: ErrCodeQuotaExceeded, Message: "tenant quota exceeded", Err: deny}
		}
		return nil, &Error{Code: ErrCodeInternalError, Message: "quota reservation failed", Err: err}
	}

	result, err := s.initAdmitted(ctx, actor, req, policy, multipart, partCount)
	if err != nil {
		// The reservation must not leak.
		if relErr := s.quota.Release(ctx, actor.TenantID, req.Size, 1); relErr != nil {
			logger.Error().Err(relErr).Str("tenant_id", actor.TenantID).Msg("upload: release after failed init")
		}
		return nil, err
	}
	return result, nil
}

func (s *serviceImpl) initAdmitted(ctx context.Context, actor types.Actor, req *InitRequest, policy types.AccessPolicy, multipart bool, partCount int) (*InitResult, error) {
	now := time.Now()
	fileID := uuid.NewString()
	storageKey := actor.TenantID + "/" + fileID
	uploadUUID := uuid.New()
	uploadID := base64.RawURLEncoding.EncodeToString(uploadUUID[:])
	expiresAt := now.Add(s.uploadTTL).UnixNano()

	file := &types.FileEntity{
		FileID:       fileID,
		TenantID:     actor.TenantID,
		OwnerID:      actor.ActorID,
		Status:       types.FileStatusUploading,
		AccessPolicy: policy,
		Filename:     req.Filename,
		ContentType:  req.ContentType,
		Size:         req.Size,
		Checksum:     req.Checksum,
		StorageKey:   storageKey,
		CreatedAt:    now.UnixNano(),
		UpdatedAt:    now.UnixNano(),
	}
	if err := s.store.CreateFile(ctx, file); err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "create file record", Err: err}
	}

	up := &types.Upload{
		ID:           uploadUUID,
		UploadID:     uploadID,
		FileID:       fileID,
		TenantID:     actor.TenantID,
		OwnerID:      actor.ActorID,
		Status:       types.UploadStatusInit,
		Multipart:    multipart,
		PartCount:    partCount,
		DeclaredSize: req.Size,
		ContentType:  req.ContentType,
		Checksum:     req.Checksum,
		StorageKey:   storageKey,
		CreatedAt:    now.UnixNano(),
		UpdatedAt:    now.UnixNano(),
		ExpiresAt:    expiresAt,
	}

	result := &InitResult{
		UploadID:  uploadID,
		FileID:    fileID,
		ExpiresAt: expiresAt,
	}

	if multipart {
		up.PartSize = s.partSize
		storeUploadID, err := s.objects.CreateMultipart(ctx, storageKey, req.ContentType)
		if err != nil {
			return nil, &Error{Code: ErrCodeInternalError, Message: "create store upload", Err: err}
		}
		up.StoreUploadID = storeUploadID

		urlExpiry := now.Add(s.urlTTL).UnixNano()
		for n := 1; n <= partCount; n++ {
			url, err := s.objects.PresignPart(ctx, storageKey, storeUploadID, n, s.urlTTL)
			if err != nil {
				s.objects.AbortMultipart(ctx, storageKey, storeUploadID)
				return nil, &Error{Code: ErrCodeInternalError, Message: "presign part", Err: err}
			}
			result.PartURLs = append(result.PartURLs, PartURL{PartNumber: n, URL: url, ExpiresAt: urlExpiry})
		}
		result.PartSize = s.partSize

		if err := s.store.CreateUpload(ctx, up); err != nil {
			s.objects.AbortMultipart(ctx, storageKey, storeUploadID)
			return nil, &Error{Code: ErrCodeInternalError, Message: "create upload record", Err: err}
		}
		for n := 1; n <= partCount; n++ {
			part := &types.MultipartPart{
				ID:           uuid.New(),
				UploadID:     uploadID,
				PartNumber:   n,
				URLExpiresAt: urlExpiry,
			}
			if err := s.store.UpsertPart(ctx, part); err != nil {
				return nil, &Error{Code: ErrCodeInternalError, Message: "create part record", Err: err}
			}
		}
	} else {
		url, err := s.objects.PresignPut(ctx, storageKey, s.urlTTL)
		if err != nil {
			return nil, &Error{Code: ErrCodeInternalError, Message: "presign put", Err: err}
		}
		result.PutURL = url

		if err := s.store.CreateUpload(ctx, up); err != nil {
			return nil, &Error{Code: ErrCodeInternalError, Message: "create upload record", Err: err}
		}
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:    actor,
			Action:   types.AuditActionInit,
			FileID:   fileID,
			UploadID: uploadID,
			Metadata: map[string]string{"multipart": fmt.Sprintf("%t", multipart)},
		})
	}

	logger.Debug().
		Str("upload_id", uploadID).
		Str("file_id", fileID).
		Bool("multipart", multipart).
		Int("parts", partCount).
		Msg("upload: initialized")
	return result, nil
}

// initDeduplicated short-circuits init with the already stored file.
// Nothing is created and no quota is charged; processing already ran
// when the object first landed, so no event is emitted either.
func (s *serviceImpl) initDeduplicated(ctx context.Context, actor types.Actor, source *types.FileEntity) (*InitResult, error) {
	var url string
	if source.AccessPolicy == types.AccessPublic {
		url = s.objects.PublicURL(source.StorageKey)
	} else {
		signed, err := s.objects.PresignGet(ctx, source.StorageKey, s.urlTTL)
		if err != nil {
			return nil, &Error{Code: ErrCodeInternalError, Message: "presign dedup url", Err: err}
		}
		url = signed
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:    actor,
			Action:   types.AuditActionInit,
			FileID:   source.FileID,
			Metadata: map[string]string{"deduplicated": "true"},
		})
	}

	logger.Info().
		Str("file_id", source.FileID).
		Str("checksum", source.Checksum).
		Msg("upload: deduplicated instant upload")

	return &InitResult{
		FileID:       source.FileID,
		URL:          url,
		Deduplicated: true,
	}, nil
}

func (s *serviceImpl) RegisterPart(ctx context.Context, actor types.Actor, req *RegisterPartRequest) error {
	up, err := s.getOwned(ctx, actor, req.UploadID)
	if err != nil {
		return err
	}
	if !up.Multipart {
		return &Error{Code: ErrCodeInvalidArgument, Message: "upload is not multipart"}
	}
	if up.Status != types.UploadStatusInit && up.Status != types.UploadStatusInProgress {
		return &Error{Code: ErrCodeInvalidState, Message: "upload is " + string(up.Status)}
	}
	if req.PartNumber < 1 || req.PartNumber > up.PartCount {
		return &Error{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("part number %d out of range 1..%d", req.PartNumber, up.PartCount)}
	}
	if req.ETag == "" {
		return &Error{Code: ErrCodeInvalidArgument, Message: "etag is required"}
	}

	parts, err := s.store.ListParts(ctx, req.UploadID)
	if err != nil {
		return &Error{Code: ErrCodeInternalError, Message: "list parts", Err: err}
	}

	now := time.Now().UnixNano()
	part := &types.MultipartPart{
		ID:           uuid.New(),
		UploadID:     req.UploadID,
		PartNumber:   req.PartNumber,
		Size:         req.Size,
		ETag:         req.ETag,
		Registered:   true,
		LastModified: now,
	}
	for _, existing := range parts {
		if existing.PartNumber == req.PartNumber {
			part.ID = existing.ID
			part.URLExpiresAt = existing.URLExpiresAt
			break
		}
	}
	if err := s.store.UpsertPart(ctx, part); err != nil {
		return &Error{Code: ErrCodeInternalError, Message: "register part", Err: err}
	}

	if up.Status == types.UploadStatusInit {
		err := s.casUpdateUpload(ctx, req.UploadID, func(u *types.Upload) error {
			if u.Status == types.UploadStatusInit {
				u.Status = types.UploadStatusInProgress
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *serviceImpl) RefreshParts(ctx context.Context, actor types.Actor, uploadID string, partNumbers []int) ([]PartURL, error) {
	up, err := s.getOwned(ctx, actor, uploadID)
	if err != nil {
		return nil, err
	}
	if !up.Multipart {
		return nil, &Error{Code: ErrCodeInvalidArgument, Message: "upload is not multipart"}
	}
	if up.Status.Terminal() {
		return nil, &Error{Code: ErrCodeInvalidState, Message: "upload is " + string(up.Status)}
	}

	parts, err := s.store.ListParts(ctx, uploadID)
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "list parts", Err: err}
	}
	byNumber := make(map[int]*types.MultipartPart, len(parts))
	for _, p := range parts {
		byNumber[p.PartNumber] = p
	}

	// Default to every part not yet registered.
	if len(partNumbers) == 0 {
		for _, p := range parts {
			if !p.Registered {
				partNumbers = append(partNumbers, p.PartNumber)
			}
		}
	}

	urlExpiry := time.Now().Add(s.urlTTL).UnixNano()
	result := make([]PartURL, 0, len(partNumbers))
	for _, n := range partNumbers {
		part, ok := byNumber[n]
		if !ok {
			return nil, &Error{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("unknown part number %d", n)}
		}
		url, err := s.objects.PresignPart(ctx, up.StorageKey, up.StoreUploadID, n, s.urlTTL)
		if err != nil {
			return nil, &Error{Code: ErrCodeInternalError, Message: "presign part", Err: err}
		}
		part.URLExpiresAt = urlExpiry
		if err := s.store.UpsertPart(ctx, part); err != nil {
			return nil, &Error{Code: ErrCodeInternalError, Message: "update part", Err: err}
		}
		result = append(result, PartURL{PartNumber: n, URL: url, ExpiresAt: urlExpiry})
	}
	return result, nil
}

func (s *serviceImpl) Complete(ctx context.Context, actor types.Actor, req *CompleteRequest) (*CompleteResult, error) {
	up, err := s.getOwned(ctx, actor, req.UploadID)
	if err != nil {
		return nil, err
	}

	// Re-completing a finished upload returns the same result.
	if up.Status == types.UploadStatusCompleted {
		file, err := s.store.GetFile(ctx, up.FileID)
		if err != nil {
			return nil, &Error{Code: ErrCodeInternalError, Message: "load completed file", Err: err}
		}
		return &CompleteResult{File: file}, nil
	}
	if up.Status.Terminal() {
		return nil, &Error{Code: ErrCodeInvalidState, Message: "upload is " + string(up.Status)}
	}

	var etag string
	var actualSize int64
	if up.Multipart {
		etag, actualSize, err = s.completeMultipart(ctx, actor, up, req.Parts)
	} else {
		etag, actualSize, err = s.completeSingle(ctx, up)
	}
	if err != nil {
		return nil, err
	}

	if actualSize != up.DeclaredSize {
		s.failUpload(ctx, actor, up, fmt.Sprintf("declared %d bytes, stored %d", up.DeclaredSize, actualSize))
		return nil, &Error{
			Code:    ErrCodeSizeMismatch,
			Message: fmt.Sprintf("declared %d bytes, stored %d", up.DeclaredSize, actualSize),
		}
	}

	// Commit point: the upload CAS decides the winner between concurrent
	// completions.
	err = s.casUpdateUpload(ctx, req.UploadID, func(u *types.Upload) error {
		if u.Status == types.UploadStatusCompleted {
			return nil
		}
		if u.Status.Terminal() {
			return &Error{Code: ErrCodeInvalidState, Message: "upload is " + string(u.Status)}
		}
		u.Status = types.UploadStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	var file *types.FileEntity
	err = s.updateFileWithRetry(ctx, up.FileID, func(f *types.FileEntity) {
		f.Status = types.FileStatusCompleted
		f.Size = actualSize
		f.ETag = etag
		file = f
	})
	if err != nil {
		return nil, err
	}

	if err := s.quota.Commit(ctx, up.TenantID, up.DeclaredSize, actualSize); err != nil {
		logger.Warn().Err(err).Str("upload_id", up.UploadID).Msg("upload: quota commit failed")
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:    actor,
			Action:   types.AuditActionComplete,
			FileID:   up.FileID,
			UploadID: up.UploadID,
		})
	}
	s.emitter.EmitFileUploaded(ctx, actor, file, up.UploadID)

	logger.Info().
		Str("upload_id", up.UploadID).
		Str("file_id", up.FileID).
		Int64("size", actualSize).
		Msg("upload: completed")
	return &CompleteResult{File: file}, nil
}

func (s *serviceImpl) completeSingle(ctx context.Context, up *types.Upload) (string, int64, error) {
	info, err := s.objects.Head(ctx, up.StorageKey)
	if errors.Is(err, objectstore.ErrObjectNotFound) {
		return "", 0, &Error{Code: ErrCodeMissingPart, Message: "object bytes were never uploaded"}
	}
	if err != nil {
		return "", 0, &Error{Code: ErrCodeInternalError, Message: "head object", Err: err}
	}
	return info.ETag, info.Size, nil
}

func (s *serviceImpl) completeMultipart(ctx context.Context, actor types.Actor, up *types.Upload, declared []PartEntry) (string, int64, error) {
	parts, err := s.store.ListParts(ctx, up.UploadID)
	if err != nil {
		return "", 0, &Error{Code: ErrCodeInternalError, Message: "list parts", Err: err}
	}

	byNumber := make(map[int]*types.MultipartPart, len(parts))
	var totalSize int64
	for _, p := range parts {
		byNumber[p.PartNumber] = p
		totalSize += p.Size
	}

	// Parts must form a complete, registered 1..N set.
	merge := make([]objectstore.PartUpload, 0, up.PartCount)
	for n := 1; n <= up.PartCount; n++ {
		p, ok := byNumber[n]
		if !ok || !p.Registered {
			return "", 0, &Error{Code: ErrCodeMissingPart, Message: fmt.Sprintf("part %d was never registered", n)}
		}
		merge = append(merge, objectstore.PartUpload{PartNumber: n, ETag: p.ETag})
	}

	// Client-declared part list must agree with what was registered.
	for _, d := range declared {
		p, ok := byNumber[d.PartNumber]
		if !ok {
			return "", 0, &Error{Code: ErrCodeMissingPart, Message: fmt.Sprintf("unknown part %d in complete request", d.PartNumber)}
		}
		if p.ETag != d.ETag {
			return "", 0, &Error{
				Code:    ErrCodeETagMismatch,
				Message: fmt.Sprintf("part %d etag mismatch", d.PartNumber),
			}
		}
	}

	etag, err := s.objects.MergeParts(ctx, up.StorageKey, up.StoreUploadID, merge)
	if err != nil {
		// All or nothing: a failed merge fails the upload and returns
		// the reservation rather than leaving it charged until expiry.
		s.failUpload(ctx, actor, up, "merge failed: "+err.Error())
		return "", 0, &Error{Code: ErrCodeInternalError, Message: "merge parts", Err: err}
	}

	info, err := s.objects.Head(ctx, up.StorageKey)
	if err != nil {
		// The merge succeeded; report the summed size rather than fail.
		logger.Warn().Err(err).Str("upload_id", up.UploadID).Msg("upload: head after merge failed")
		return etag, totalSize, nil
	}
	return etag, info.Size, nil
}

// failUpload marks the upload FAILED, quarantines the file record and
// returns the quota reservation.
func (s *serviceImpl) failUpload(ctx context.Context, actor types.Actor, up *types.Upload, reason string) {
	// Reclaim only on winning the CAS; a concurrent Abort or expiry
	// that got there first already released the reservation.
	failed := false
	if err := s.casUpdateUpload(ctx, up.UploadID, func(u *types.Upload) error {
		failed = false
		if u.Status.Terminal() {
			return nil
		}
		u.Status = types.UploadStatusFailed
		failed = true
		return nil
	}); err != nil {
		logger.Error().Err(err).Str("upload_id", up.UploadID).Msg("upload: mark failed")
		return
	}
	if !failed {
		return
	}

	if err := s.updateFileWithRetry(ctx, up.FileID, func(f *types.FileEntity) {
		f.Status = types.FileStatusFailed
	}); err != nil {
		logger.Error().Err(err).Str("file_id", up.FileID).Msg("upload: mark file failed")
	}

	if err := s.quota.Release(ctx, up.TenantID, up.DeclaredSize, 1); err != nil {
		logger.Error().Err(err).Str("tenant_id", up.TenantID).Msg("upload: release after failure")
	}

	// Stored bytes are unusable; reclaim them.
	if up.Multipart && up.StoreUploadID != "" {
		if err := s.objects.AbortMultipart(ctx, up.StorageKey, up.StoreUploadID); err != nil {
			logger.Warn().Err(err).Str("upload_id", up.UploadID).Msg("upload: abort store upload")
		}
	}
	if err := s.objects.Delete(ctx, up.StorageKey); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
		logger.Warn().Err(err).Str("key", up.StorageKey).Msg("upload: delete failed object")
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:    actor,
			Action:   types.AuditActionDelete,
			FileID:   up.FileID,
			UploadID: up.UploadID,
			Metadata: map[string]string{"reason": reason},
		})
	}

	logger.Warn().
		Str("upload_id", up.UploadID).
		Str("reason", reason).
		Msg("upload: failed")
}

func (s *serviceImpl) Abort(ctx context.Context, actor types.Actor, uploadID string) error {
	up, err := s.getOwned(ctx, actor, uploadID)
	if err != nil {
		return err
	}

	// Aborting twice is a no-op.
	if up.Status == types.UploadStatusAborted {
		return nil
	}
	if up.Status.Terminal() {
		return &Error{Code: ErrCodeInvalidState, Message: "upload is " + string(up.Status)}
	}

	// The CAS to ABORTED is the commit point. Winning it first keeps a
	// concurrent Complete from committing an object this call is about
	// to delete.
	aborted := false
	err = s.casUpdateUpload(ctx, uploadID, func(u *types.Upload) error {
		aborted = false
		if u.Status == types.UploadStatusAborted {
			return nil
		}
		if u.Status.Terminal() {
			return &Error{Code: ErrCodeInvalidState, Message: "upload is " + string(u.Status)}
		}
		u.Status = types.UploadStatusAborted
		aborted = true
		return nil
	})
	if err != nil {
		return err
	}
	if !aborted {
		return nil
	}

	if up.Multipart && up.StoreUploadID != "" {
		if err := s.objects.AbortMultipart(ctx, up.StorageKey, up.StoreUploadID); err != nil {
			logger.Warn().Err(err).Str("upload_id", uploadID).Msg("upload: abort store upload")
		}
	} else {
		if err := s.objects.Delete(ctx, up.StorageKey); err != nil {
			logger.Warn().Err(err).Str("key", up.StorageKey).Msg("upload: delete partial object")
		}
	}

	if err := s.store.DeleteParts(ctx, uploadID); err != nil {
		logger.Warn().Err(err).Str("upload_id", uploadID).Msg("upload: delete part records")
	}

	if err := s.updateFileWithRetry(ctx, up.FileID, func(f *types.FileEntity) {
		f.Status = types.FileStatusFailed
	}); err != nil {
		logger.Error().Err(err).Str("file_id", up.FileID).Msg("upload: mark file failed on abort")
	}

	if err := s.quota.Release(ctx, up.TenantID, up.DeclaredSize, 1); err != nil {
		logger.Error().Err(err).Str("tenant_id", up.TenantID).Msg("upload: release on abort")
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:    actor,
			Action:   types.AuditActionDelete,
			FileID:   up.FileID,
			UploadID: uploadID,
			Metadata: map[string]string{"reason": "abort"},
		})
	}
	return nil
}

func (s *serviceImpl) Status(ctx context.Context, actor types.Actor, uploadID string) (*StatusResult, error) {
	up, err := s.getOwned(ctx, actor, uploadID)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{Upload: up}
	if up.Multipart {
		parts, err := s.store.ListParts(ctx, uploadID)
		if err != nil {
			return nil, &Error{Code: ErrCodeInternalError, Message: "list parts", Err: err}
		}
		result.Parts = parts
	}
	if file, err := s.store.GetFile(ctx, up.FileID); err == nil {
		result.File = file
	}
	return result, nil
}

func (s *serviceImpl) List(ctx context.Context, actor types.Actor, limit int) ([]*types.Upload, error) {
	if limit <= 0 {
		limit = 100
	}
	uploads, err := s.store.ListUploads(ctx, actor.TenantID, limit)
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "list uploads", Err: err}
	}
	return uploads, nil
}

// getOwned loads the upload and enforces tenant isolation: an upload is
// invisible outside its tenant.
func (s *serviceImpl) getOwned(ctx context.Context, actor types.Actor, uploadID string) (*types.Upload, error) {
	up, err := s.store.GetUpload(ctx, uploadID)
	if errors.Is(err, store.ErrUploadNotFound) {
		return nil, &Error{Code: ErrCodeNotFound, Message: "upload not found"}
	}
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "load upload", Err: err}
	}
	if up.TenantID != actor.TenantID {
		return nil, &Error{Code: ErrCodeNotFound, Message: "upload not found"}
	}
	return up, nil
}

func (s *serviceImpl) casUpdateUpload(ctx context.Context, uploadID string, mutate func(*types.Upload) error) error {
	for i := 0; i < casRetries; i++ {
		up, err := s.store.GetUpload(ctx, uploadID)
		if err != nil {
			return &Error{Code: ErrCodeInternalError, Message: "load upload", Err: err}
		}
		if err := mutate(up); err != nil {
			return err
		}
		err = s.store.UpdateUpload(ctx, up)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return &Error{Code: ErrCodeInternalError, Message: "update upload", Err: err}
		}
	}
	return &Error{Code: ErrCodeInternalError, Message: "update upload", Err: store.ErrVersionConflict}
}

func (s *serviceImpl) updateFileWithRetry(ctx context.Context, fileID string, mutate func(*types.FileEntity)) error {
	for i := 0; i < casRetries; i++ {
		file, err := s.store.GetFile(ctx, fileID)
		if err != nil {
			return &Error{Code: ErrCodeInternalError, Message: "load file", Err: err}
		}
		mutate(file)
		err = s.store.UpdateFile(ctx, file)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return &Error{Code: ErrCodeInternalError, Message: "update file", Err: err}
		}
	}
	return &Error{Code: ErrCodeInternalError, Message: "update file", Err: store.ErrVersionConflict}
}

func validateInit(actor types.Actor, req *InitRequest) error {
	if actor.TenantID == "" {
		return &Error{Code: ErrCodeInvalidArgument, Message: "tenant is required"}
	}
	if req.Filename == "" {
		return &Error{Code: ErrCodeInvalidArgument, Message: "filename is required"}
	}
	if req.Size <= 0 {
		return &Error{Code: ErrCodeInvalidArgument, Message: "size must be positive"}
	}
	if req.AccessPolicy != "" && !req.AccessPolicy.Valid() {
		return &Error{Code: ErrCodeInvalidArgument, Message: "unknown access policy"}
	}
	return nil
}
