// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/events"
	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

const (
	DefaultSignedURLTTL = 15 * time.Minute

	tokenIssuer = "zapmedia"
)

const casRetries = 5

// Config holds configuration for the registry service
type Config struct {
	Store   store.Store
	Objects objectstore.ObjectStore
	Audit   *audit.Recorder
	Emitter *events.Emitter

	// SigningSecret signs private download tokens (HS256).
	SigningSecret []byte
	// SignedURLTTL is the lifetime of private URLs and tokens.
	SignedURLTTL time.Duration
}

type serviceImpl struct {
	store   store.Store
	objects objectstore.ObjectStore
	audit   *audit.Recorder
	emitter *events.Emitter

	secret []byte
	urlTTL time.Duration
}

// NewService creates a new registry service
func NewService(cfg Config) (Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("Store is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("Objects is required")
	}
	if len(cfg.SigningSecret) == 0 {
		return nil, errors.New("SigningSecret is required")
	}
	if cfg.SignedURLTTL == 0 {
		cfg.SignedURLTTL = DefaultSignedURLTTL
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.NoopEmitter()
	}

	return &serviceImpl{
		store:   cfg.Store,
		objects: cfg.Objects,
		audit:   cfg.Audit,
		emitter: cfg.Emitter,
		secret:  cfg.SigningSecret,
		urlTTL:  cfg.SignedURLTTL,
	}, nil
}

func (s *serviceImpl) Get(ctx context.Context, actor types.Actor, fileID string) (*types.FileEntity, error) {
	return s.getOwned(ctx, actor, fileID)
}

func (s *serviceImpl) Status(ctx context.Context, actor types.Actor, fileID string) (*StatusResult, error) {
	file, err := s.getOwned(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}

	switch file.Status {
	case types.FileStatusCompleted:
		url, err := s.issueURL(ctx, actor, file)
		if err != nil {
			return nil, err
		}
		return &StatusResult{State: StateReady, File: file, URL: url}, nil
	case types.FileStatusFailed:
		return &StatusResult{State: StateFailed, File: file, Reason: failureReason(file)}, nil
	case types.FileStatusDeleted:
		return &StatusResult{State: StateFailed, File: file, Reason: "deleted"}, nil
	default:
		return &StatusResult{State: StatePending, File: file}, nil
	}
}

// failureReason digs the most specific explanation out of the file's
// worker annotations.
func failureReason(file *types.FileEntity) string {
	if v := file.Metadata[types.MetaScanVerdict]; v != "" && v != "clean" {
		return "scan verdict: " + v
	}
	if v := file.Metadata[types.MetaProcessingErr]; v != "" {
		return v
	}
	return "upload failed"
}

func (s *serviceImpl) IssueURL(ctx context.Context, actor types.Actor, fileID string) (*URLResult, error) {
	file, err := s.getOwned(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status != types.FileStatusCompleted {
		return nil, &Error{Code: ErrCodeInvalidState, Message: "file is " + string(file.Status)}
	}
	return s.issueURL(ctx, actor, file)
}

func (s *serviceImpl) issueURL(ctx context.Context, actor types.Actor, file *types.FileEntity) (*URLResult, error) {
	if file.AccessPolicy == types.AccessPublic {
		// Deterministic, never expires, safe to cache.
		return &URLResult{URL: s.objects.PublicURL(file.StorageKey)}, nil
	}

	now := time.Now()
	expiresAt := now.Add(s.urlTTL)

	url, err := s.objects.PresignGet(ctx, file.StorageKey, s.urlTTL)
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "presign get", Err: err}
	}

	record := &types.DownloadToken{
		ID:        uuid.New(),
		FileID:    file.FileID,
		TenantID:  file.TenantID,
		ActorID:   actor.ActorID,
		ExpiresAt: expiresAt.UnixNano(),
		CreatedAt: now.UnixNano(),
	}
	if err := s.store.CreateDownloadToken(ctx, record); err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "persist download token", Err: err}
	}

	claims := jwt.RegisteredClaims{
		ID:        record.ID.String(),
		Issuer:    tokenIssuer,
		Subject:   file.FileID,
		Audience:  jwt.ClaimStrings{file.TenantID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "sign download token", Err: err}
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:    actor,
			Action:   types.AuditActionSign,
			FileID:   file.FileID,
			Metadata: map[string]string{"token_id": record.ID.String()},
		})
	}

	return &URLResult{
		URL:       url,
		ExpiresAt: expiresAt.UnixNano(),
		Token:     signed,
	}, nil
}

func (s *serviceImpl) VerifyToken(ctx context.Context, token string) (*types.FileEntity, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, &Error{Code: ErrCodeTokenInvalid, Message: "invalid download token", Err: err}
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, &Error{Code: ErrCodeTokenInvalid, Message: "invalid download token"}
	}

	file, err := s.store.GetFile(ctx, claims.Subject)
	if errors.Is(err, store.ErrFileNotFound) {
		return nil, &Error{Code: ErrCodeNotFound, Message: "file not found"}
	}
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "load file", Err: err}
	}
	if file.Status != types.FileStatusCompleted {
		return nil, &Error{Code: ErrCodeInvalidState, Message: "file is " + string(file.Status)}
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:  types.Actor{TenantID: file.TenantID, ActorID: "token", ActorType: types.ActorTypeService},
			Action: types.AuditActionDownload,
			FileID: file.FileID,
		})
	}
	return file, nil
}

func (s *serviceImpl) ChangeAccessPolicy(ctx context.Context, actor types.Actor, fileID string, policy types.AccessPolicy) error {
	if !policy.Valid() {
		return &Error{Code: ErrCodeInvalidArgument, Message: "unknown access policy"}
	}
	file, err := s.getOwned(ctx, actor, fileID)
	if err != nil {
		return err
	}
	if file.IsDeleted() {
		return &Error{Code: ErrCodeInvalidState, Message: "file is deleted"}
	}
	if file.AccessPolicy == policy {
		return nil
	}

	previous := file.AccessPolicy
	err = s.updateFileWithRetry(ctx, fileID, func(f *types.FileEntity) error {
		if f.IsDeleted() {
			return &Error{Code: ErrCodeInvalidState, Message: "file is deleted"}
		}
		f.AccessPolicy = policy
		return nil
	})
	if err != nil {
		return err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:  actor,
			Action: types.AuditActionUpdatePolicy,
			FileID: fileID,
			Metadata: map[string]string{
				"from": string(previous),
				"to":   string(policy),
			},
		})
	}
	return nil
}

func (s *serviceImpl) MarkDeleted(ctx context.Context, actor types.Actor, fileID string) error {
	file, err := s.getOwned(ctx, actor, fileID)
	if err != nil {
		return err
	}
	if file.IsDeleted() {
		return nil
	}
	if file.Status != types.FileStatusCompleted && file.Status != types.FileStatusFailed {
		return &Error{Code: ErrCodeInvalidState, Message: "file is " + string(file.Status)}
	}

	err = s.updateFileWithRetry(ctx, fileID, func(f *types.FileEntity) error {
		if f.IsDeleted() {
			return nil
		}
		f.Status = types.FileStatusDeleted
		f.DeletedAt = time.Now().UnixNano()
		return nil
	})
	if err != nil {
		return err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:  actor,
			Action: types.AuditActionDelete,
			FileID: fileID,
		})
	}
	s.emitter.Emit(ctx, events.TopicLifecycle, &events.Envelope{
		EventName: events.EventFileDeleted,
		TenantID:  file.TenantID,
		ActorID:   actor.ActorID,
		FileID:    fileID,
	})

	logger.Info().Str("file_id", fileID).Msg("registry: file soft-deleted")
	return nil
}

func (s *serviceImpl) Restore(ctx context.Context, actor types.Actor, fileID string) error {
	file, err := s.getOwned(ctx, actor, fileID)
	if err != nil {
		return err
	}
	if !file.IsDeleted() {
		return &Error{Code: ErrCodeInvalidState, Message: "file is " + string(file.Status)}
	}

	err = s.updateFileWithRetry(ctx, fileID, func(f *types.FileEntity) error {
		if !f.IsDeleted() {
			return nil
		}
		f.Status = types.FileStatusCompleted
		f.DeletedAt = 0
		return nil
	})
	if err != nil {
		return err
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:  actor,
			Action: types.AuditActionRestore,
			FileID: fileID,
		})
	}
	s.emitter.Emit(ctx, events.TopicLifecycle, &events.Envelope{
		EventName: events.EventFileRestored,
		TenantID:  file.TenantID,
		ActorID:   actor.ActorID,
		FileID:    fileID,
	})

	logger.Info().Str("file_id", fileID).Msg("registry: file restored")
	return nil
}

func (s *serviceImpl) Derivatives(ctx context.Context, actor types.Actor, fileID string) ([]*types.FileDerivative, error) {
	if _, err := s.getOwned(ctx, actor, fileID); err != nil {
		return nil, err
	}
	derivatives, err := s.store.ListDerivatives(ctx, fileID)
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "list derivatives", Err: err}
	}
	return derivatives, nil
}

func (s *serviceImpl) getOwned(ctx context.Context, actor types.Actor, fileID string) (*types.FileEntity, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if errors.Is(err, store.ErrFileNotFound) {
		return nil, &Error{Code: ErrCodeNotFound, Message: "file not found"}
	}
	if err != nil {
		return nil, &Error{Code: ErrCodeInternalError, Message: "load file", Err: err}
	}
	if file.TenantID != actor.TenantID {
		return nil, &Error{Code: ErrCodeNotFound, Message: "file not found"}
	}
	return file, nil
}

func (s *serviceImpl) updateFileWithRetry(ctx context.Context, fileID string, mutate func(*types.FileEntity) error) error {
	for i := 0; i < casRetries; i++ {
		file, err := s.store.GetFile(ctx, fileID)
		if err != nil {
			return &Error{Code: ErrCodeInternalError, Message: "load file", Err: err}
		}
		if err := mutate(file); err != nil {
			return err
		}
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
