// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle runs the background sweeper: expiring stale uploads,
// purging soft-deleted files and applying per-tenant retention policies.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapmedia/pkg/audit"
	"github.com/LeeDigitalWorks/zapmedia/pkg/events"
	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/objectstore"
	"github.com/LeeDigitalWorks/zapmedia/pkg/quota"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
	"github.com/LeeDigitalWorks/zapmedia/pkg/utils"
)

const (
	DefaultInterval       = 5 * time.Minute
	DefaultJitterFraction = 0.1
	DefaultBatchSize      = 100
)

const casRetries = 5

// Config holds configuration for the sweeper
type Config struct {
	Store   store.Store
	Objects objectstore.ObjectStore
	Quota   *quota.Ledger
	Audit   *audit.Recorder
	Emitter *events.Emitter

	// Interval between sweeps, jittered to avoid herding when several
	// replicas run.
	Interval       time.Duration
	JitterFraction float64
	// BatchSize caps how many records one sweep touches per category.
	BatchSize int
}

// Sweeper periodically expires stale uploads, reclaims soft-deleted
// files and enforces retention policies. Every step is idempotent:
// records already in a terminal state are skipped, so concurrent
// sweepers or repeated passes are safe.
type Sweeper struct {
	store   store.Store
	objects objectstore.ObjectStore
	quota   *quota.Ledger
	audit   *audit.Recorder
	emitter *events.Emitter

	interval  time.Duration
	jitter    float64
	batchSize int

	stopOnce sync.Once
	stop     func()
	done     chan struct{}
}

// NewSweeper creates a new lifecycle sweeper
func NewSweeper(cfg Config) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, errors.New("Store is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("Objects is required")
	}
	if cfg.Quota == nil {
		return nil, errors.New("Quota is required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.JitterFraction == 0 {
		cfg.JitterFraction = DefaultJitterFraction
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.NoopEmitter()
	}

	return &Sweeper{
		store:     cfg.Store,
		objects:   cfg.Objects,
		quota:     cfg.Quota,
		audit:     cfg.Audit,
		emitter:   cfg.Emitter,
		interval:  cfg.Interval,
		jitter:    cfg.JitterFraction,
		batchSize: cfg.BatchSize,
		done:      make(chan struct{}),
	}, nil
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticks, stop := utils.JitteredTicker(s.interval, s.jitter)
	s.stop = stop

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				s.Sweep(ctx)
			}
		}
	}()
	logger.Info().Dur("interval", s.interval).Msg("sweeper: started")
}

// Stop terminates the sweep loop and waits for the current pass.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
			<-s.done
		}
	})
}

// Sweep runs one full pass. Exported so operators can trigger a sweep
// out of band.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	s.expireUploads(ctx)
	s.applyPolicies(ctx)
	s.cleanupTokens(ctx)
	sweepDuration.Observe(time.Since(start).Seconds())
	sweepsTotal.Inc()
}

// expireUploads transitions uploads past their deadline to EXPIRED and
// returns their reserved quota. Terminal uploads never transition.
func (s *Sweeper) expireUploads(ctx context.Context) {
	now := time.Now().UnixNano()
	uploads, err := s.store.ListStaleUploads(ctx, now, s.batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("sweeper: list stale uploads")
		return
	}

	for _, up := range uploads {
		if up.Status.Terminal() {
			continue
		}
		if err := s.expireUpload(ctx, up); err != nil {
			logger.Error().Err(err).Str("upload_id", up.UploadID).Msg("sweeper: expire upload")
			continue
		}
		expiredUploads.Inc()
	}
}

func (s *Sweeper) expireUpload(ctx context.Context, up *types.Upload) error {
	// The CAS to EXPIRED must win before any bytes are touched: a
	// completion that slips in between list and process owns the object
	// now, and deleting it here would orphan a COMPLETED file.
	expired := false
	err := s.casUpdateUpload(ctx, up.UploadID, func(u *types.Upload) {
		expired = false
		if u.Status.Terminal() {
			return
		}
		u.Status = types.UploadStatusExpired
		expired = true
	})
	if err != nil {
		return err
	}
	// Another actor won the race; nothing left to reclaim.
	if !expired {
		return nil
	}

	if up.Multipart && up.StoreUploadID != "" {
		if err := s.objects.AbortMultipart(ctx, up.StorageKey, up.StoreUploadID); err != nil {
			logger.Warn().Err(err).Str("upload_id", up.UploadID).Msg("sweeper: abort store upload")
		}
	} else {
		if err := s.objects.Delete(ctx, up.StorageKey); err != nil {
			logger.Warn().Err(err).Str("key", up.StorageKey).Msg("sweeper: delete partial object")
		}
	}
	if err := s.store.DeleteParts(ctx, up.UploadID); err != nil {
		logger.Warn().Err(err).Str("upload_id", up.UploadID).Msg("sweeper: delete part records")
	}

	if err := s.updateFileIgnoreMissing(ctx, up.FileID, func(f *types.FileEntity) {
		if f.Status == types.FileStatusUploading || f.Status == types.FileStatusInit {
			f.Status = types.FileStatusFailed
		}
	}); err != nil {
		logger.Warn().Err(err).Str("file_id", up.FileID).Msg("sweeper: mark file failed")
	}

	if err := s.quota.Release(ctx, up.TenantID, up.DeclaredSize, 1); err != nil {
		logger.Error().Err(err).Str("tenant_id", up.TenantID).Msg("sweeper: release quota")
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:    types.System(up.TenantID),
			Action:   types.AuditActionDelete,
			FileID:   up.FileID,
			UploadID: up.UploadID,
			Metadata: map[string]string{"reason": "expired"},
		})
	}
	s.emitter.Emit(ctx, events.TopicLifecycle, &events.Envelope{
		EventName: events.EventUploadExpired,
		TenantID:  up.TenantID,
		FileID:    up.FileID,
		UploadID:  up.UploadID,
	})

	logger.Info().Str("upload_id", up.UploadID).Msg("sweeper: upload expired")
	return nil
}

func (s *Sweeper) applyPolicies(ctx context.Context) {
	policies, err := s.store.ListPolicies(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("sweeper: list policies")
		return
	}

	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		switch p.Action {
		case types.LifecyclePurgeDeleted:
			s.purgeDeleted(ctx, p)
		case types.LifecycleHardDelete:
			s.hardDelete(ctx, p)
		case types.LifecycleExpireUpload:
			// Stale uploads are expired on every pass regardless of
			// policy rows; nothing extra to do.
		default:
			logger.Warn().Str("policy_id", p.ID).Str("action", string(p.Action)).Msg("sweeper: unknown policy action")
		}
	}
}

// purgeDeleted physically removes files soft-deleted longer ago than the
// policy's retention and releases their quota.
func (s *Sweeper) purgeDeleted(ctx context.Context, policy *types.LifecyclePolicy) {
	cutoff := time.Now().Add(-policy.MaxAge).UnixNano()
	files, err := s.store.ListDeletedBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("sweeper: list deleted files")
		return
	}

	for _, file := range files {
		if policy.TenantID != "" && file.TenantID != policy.TenantID {
			continue
		}
		if err := s.purgeFile(ctx, file); err != nil {
			logger.Error().Err(err).Str("file_id", file.FileID).Msg("sweeper: purge file")
			continue
		}
		purgedFiles.Inc()
	}
}

func (s *Sweeper) purgeFile(ctx context.Context, file *types.FileEntity) error {
	// Derivatives are never shared; always reclaim them.
	derivatives, err := s.store.ListDerivatives(ctx, file.FileID)
	if err == nil {
		for _, d := range derivatives {
			if err := s.objects.Delete(ctx, d.StorageKey); err != nil {
				logger.Warn().Err(err).Str("key", d.StorageKey).Msg("sweeper: delete derivative object")
			}
		}
	}

	if err := s.objects.Delete(ctx, file.StorageKey); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
		logger.Warn().Err(err).Str("key", file.StorageKey).Msg("sweeper: delete object")
	}

	if err := s.store.DeleteFile(ctx, file.FileID); err != nil {
		return err
	}

	if err := s.quota.Release(ctx, file.TenantID, file.Size, 1); err != nil {
		logger.Error().Err(err).Str("tenant_id", file.TenantID).Msg("sweeper: release quota")
	}

	if s.audit != nil {
		s.audit.Record(ctx, audit.Entry{
			Actor:    types.System(file.TenantID),
			Action:   types.AuditActionDelete,
			FileID:   file.FileID,
			Metadata: map[string]string{"reason": "purged"},
		})
	}

	logger.Info().Str("file_id", file.FileID).Msg("sweeper: file purged")
	return nil
}

// hardDelete soft-deletes files older than the policy's retention. The
// next purge pass reclaims their bytes.
func (s *Sweeper) hardDelete(ctx context.Context, policy *types.LifecyclePolicy) {
	if policy.TenantID == "" {
		logger.Warn().Str("policy_id", policy.ID).Msg("sweeper: hard_delete requires a tenant")
		return
	}
	cutoff := time.Now().Add(-policy.MaxAge).UnixNano()
	files, err := s.store.ListCreatedBefore(ctx, policy.TenantID, cutoff, s.batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("sweeper: list aged files")
		return
	}

	for _, file := range files {
		if file.IsDeleted() {
			continue
		}
		err := s.updateFileIgnoreMissing(ctx, file.FileID, func(f *types.FileEntity) {
			if f.IsDeleted() {
				return
			}
			f.Status = types.FileStatusDeleted
			f.DeletedAt = time.Now().UnixNano()
		})
		if err != nil {
			logger.Error().Err(err).Str("file_id", file.FileID).Msg("sweeper: retention delete")
			continue
		}
		retentionDeletes.Inc()

		if s.audit != nil {
			s.audit.Record(ctx, audit.Entry{
				Actor:    types.System(file.TenantID),
				Action:   types.AuditActionDelete,
				FileID:   file.FileID,
				Metadata: map[string]string{"reason": "retention", "policy_id": policy.ID},
			})
		}
	}
}

func (s *Sweeper) cleanupTokens(ctx context.Context) {
	n, err := s.store.DeleteExpiredTokens(ctx, time.Now().UnixNano())
	if err != nil {
		logger.Error().Err(err).Msg("sweeper: delete expired tokens")
		return
	}
	if n > 0 {
		tokensDeleted.Add(float64(n))
		logger.Debug().Int64("count", n).Msg("sweeper: expired tokens deleted")
	}
}

func (s *Sweeper) casUpdateUpload(ctx context.Context, uploadID string, mutate func(*types.Upload)) error {
	for i := 0; i < casRetries; i++ {
		up, err := s.store.GetUpload(ctx, uploadID)
		if err != nil {
			return err
		}
		mutate(up)
		err = s.store.UpdateUpload(ctx, up)
		if err == nil || !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}
	return store.ErrVersionConflict
}

func (s *Sweeper) updateFileIgnoreMissing(ctx context.Context, fileID string, mutate func(*types.FileEntity)) error {
	for i := 0; i < casRetries; i++ {
		file, err := s.store.GetFile(ctx, fileID)
		if errors.Is(err, store.ErrFileNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		mutate(file)
		err = s.store.UpdateFile(ctx, file)
		if err == nil || !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}
	return store.ErrVersionConflict
}
