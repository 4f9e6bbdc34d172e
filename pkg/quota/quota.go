// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

// Package quota provides per-tenant admission control for storage usage.
// All counter mutations go through the store's atomic conditional updates,
// so concurrent admissions can never push a tenant past its limits.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/LeeDigitalWorks/zapmedia/pkg/logger"
	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// DenyReason says which limit rejected an admission.
type DenyReason string

const (
	DenyBytes   DenyReason = "bytes_limit"
	DenyObjects DenyReason = "objects_limit"
)

// DenyError is returned when a reservation would exceed a tenant limit.
type DenyError struct {
	TenantID string
	Reason   DenyReason
	Bytes    int64
	Objects  int64
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("quota denied for tenant %s (%s): requested %s / %d objects",
		e.TenantID, e.Reason, humanize.IBytes(uint64(e.Bytes)), e.Objects)
}

// Ledger mediates all quota traffic for the upload pipeline.
type Ledger struct {
	store store.QuotaStore
}

// NewLedger creates a quota ledger on top of a QuotaStore.
func NewLedger(qs store.QuotaStore) *Ledger {
	return &Ledger{store: qs}
}

// Reserve atomically admits bytes/objects for the tenant, or returns a
// *DenyError naming the violated limit. A successful reservation MUST be
// paired with either Commit or Release.
func (l *Ledger) Reserve(ctx context.Context, tenantID string, bytes, objects int64) error {
	err := l.store.Reserve(ctx, tenantID, bytes, objects)
	if err == nil {
		reservationsTotal.WithLabelValues("admitted").Inc()
		return nil
	}

	var reason DenyReason
	switch {
	case errors.Is(err, store.ErrBytesQuotaExceeded):
		reason = DenyBytes
	case errors.Is(err, store.ErrObjectQuotaExceeded):
		reason = DenyObjects
	default:
		reservationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("reserve quota: %w", err)
	}

	reservationsTotal.WithLabelValues("denied").Inc()
	denialsTotal.WithLabelValues(string(reason)).Inc()
	return &DenyError{TenantID: tenantID, Reason: reason, Bytes: bytes, Objects: objects}
}

// Release returns a failed or abandoned reservation to the pool.
func (l *Ledger) Release(ctx context.Context, tenantID string, bytes, objects int64) error {
	if err := l.store.Release(ctx, tenantID, bytes, objects); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	releasesTotal.Inc()
	return nil
}

// Commit reconciles a reservation against the actual stored size. The
// declared size was reserved up front; if the object came in smaller the
// difference is released, if larger the excess is admitted unconditionally
// because the bytes already landed in the object store.
func (l *Ledger) Commit(ctx context.Context, tenantID string, declared, actual int64) error {
	switch {
	case actual < declared:
		return l.Release(ctx, tenantID, declared-actual, 0)
	case actual > declared:
		// The bytes already landed; the counters must reflect them even
		// when that pushes the tenant past its cap.
		if err := l.store.ForceAdd(ctx, tenantID, actual-declared, 0); err != nil {
			return fmt.Errorf("commit quota: %w", err)
		}
		logger.Warn().Str("tenant_id", tenantID).
			Int64("declared", declared).Int64("actual", actual).
			Msg("quota commit above reservation, usage recorded over cap")
	}
	return nil
}

// Usage returns the tenant's current counters and limits.
func (l *Ledger) Usage(ctx context.Context, tenantID string) (*types.Quota, error) {
	q, err := l.store.GetQuota(ctx, tenantID)
	if errors.Is(err, store.ErrQuotaNotFound) {
		return &types.Quota{TenantID: tenantID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return q, nil
}

// SetLimits configures the tenant's limits. Zero means unlimited.
func (l *Ledger) SetLimits(ctx context.Context, tenantID string, maxBytes, maxObjects int64) error {
	return l.store.SetQuotaLimits(ctx, tenantID, maxBytes, maxObjects)
}
