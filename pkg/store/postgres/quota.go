// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// ============================================================================
// Quota Operations
// ============================================================================

func (p *Postgres) GetQuota(ctx context.Context, tenantID string) (*types.Quota, error) {
	var q types.Quota
	err := p.db.QueryRowContext(ctx, `
		SELECT tenant_id, used_bytes, used_objects, max_bytes, max_objects, updated_at
		FROM tenant_quotas
		WHERE tenant_id = $1
	`, tenantID).Scan(&q.TenantID, &q.UsedBytes, &q.UsedObjects, &q.MaxBytes, &q.MaxObjects, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrQuotaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return &q, nil
}

func (p *Postgres) SetQuotaLimits(ctx context.Context, tenantID string, maxBytes, maxObjects int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenant_quotas (tenant_id, max_bytes, max_objects, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE
		SET max_bytes = EXCLUDED.max_bytes, max_objects = EXCLUDED.max_objects, updated_at = EXCLUDED.updated_at
	`, tenantID, maxBytes, maxObjects, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("set quota limits: %w", err)
	}
	return nil
}

// Reserve admits bytes/objects against the tenant's limits in a single
// conditional UPDATE so concurrent reservations can never oversubscribe.
// An unknown tenant is created with unlimited quota.
func (p *Postgres) Reserve(ctx context.Context, tenantID string, bytes, objects int64) error {
	now := time.Now().UnixNano()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenant_quotas (tenant_id, updated_at) VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO NOTHING
	`, tenantID, now)
	if err != nil {
		return fmt.Errorf("ensure quota row: %w", err)
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE tenant_quotas
		SET used_bytes = used_bytes + $1, used_objects = used_objects + $2, updated_at = $3
		WHERE tenant_id = $4
		  AND (max_bytes <= 0 OR used_bytes + $1 <= max_bytes)
		  AND (max_objects <= 0 OR used_objects + $2 <= max_objects)
	`, bytes, objects, now, tenantID)
	if err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Denied, figure out which limit was hit for the typed error.
		q, err := p.GetQuota(ctx, tenantID)
		if err != nil {
			return store.ErrBytesQuotaExceeded
		}
		if q.MaxBytes > 0 && q.UsedBytes+bytes > q.MaxBytes {
			return store.ErrBytesQuotaExceeded
		}
		return store.ErrObjectQuotaExceeded
	}
	return nil
}

// ForceAdd adds to the counters without checking limits.
func (p *Postgres) ForceAdd(ctx context.Context, tenantID string, bytes, objects int64) error {
	now := time.Now().UnixNano()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenant_quotas (tenant_id, updated_at) VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO NOTHING
	`, tenantID, now)
	if err != nil {
		return fmt.Errorf("ensure quota row: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE tenant_quotas
		SET used_bytes = used_bytes + $1, used_objects = used_objects + $2, updated_at = $3
		WHERE tenant_id = $4
	`, bytes, objects, now, tenantID)
	if err != nil {
		return fmt.Errorf("force add quota: %w", err)
	}
	return nil
}

// Release returns reserved capacity, clamping counters at zero.
func (p *Postgres) Release(ctx context.Context, tenantID string, bytes, objects int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE tenant_quotas
		SET used_bytes = GREATEST(used_bytes - $1, 0),
		    used_objects = GREATEST(used_objects - $2, 0),
		    updated_at = $3
		WHERE tenant_id = $4
	`, bytes, objects, time.Now().UnixNano(), tenantID)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}
