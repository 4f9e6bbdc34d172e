// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// ============================================================================
// Token, Policy and Audit Operations
// ============================================================================

func (p *Postgres) CreateDownloadToken(ctx context.Context, token *types.DownloadToken) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO download_tokens (id, file_id, tenant_id, actor_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID.String(), token.FileID, token.TenantID, token.ActorID, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("create download token: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteExpiredTokens(ctx context.Context, cutoff int64) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM download_tokens WHERE expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (p *Postgres) ListPolicies(ctx context.Context) ([]*types.LifecyclePolicy, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, action, max_age_ns, enabled
		FROM lifecycle_policies
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []*types.LifecyclePolicy
	for rows.Next() {
		var pol types.LifecyclePolicy
		var action string
		var maxAge int64
		if err := rows.Scan(&pol.ID, &pol.TenantID, &action, &maxAge, &pol.Enabled); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		pol.Action = types.LifecycleAction(action)
		pol.MaxAge = time.Duration(maxAge)
		out = append(out, &pol)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertPolicy(ctx context.Context, policy *types.LifecyclePolicy) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO lifecycle_policies (id, tenant_id, action, max_age_ns, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET tenant_id = EXCLUDED.tenant_id, action = EXCLUDED.action,
		    max_age_ns = EXCLUDED.max_age_ns, enabled = EXCLUDED.enabled
	`, policy.ID, policy.TenantID, string(policy.Action), int64(policy.MaxAge), policy.Enabled)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

func (p *Postgres) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	metadataJSON := "{}"
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadataJSON = string(b)
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor_type, actor_id, tenant_id, file_id, upload_id, source_ip, user_agent, metadata, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.ID.String(),
		string(entry.Action),
		string(entry.ActorType),
		entry.ActorID,
		entry.TenantID,
		entry.FileID,
		entry.UploadID,
		entry.SourceIP,
		entry.UserAgent,
		metadataJSON,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (p *Postgres) ListAudit(ctx context.Context, tenantID string, limit int) ([]*types.AuditEntry, error) {
	query := `
		SELECT id, action, actor_type, actor_id, tenant_id, file_id, upload_id, source_ip, user_agent, metadata, ts
		FROM audit_log
	`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = $1`
		args = append(args, tenantID)
	}
	query += fmt.Sprintf(` ORDER BY ts DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []*types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var id, action, actorType, metadataJSON string
		err := rows.Scan(&id, &action, &actorType, &e.ActorID, &e.TenantID, &e.FileID, &e.UploadID,
			&e.SourceIP, &e.UserAgent, &metadataJSON, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := e.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("parse audit id: %w", err)
		}
		e.Action = types.AuditAction(action)
		e.ActorType = types.ActorType(actorType)
		if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
