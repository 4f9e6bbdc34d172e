// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapmedia/pkg/store"
	"github.com/LeeDigitalWorks/zapmedia/pkg/types"
)

// ============================================================================
// File Operations
// ============================================================================

const fileColumns = `file_id, tenant_id, owner_id, status, access_policy, filename, content_type, size, checksum, etag, storage_key, metadata, version, created_at, updated_at, deleted_at`

func (p *Postgres) CreateFile(ctx context.Context, file *types.FileEntity) error {
	metadataJSON, err := marshalMetadata(file.Metadata)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO files (file_id, tenant_id, owner_id, status, access_policy, filename, content_type, size, checksum, etag, storage_key, metadata, version, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		file.FileID,
		file.TenantID,
		file.OwnerID,
		string(file.Status),
		string(file.AccessPolicy),
		file.Filename,
		file.ContentType,
		file.Size,
		file.Checksum,
		file.ETag,
		file.StorageKey,
		metadataJSON,
		file.Version,
		file.CreatedAt,
		file.UpdatedAt,
		file.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	return nil
}

func (p *Postgres) GetFile(ctx context.Context, fileID string) (*types.FileEntity, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE file_id = $1
	`, fileID)
	return scanFile(row)
}

// UpdateFile persists the file if its version matches the stored one,
// returning store.ErrVersionConflict on a lost race.
func (p *Postgres) UpdateFile(ctx context.Context, file *types.FileEntity) error {
	metadataJSON, err := marshalMetadata(file.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UnixNano()
	res, err := p.db.ExecContext(ctx, `
		UPDATE files
		SET status = $1, access_policy = $2, filename = $3, content_type = $4, size = $5,
		    checksum = $6, etag = $7, storage_key = $8, metadata = $9,
		    version = version + 1, updated_at = $10, deleted_at = $11
		WHERE file_id = $12 AND version = $13
	`,
		string(file.Status),
		string(file.AccessPolicy),
		file.Filename,
		file.ContentType,
		file.Size,
		file.Checksum,
		file.ETag,
		file.StorageKey,
		metadataJSON,
		now,
		file.DeletedAt,
		file.FileID,
		file.Version,
	)
	if err != nil {
		return fmt.Errorf("update file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM files WHERE file_id = $1)`, file.FileID).Scan(&exists); err != nil {
			return fmt.Errorf("check file exists: %w", err)
		}
		if !exists {
			return store.ErrFileNotFound
		}
		return store.ErrVersionConflict
	}
	file.Version++
	file.UpdatedAt = now
	return nil
}

func (p *Postgres) FindByChecksum(ctx context.Context, tenantID, checksum string) (*types.FileEntity, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE tenant_id = $1 AND checksum = $2 AND status = 'COMPLETED'
		LIMIT 1
	`, tenantID, checksum)
	return scanFile(row)
}

func (p *Postgres) ListDeletedBefore(ctx context.Context, cutoff int64, limit int) ([]*types.FileEntity, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+fileColumns+`
		FROM files
		WHERE status = 'DELETED' AND deleted_at < $1
		ORDER BY deleted_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list deleted files: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (p *Postgres) ListCreatedBefore(ctx context.Context, tenantID string, cutoff int64, limit int) ([]*types.FileEntity, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE status != 'DELETED' AND created_at < $1
	`
	args := []any{cutoff}
	if tenantID != "" {
		query += ` AND tenant_id = $2`
		args = append(args, tenantID)
	}
	query += fmt.Sprintf(` ORDER BY created_at LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files by age: %w", err)
	}
	defer rows.Close()
	return scanFiles(rows)
}

func (p *Postgres) DeleteFile(ctx context.Context, fileID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM files WHERE file_id = $1
	`, fileID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (p *Postgres) CreateDerivative(ctx context.Context, d *types.FileDerivative) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO file_derivatives (id, file_id, kind, storage_key, content_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID.String(), d.FileID, d.Kind, d.StorageKey, d.ContentType, d.Size, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create derivative: %w", err)
	}
	return nil
}

func (p *Postgres) ListDerivatives(ctx context.Context, fileID string) ([]*types.FileDerivative, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, file_id, kind, storage_key, content_type, size, created_at
		FROM file_derivatives
		WHERE file_id = $1
		ORDER BY created_at
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list derivatives: %w", err)
	}
	defer rows.Close()

	var out []*types.FileDerivative
	for rows.Next() {
		var d types.FileDerivative
		var id string
		if err := rows.Scan(&id, &d.FileID, &d.Kind, &d.StorageKey, &d.ContentType, &d.Size, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan derivative: %w", err)
		}
		if err := d.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("parse derivative id: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func marshalMetadata(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func scanFile(row *sql.Row) (*types.FileEntity, error) {
	var f types.FileEntity
	var status, policy, metadataJSON string
	err := row.Scan(&f.FileID, &f.TenantID, &f.OwnerID, &status, &policy, &f.Filename,
		&f.ContentType, &f.Size, &f.Checksum, &f.ETag, &f.StorageKey, &metadataJSON,
		&f.Version, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.Status = types.FileStatus(status)
	f.AccessPolicy = types.AccessPolicy(policy)
	if err := json.Unmarshal([]byte(metadataJSON), &f.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]*types.FileEntity, error) {
	var files []*types.FileEntity
	for rows.Next() {
		var f types.FileEntity
		var status, policy, metadataJSON string
		err := rows.Scan(&f.FileID, &f.TenantID, &f.OwnerID, &status, &policy, &f.Filename,
			&f.ContentType, &f.Size, &f.Checksum, &f.ETag, &f.StorageKey, &metadataJSON,
			&f.Version, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.Status = types.FileStatus(status)
		f.AccessPolicy = types.AccessPolicy(policy)
		if err := json.Unmarshal([]byte(metadataJSON), &f.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}
