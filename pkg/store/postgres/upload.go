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
// Upload Operations
// ============================================================================

func (p *Postgres) CreateUpload(ctx context.Context, upload *types.Upload) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO uploads (id, upload_id, file_id, tenant_id, owner_id, status, multipart, part_size, part_count, declared_size, content_type, checksum, storage_key, store_upload_id, version, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		upload.ID.String(),
		upload.UploadID,
		upload.FileID,
		upload.TenantID,
		upload.OwnerID,
		string(upload.Status),
		upload.Multipart,
		upload.PartSize,
		upload.PartCount,
		upload.DeclaredSize,
		upload.ContentType,
		upload.Checksum,
		upload.StorageKey,
		upload.StoreUploadID,
		upload.Version,
		upload.CreatedAt,
		upload.UpdatedAt,
		upload.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	return nil
}

const uploadColumns = `id, upload_id, file_id, tenant_id, owner_id, status, multipart, part_size, part_count, declared_size, content_type, checksum, storage_key, store_upload_id, version, created_at, updated_at, expires_at`

func (p *Postgres) GetUpload(ctx context.Context, uploadID string) (*types.Upload, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+uploadColumns+` FROM uploads WHERE upload_id = $1
	`, uploadID)
	return scanUpload(row)
}

// UpdateUpload persists the upload if its version matches the stored one,
// returning store.ErrVersionConflict on a lost race.
func (p *Postgres) UpdateUpload(ctx context.Context, upload *types.Upload) error {
	now := time.Now().UnixNano()
	res, err := p.db.ExecContext(ctx, `
		UPDATE uploads
		SET status = $1, part_count = $2, checksum = $3, storage_key = $4, store_upload_id = $5,
		    version = version + 1, updated_at = $6, expires_at = $7
		WHERE upload_id = $8 AND version = $9
	`,
		string(upload.Status),
		upload.PartCount,
		upload.Checksum,
		upload.StorageKey,
		upload.StoreUploadID,
		now,
		upload.ExpiresAt,
		upload.UploadID,
		upload.Version,
	)
	if err != nil {
		return fmt.Errorf("update upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing row from a version race.
		var exists bool
		if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM uploads WHERE upload_id = $1)`, upload.UploadID).Scan(&exists); err != nil {
			return fmt.Errorf("check upload exists: %w", err)
		}
		if !exists {
			return store.ErrUploadNotFound
		}
		return store.ErrVersionConflict
	}
	upload.Version++
	upload.UpdatedAt = now
	return nil
}

func (p *Postgres) ListStaleUploads(ctx context.Context, cutoff int64, limit int) ([]*types.Upload, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+uploadColumns+`
		FROM uploads
		WHERE expires_at > 0 AND expires_at < $1
		  AND status IN ('INIT', 'IN_PROGRESS', 'PROCESSING')
		ORDER BY expires_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale uploads: %w", err)
	}
	defer rows.Close()
	return scanUploads(rows)
}

func (p *Postgres) ListUploads(ctx context.Context, tenantID string, limit int) ([]*types.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = $1`
		args = append(args, tenantID)
	}
	query += fmt.Sprintf(` ORDER BY created_at LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()
	return scanUploads(rows)
}

func (p *Postgres) UpsertPart(ctx context.Context, part *types.MultipartPart) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO upload_parts (id, upload_id, part_number, size, etag, registered, url_expires_at, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (upload_id, part_number) DO UPDATE
		SET size = EXCLUDED.size, etag = EXCLUDED.etag, registered = EXCLUDED.registered,
		    url_expires_at = EXCLUDED.url_expires_at, last_modified = EXCLUDED.last_modified
	`,
		part.ID.String(),
		part.UploadID,
		part.PartNumber,
		part.Size,
		part.ETag,
		part.Registered,
		part.URLExpiresAt,
		part.LastModified,
	)
	if err != nil {
		return fmt.Errorf("upsert part: %w", err)
	}
	return nil
}

func (p *Postgres) ListParts(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, upload_id, part_number, size, etag, registered, url_expires_at, last_modified
		FROM upload_parts
		WHERE upload_id = $1
		ORDER BY part_number
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	defer rows.Close()

	var parts []*types.MultipartPart
	for rows.Next() {
		var part types.MultipartPart
		var id string
		if err := rows.Scan(&id, &part.UploadID, &part.PartNumber, &part.Size, &part.ETag, &part.Registered, &part.URLExpiresAt, &part.LastModified); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		if err := part.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("parse part id: %w", err)
		}
		parts = append(parts, &part)
	}
	return parts, rows.Err()
}

func (p *Postgres) DeleteParts(ctx context.Context, uploadID string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM upload_parts WHERE upload_id = $1
	`, uploadID)
	if err != nil {
		return fmt.Errorf("delete parts: %w", err)
	}
	return nil
}

func scanUpload(row *sql.Row) (*types.Upload, error) {
	var u types.Upload
	var id, status string
	err := row.Scan(&id, &u.UploadID, &u.FileID, &u.TenantID, &u.OwnerID, &status, &u.Multipart,
		&u.PartSize, &u.PartCount, &u.DeclaredSize, &u.ContentType, &u.Checksum, &u.StorageKey,
		&u.StoreUploadID, &u.Version, &u.CreatedAt, &u.UpdatedAt, &u.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan upload: %w", err)
	}
	if err := u.ID.UnmarshalText([]byte(id)); err != nil {
		return nil, fmt.Errorf("parse upload id: %w", err)
	}
	u.Status = types.UploadStatus(status)
	return &u, nil
}

func scanUploads(rows *sql.Rows) ([]*types.Upload, error) {
	var uploads []*types.Upload
	for rows.Next() {
		var u types.Upload
		var id, status string
		err := rows.Scan(&id, &u.UploadID, &u.FileID, &u.TenantID, &u.OwnerID, &status, &u.Multipart,
			&u.PartSize, &u.PartCount, &u.DeclaredSize, &u.ContentType, &u.Checksum, &u.StorageKey,
			&u.StoreUploadID, &u.Version, &u.CreatedAt, &u.UpdatedAt, &u.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		if err := u.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("parse upload id: %w", err)
		}
		u.Status = types.UploadStatus(status)
		uploads = append(uploads, &u)
	}
	return uploads, rows.Err()
}
