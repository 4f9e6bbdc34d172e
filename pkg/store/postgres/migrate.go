// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"context"
	"fmt"
)

// migration is one versioned schema change. Versions are applied in
// ascending order and recorded in schema_migrations.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
CREATE TABLE IF NOT EXISTS uploads (
	id UUID PRIMARY KEY,
	upload_id TEXT UNIQUE NOT NULL,
	file_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL,
	multipart BOOLEAN NOT NULL DEFAULT FALSE,
	part_size BIGINT NOT NULL DEFAULT 0,
	part_count INT NOT NULL DEFAULT 0,
	declared_size BIGINT NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	storage_key TEXT NOT NULL DEFAULT '',
	store_upload_id TEXT NOT NULL DEFAULT '',
	version BIGINT NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_uploads_tenant ON uploads (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_uploads_expiry ON uploads (expires_at) WHERE status IN ('INIT', 'IN_PROGRESS', 'PROCESSING');

CREATE TABLE IF NOT EXISTS upload_parts (
	id UUID PRIMARY KEY,
	upload_id TEXT NOT NULL REFERENCES uploads (upload_id) ON DELETE CASCADE,
	part_number INT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	etag TEXT NOT NULL DEFAULT '',
	registered BOOLEAN NOT NULL DEFAULT FALSE,
	url_expires_at BIGINT NOT NULL DEFAULT 0,
	last_modified BIGINT NOT NULL DEFAULT 0,
	UNIQUE (upload_id, part_number)
);

CREATE TABLE IF NOT EXISTS files (
	file_id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL,
	access_policy TEXT NOT NULL DEFAULT 'PRIVATE',
	filename TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	size BIGINT NOT NULL DEFAULT 0,
	checksum TEXT NOT NULL DEFAULT '',
	etag TEXT NOT NULL DEFAULT '',
	storage_key TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	version BIGINT NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	deleted_at BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_files_checksum ON files (tenant_id, checksum) WHERE status = 'COMPLETED';
CREATE INDEX IF NOT EXISTS idx_files_deleted ON files (deleted_at) WHERE status = 'DELETED';

CREATE TABLE IF NOT EXISTS file_derivatives (
	id UUID PRIMARY KEY,
	file_id TEXT NOT NULL REFERENCES files (file_id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	size BIGINT NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_derivatives_file ON file_derivatives (file_id);

CREATE TABLE IF NOT EXISTS tenant_quotas (
	tenant_id TEXT PRIMARY KEY,
	used_bytes BIGINT NOT NULL DEFAULT 0,
	used_objects BIGINT NOT NULL DEFAULT 0,
	max_bytes BIGINT NOT NULL DEFAULT 0,
	max_objects BIGINT NOT NULL DEFAULT 0,
	updated_at BIGINT NOT NULL DEFAULT 0,
	CONSTRAINT quota_non_negative CHECK (used_bytes >= 0 AND used_objects >= 0)
);

CREATE TABLE IF NOT EXISTS download_tokens (
	id UUID PRIMARY KEY,
	file_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	expires_at BIGINT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tokens_expiry ON download_tokens (expires_at);

CREATE TABLE IF NOT EXISTS lifecycle_policies (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	max_age_ns BIGINT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS audit_log (
	id UUID PRIMARY KEY,
	action TEXT NOT NULL,
	actor_type TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	file_id TEXT NOT NULL DEFAULT '',
	upload_id TEXT NOT NULL DEFAULT '',
	source_ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_log (tenant_id, ts DESC);
`,
	},
	{
		Version: 2,
		Name:    "processing_jobs",
		SQL: `
CREATE TABLE IF NOT EXISTS processing_jobs (
	id UUID PRIMARY KEY,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INT NOT NULL DEFAULT 0,
	payload JSONB NOT NULL DEFAULT '{}',
	attempts INT NOT NULL DEFAULT 0,
	max_retries INT NOT NULL DEFAULT 3,
	last_error TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	scheduled_at BIGINT NOT NULL DEFAULT 0,
	started_at BIGINT NOT NULL DEFAULT 0,
	completed_at BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_jobs_pending ON processing_jobs (scheduled_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_jobs_status ON processing_jobs (status, updated_at);
`,
	},
}

// Migrate brings the schema up to the latest version.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var current int
	err = p.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM schema_migrations
	`).Scan(&current)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := p.db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := p.db.ExecContext(ctx, `
			INSERT INTO schema_migrations (version) VALUES ($1)
		`, m.Version); err != nil {
			return fmt.Errorf("record migration version %d: %w", m.Version, err)
		}
	}
	return nil
}
