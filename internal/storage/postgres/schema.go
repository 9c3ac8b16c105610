// Package postgres provides a PostgreSQL implementation of the Boswell
// storage interfaces, with optional pgvector acceleration for embeddings.
package postgres

// Schema contains the SQL statements to create the object-model schema.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every open. Embeddings are always stored in BYTEA columns; the
// MigrationPgvector adds vector columns when the extension is available.
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
    blob_hash TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    content TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT 'memory',
    byte_size INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    embedding BYTEA,
    embedded_at TEXT,
    PRIMARY KEY (tenant_id, blob_hash)
);

CREATE TABLE IF NOT EXISTS tree_entries (
    tree_hash TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    blob_hash TEXT NOT NULL,
    mode TEXT NOT NULL DEFAULT 'memory',
    created_at TEXT NOT NULL,
    PRIMARY KEY (tenant_id, tree_hash)
);

CREATE TABLE IF NOT EXISTS commits (
    commit_hash TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    tree_hash TEXT NOT NULL,
    parent_hash TEXT,
    author TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (tenant_id, commit_hash)
);

CREATE INDEX IF NOT EXISTS idx_commits_parent ON commits(tenant_id, parent_hash);

CREATE TABLE IF NOT EXISTS branches (
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    head_commit TEXT NOT NULL DEFAULT 'GENESIS',
    description TEXT,
    created_at TEXT NOT NULL,
    PRIMARY KEY (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS tags (
    tenant_id TEXT NOT NULL,
    blob_hash TEXT NOT NULL,
    tag TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (tenant_id, blob_hash, tag)
);

CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tenant_id, tag);

CREATE TABLE IF NOT EXISTS branch_fingerprints (
    tenant_id TEXT NOT NULL,
    branch_name TEXT NOT NULL,
    centroid BYTEA,
    commit_count INTEGER NOT NULL DEFAULT 0,
    last_updated TEXT NOT NULL,
    PRIMARY KEY (tenant_id, branch_name)
);

CREATE TABLE IF NOT EXISTS trails (
    trail_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    source_blob TEXT NOT NULL,
    target_blob TEXT NOT NULL,
    strength DOUBLE PRECISION NOT NULL,
    state TEXT NOT NULL DEFAULT 'ACTIVE',
    traversal_count INTEGER NOT NULL DEFAULT 1,
    last_traversed_at TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (tenant_id, trail_id),
    UNIQUE (tenant_id, source_blob, target_blob)
);

CREATE INDEX IF NOT EXISTS idx_trails_strength ON trails(tenant_id, strength DESC);
CREATE INDEX IF NOT EXISTS idx_trails_source ON trails(tenant_id, source_blob);
CREATE INDEX IF NOT EXISTS idx_trails_target ON trails(tenant_id, target_blob);

CREATE TABLE IF NOT EXISTS cross_references (
    tenant_id TEXT NOT NULL,
    source_blob TEXT NOT NULL,
    target_blob TEXT NOT NULL,
    source_branch TEXT NOT NULL,
    target_branch TEXT NOT NULL,
    link_type TEXT NOT NULL DEFAULT 'resonance',
    weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    reasoning TEXT,
    created_at TEXT NOT NULL,
    PRIMARY KEY (tenant_id, source_blob, target_blob)
);

CREATE INDEX IF NOT EXISTS idx_links_type ON cross_references(tenant_id, link_type);
`

// MigrationPgvector adds vector columns for cosine-distance queries. Applied
// only when the pgvector extension is installed; the BYTEA columns remain the
// source of truth either way.
const MigrationPgvector = `
ALTER TABLE blobs ADD COLUMN IF NOT EXISTS embedding_vec vector(1536);
ALTER TABLE branch_fingerprints ADD COLUMN IF NOT EXISTS centroid_vec vector(1536);
`
