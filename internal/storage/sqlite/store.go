package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode and applies the
// schema. Pass ":memory:" for an ephemeral store (tests).
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---- ObjectStore ----

// PutBlob inserts a blob keyed by its content hash. Identical content hashes
// to the identical row, so the conflict clause makes re-insertion a no-op.
func (s *Store) PutBlob(ctx context.Context, blob *types.Blob) error {
	if blob == nil || blob.Hash == "" {
		return fmt.Errorf("%w: blob hash is required", storage.ErrInvalidInput)
	}

	var emb []byte
	var embeddedAt any
	if len(blob.Embedding) > 0 {
		emb = serializeEmbedding(blob.Embedding)
		embeddedAt = types.Timestamp(blob.CreatedAt)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (blob_hash, tenant_id, content, content_type, byte_size, created_at, embedding, embedded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, blob_hash) DO NOTHING
	`, blob.Hash, blob.TenantID, blob.Content, blob.ContentType, blob.ByteSize,
		types.Timestamp(blob.CreatedAt), emb, embeddedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert blob: %w", err)
	}
	return nil
}

// GetBlob retrieves a blob by hash.
func (s *Store) GetBlob(ctx context.Context, tenantID, blobHash string) (*types.Blob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT blob_hash, tenant_id, content, content_type, byte_size, created_at, embedding, embedded_at
		FROM blobs WHERE tenant_id = ? AND blob_hash = ?
	`, tenantID, blobHash)
	return scanBlob(row)
}

// SetBlobEmbedding attaches the embedding vector to an existing blob.
func (s *Store) SetBlobEmbedding(ctx context.Context, tenantID, blobHash string, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE blobs SET embedding = ?, embedded_at = ? WHERE tenant_id = ? AND blob_hash = ?
	`, serializeEmbedding(embedding), types.Timestamp(time.Now()), tenantID, blobHash)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set blob embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("blob %s: %w", blobHash, storage.ErrNotFound)
	}
	return nil
}

// AppendCommit persists the tree entry, commit row and tags in one
// transaction. The branch head is advanced separately.
func (s *Store) AppendCommit(ctx context.Context, commit *types.Commit, entry *types.TreeEntry, tags []string) error {
	if commit == nil || entry == nil {
		return fmt.Errorf("%w: commit and tree entry are required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tree_entries (tree_hash, tenant_id, name, blob_hash, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, tree_hash) DO NOTHING
	`, entry.TreeHash, entry.TenantID, entry.Name, entry.BlobHash, entry.Mode,
		types.Timestamp(entry.CreatedAt)); err != nil {
		return fmt.Errorf("sqlite: failed to insert tree entry: %w", err)
	}

	var parent any
	if commit.ParentHash != "" {
		parent = commit.ParentHash
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO commits (commit_hash, tenant_id, tree_hash, parent_hash, author, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, commit.Hash, commit.TenantID, commit.TreeHash, parent, commit.Author,
		commit.Message, types.Timestamp(commit.CreatedAt)); err != nil {
		return fmt.Errorf("sqlite: failed to insert commit: %w", err)
	}

	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tags (tenant_id, blob_hash, tag, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id, blob_hash, tag) DO NOTHING
		`, commit.TenantID, entry.BlobHash, tag, types.Timestamp(commit.CreatedAt)); err != nil {
			return fmt.Errorf("sqlite: failed to insert tag %q: %w", tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit transaction: %w", err)
	}
	return nil
}

// GetCommit retrieves a commit by hash.
func (s *Store) GetCommit(ctx context.Context, tenantID, commitHash string) (*types.Commit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT commit_hash, tenant_id, tree_hash, parent_hash, author, message, created_at
		FROM commits WHERE tenant_id = ? AND commit_hash = ?
	`, tenantID, commitHash)

	var c types.Commit
	var parent sql.NullString
	var createdAt string
	err := row.Scan(&c.Hash, &c.TenantID, &c.TreeHash, &parent, &c.Author, &c.Message, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("commit %s: %w", commitHash, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get commit: %w", err)
	}
	c.ParentHash = parent.String
	c.CreatedAt = parseTimestamp(createdAt)
	return &c, nil
}

// TreeEmbeddings returns the distinct blob embeddings reachable through the
// given tree hashes. Blobs without embeddings are omitted.
func (s *Store) TreeEmbeddings(ctx context.Context, tenantID string, treeHashes []string) ([][]float32, error) {
	if len(treeHashes) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(treeHashes))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(treeHashes)+1)
	args = append(args, tenantID)
	for _, h := range treeHashes {
		args = append(args, h)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT b.embedding
		FROM tree_entries te
		JOIN blobs b ON b.tenant_id = te.tenant_id AND b.blob_hash = te.blob_hash
		WHERE te.tenant_id = ? AND te.tree_hash IN (%s) AND b.embedding IS NOT NULL
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query tree embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings [][]float32
	for rows.Next() {
		var buf []byte
		if err := rows.Scan(&buf); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan embedding: %w", err)
		}
		emb, err := deserializeEmbedding(buf)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt embedding blob: %w", err)
		}
		embeddings = append(embeddings, emb)
	}
	return embeddings, rows.Err()
}

// FindBlobsByTag returns blobs carrying the given tag, newest first.
func (s *Store) FindBlobsByTag(ctx context.Context, tenantID, tag string, limit int) ([]*types.Blob, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.blob_hash, b.tenant_id, b.content, b.content_type, b.byte_size, b.created_at, b.embedding, b.embedded_at
		FROM tags t
		JOIN blobs b ON b.tenant_id = t.tenant_id AND b.blob_hash = t.blob_hash
		WHERE t.tenant_id = ? AND t.tag = ?
		ORDER BY b.created_at DESC
		LIMIT ?
	`, tenantID, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query blobs by tag: %w", err)
	}
	defer rows.Close()

	var blobs []*types.Blob
	for rows.Next() {
		b, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, b)
	}
	return blobs, rows.Err()
}

// ---- BranchStore ----

// CreateBranch inserts a branch, enforcing tenant-scoped name uniqueness.
func (s *Store) CreateBranch(ctx context.Context, branch *types.Branch) error {
	if branch == nil || branch.Name == "" {
		return fmt.Errorf("%w: branch name is required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (tenant_id, name, head_commit, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, branch.TenantID, branch.Name, branch.HeadCommit, branch.Description,
		types.Timestamp(branch.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("branch %s already exists: %w", branch.Name, storage.ErrConflict)
		}
		return fmt.Errorf("sqlite: failed to insert branch: %w", err)
	}
	return nil
}

// GetBranch retrieves a branch by name.
func (s *Store) GetBranch(ctx context.Context, tenantID, name string) (*types.Branch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, name, head_commit, COALESCE(description, ''), created_at
		FROM branches WHERE tenant_id = ? AND name = ?
	`, tenantID, name)

	var b types.Branch
	var createdAt string
	err := row.Scan(&b.TenantID, &b.Name, &b.HeadCommit, &b.Description, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("branch %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get branch: %w", err)
	}
	b.CreatedAt = parseTimestamp(createdAt)
	return &b, nil
}

// ListBranches returns all branches for a tenant, ordered by name.
func (s *Store) ListBranches(ctx context.Context, tenantID string) ([]*types.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, name, head_commit, COALESCE(description, ''), created_at
		FROM branches WHERE tenant_id = ? ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list branches: %w", err)
	}
	defer rows.Close()

	var branches []*types.Branch
	for rows.Next() {
		var b types.Branch
		var createdAt string
		if err := rows.Scan(&b.TenantID, &b.Name, &b.HeadCommit, &b.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan branch: %w", err)
		}
		b.CreatedAt = parseTimestamp(createdAt)
		branches = append(branches, &b)
	}
	return branches, rows.Err()
}

// AdvanceHead performs the compare-and-swap head update. The WHERE clause on
// the old head makes the check-and-set a single atomic statement.
func (s *Store) AdvanceHead(ctx context.Context, tenantID, name, oldHead, newHead string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE branches SET head_commit = ?
		WHERE tenant_id = ? AND name = ? AND head_commit = ?
	`, newHead, tenantID, name, oldHead)
	if err != nil {
		return fmt.Errorf("sqlite: failed to advance branch head: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a lost race from a missing branch.
	if _, err := s.GetBranch(ctx, tenantID, name); err != nil {
		return err
	}
	return fmt.Errorf("branch %s head moved concurrently: %w", name, storage.ErrConflict)
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlob(row rowScanner) (*types.Blob, error) {
	var b types.Blob
	var createdAt string
	var embeddedAt sql.NullString
	var emb []byte
	err := row.Scan(&b.Hash, &b.TenantID, &b.Content, &b.ContentType, &b.ByteSize, &createdAt, &emb, &embeddedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("blob: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan blob: %w", err)
	}
	b.CreatedAt = parseTimestamp(createdAt)
	if len(emb) > 0 {
		vec, err := deserializeEmbedding(emb)
		if err != nil {
			return nil, fmt.Errorf("sqlite: corrupt embedding blob: %w", err)
		}
		b.Embedding = vec
	}
	if embeddedAt.Valid {
		t := parseTimestamp(embeddedAt.String)
		b.EmbeddedAt = &t
	}
	return &b, nil
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(types.TimestampFormat, s)
	if err != nil {
		// Older rows may carry RFC3339; fall back before giving up.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2
		}
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}

// serializeEmbedding packs a float32 vector as little-endian bytes.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding unpacks a little-endian float32 vector.
func deserializeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding buffer length %d is not a multiple of 4", len(buf))
	}
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding, nil
}
