// Package types defines the content-addressable object model for the Boswell
// memory repository: blobs, tree entries, commits and branches, plus the
// derived records (fingerprints, trails, links) layered on top of them.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GenesisHead is the sentinel head value of a branch with no commits.
// A branch whose head equals GenesisHead has an empty history; the first
// commit on such a branch has no parent.
const GenesisHead = "GENESIS"

// TimestampFormat is the canonical timestamp layout used in hash inputs and
// persisted rows: UTC, microsecond precision, trailing Z.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// Timestamp formats t in the canonical layout used for hashing.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ComputeHash returns the SHA-256 hex digest of the UTF-8 bytes of content.
// This is the single hashing primitive for the whole object model.
func ComputeHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// CanonicalContent converts arbitrary commit content to its canonical string
// form. Structured content (maps, slices, structs) is JSON-serialized with
// stable key order; plain strings are used as-is. The blob hash is always
// computed over this canonical form, so identical structured content yields
// identical blobs regardless of input key order.
func CanonicalContent(content any) (string, error) {
	switch v := content.(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("content is required")
	default:
		// encoding/json sorts map keys, giving a stable serialization.
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("content is not serializable: %w", err)
		}
		return string(b), nil
	}
}

// Blob is an immutable content unit identified by the SHA-256 of its content.
// Blobs are never mutated after insertion; re-inserting identical content is
// a no-op by construction.
type Blob struct {
	Hash        string     `json:"blob_hash"`
	TenantID    string     `json:"tenant_id"`
	Content     string     `json:"content"`
	ContentType string     `json:"content_type"`
	ByteSize    int        `json:"byte_size"`
	CreatedAt   time.Time  `json:"created_at"`
	Embedding   []float32  `json:"embedding,omitempty"`
	EmbeddedAt  *time.Time `json:"embedded_at,omitempty"`
}

// NewBlob builds a Blob from canonical content, computing its hash and size.
func NewBlob(tenantID, content, contentType string, now time.Time) (*Blob, error) {
	if content == "" {
		return nil, fmt.Errorf("blob content is required")
	}
	if contentType == "" {
		contentType = "memory"
	}
	return &Blob{
		Hash:        ComputeHash(content),
		TenantID:    tenantID,
		Content:     content,
		ContentType: contentType,
		ByteSize:    len(content),
		CreatedAt:   now.UTC(),
	}, nil
}

// TreeEntry is a named pointer from a commit's logical tree to one blob.
// Its hash binds the blob to a branch and a point in time, so the same blob
// committed twice (or to two branches) produces distinct tree entries.
type TreeEntry struct {
	TreeHash  string    `json:"tree_hash"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	BlobHash  string    `json:"blob_hash"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// maxTreeEntryName caps the entry name, which is derived from the commit
// message.
const maxTreeEntryName = 100

// NewTreeEntry synthesizes the tree entry for a commit of blobHash to branch
// at the given instant. Identity = SHA-256 of "branch:blob_hash:timestamp".
func NewTreeEntry(tenantID, branch, blobHash, message, mode string, now time.Time) *TreeEntry {
	name := message
	if len(name) > maxTreeEntryName {
		name = name[:maxTreeEntryName]
	}
	return &TreeEntry{
		TreeHash:  ComputeHash(fmt.Sprintf("%s:%s:%s", branch, blobHash, Timestamp(now))),
		TenantID:  tenantID,
		Name:      name,
		BlobHash:  blobHash,
		Mode:      mode,
		CreatedAt: now.UTC(),
	}
}

// Commit is an immutable, hash-linked record of one memory write. Each commit
// has at most one parent, so every branch is a linear chain back to its
// genesis commit.
type Commit struct {
	Hash       string    `json:"commit_hash"`
	TenantID   string    `json:"tenant_id"`
	TreeHash   string    `json:"tree_hash"`
	ParentHash string    `json:"parent_hash,omitempty"` // empty for genesis commits
	Author     string    `json:"author"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// CommitHash computes the deterministic hash of a commit from its fields.
// A genesis commit (no parent) hashes the parent slot as the literal "None",
// which keeps hashes stable across re-derivation.
func CommitHash(treeHash, parentHash, message string, now time.Time) string {
	parent := parentHash
	if parent == "" {
		parent = "None"
	}
	return ComputeHash(fmt.Sprintf("%s:%s:%s:%s", treeHash, parent, message, Timestamp(now)))
}

// NewCommit builds a commit pointing at treeHash with the given parent.
// parentHash may be empty (genesis) but must never be the GENESIS sentinel;
// callers resolve the sentinel to "no parent" before constructing.
func NewCommit(tenantID, treeHash, parentHash, author, message string, now time.Time) (*Commit, error) {
	if treeHash == "" {
		return nil, fmt.Errorf("tree hash is required")
	}
	if parentHash == GenesisHead {
		return nil, fmt.Errorf("parent hash must be a commit hash or empty, not the genesis sentinel")
	}
	if author == "" {
		author = "agent"
	}
	return &Commit{
		Hash:       CommitHash(treeHash, parentHash, message, now),
		TenantID:   tenantID,
		TreeHash:   treeHash,
		ParentHash: parentHash,
		Author:     author,
		Message:    message,
		CreatedAt:  now.UTC(),
	}, nil
}

// IsGenesis reports whether this is the first commit of its lineage.
func (c *Commit) IsGenesis() bool {
	return c.ParentHash == ""
}

// Branch is a named, mutable pointer to the latest commit in a lineage.
// Names are unique per tenant and compared case-insensitively for routing.
type Branch struct {
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	HeadCommit  string    `json:"head_commit"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewBranch creates a branch starting at head (a commit hash, or GenesisHead
// for an empty lineage).
func NewBranch(tenantID, name, head string, now time.Time) (*Branch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("branch name is required")
	}
	if head == "" {
		head = GenesisHead
	}
	return &Branch{
		TenantID:   tenantID,
		Name:       name,
		HeadCommit: head,
		CreatedAt:  now.UTC(),
	}, nil
}

// IsEmpty reports whether the branch has no commits yet.
func (b *Branch) IsEmpty() bool {
	return b.HeadCommit == GenesisHead || b.HeadCommit == ""
}

// SameName compares branch names the way the routing advisor does:
// case-insensitively.
func SameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

// CommitResult is returned by a successful commit operation.
type CommitResult struct {
	CommitHash string `json:"commit_hash"`
	BlobHash   string `json:"blob_hash"`
	TreeHash   string `json:"tree_hash"`
	Branch     string `json:"branch"`
	Message    string `json:"message"`
}

// Tag is a label attached to a blob at commit time. Duplicate attachment of
// the same (tenant, blob, tag) triple is a no-op.
type Tag struct {
	TenantID  string    `json:"tenant_id"`
	BlobHash  string    `json:"blob_hash"`
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}
