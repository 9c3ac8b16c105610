package storage

import (
	"context"
	"time"

	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// ObjectStore persists the content-addressable object graph: blobs, tree
// entries and commits. Blobs are write-once; commits are immutable; the only
// mutable object is a branch head, which lives in BranchStore.
type ObjectStore interface {
	// PutBlob inserts a blob keyed by its content hash. Re-inserting
	// identical content is a no-op success, never an error.
	PutBlob(ctx context.Context, blob *types.Blob) error

	// GetBlob retrieves a blob by hash. Returns ErrNotFound if absent.
	GetBlob(ctx context.Context, tenantID, blobHash string) (*types.Blob, error)

	// SetBlobEmbedding attaches (or replaces) the embedding vector for a
	// blob. Returns ErrNotFound if the blob does not exist.
	SetBlobEmbedding(ctx context.Context, tenantID, blobHash string, embedding []float32) error

	// AppendCommit persists one commit unit — tree entry, commit row and
	// tags — in a single transaction. The branch head is NOT touched here;
	// callers advance it afterwards via BranchStore.AdvanceHead, so a crash
	// between the two leaves only a harmless orphaned commit.
	AppendCommit(ctx context.Context, commit *types.Commit, entry *types.TreeEntry, tags []string) error

	// GetCommit retrieves a commit by hash. Returns ErrNotFound if absent.
	GetCommit(ctx context.Context, tenantID, commitHash string) (*types.Commit, error)

	// TreeEmbeddings returns the distinct non-nil blob embeddings reachable
	// through the given tree hashes. Blobs without embeddings are omitted.
	TreeEmbeddings(ctx context.Context, tenantID string, treeHashes []string) ([][]float32, error)

	// FindBlobsByTag returns blobs carrying the given tag, newest first.
	FindBlobsByTag(ctx context.Context, tenantID, tag string, limit int) ([]*types.Blob, error)
}

// BranchStore manages the mutable branch pointers.
type BranchStore interface {
	// CreateBranch inserts a branch. Returns ErrConflict when the
	// tenant-scoped name already exists.
	CreateBranch(ctx context.Context, branch *types.Branch) error

	// GetBranch retrieves a branch by name. Returns ErrNotFound if absent.
	GetBranch(ctx context.Context, tenantID, name string) (*types.Branch, error)

	// ListBranches returns all branches for a tenant, ordered by name.
	ListBranches(ctx context.Context, tenantID string) ([]*types.Branch, error)

	// AdvanceHead moves a branch head from oldHead to newHead as a single
	// compare-and-swap. Returns ErrConflict when the head no longer equals
	// oldHead (a concurrent commit won), ErrNotFound when the branch is
	// missing.
	AdvanceHead(ctx context.Context, tenantID, name, oldHead, newHead string) error
}

// FingerprintStore caches the derived per-branch centroids.
type FingerprintStore interface {
	// UpsertFingerprint inserts or replaces a branch centroid.
	UpsertFingerprint(ctx context.Context, fp *types.Fingerprint) error

	// GetFingerprints returns every fingerprint with a non-nil centroid for
	// the tenant, in the store's natural row order.
	GetFingerprints(ctx context.Context, tenantID string) ([]*types.Fingerprint, error)

	// ListFingerprintSummaries returns fingerprint metadata (no centroid
	// payload) ordered by contributing commit count descending.
	ListFingerprintSummaries(ctx context.Context, tenantID string) ([]*types.Fingerprint, error)
}

// TrailStore persists trails and performs the per-row atomic updates the
// decay engine relies on. A traversal and a decay sweep racing on the same
// trail must both use these guarded writes, never blind overwrites.
type TrailStore interface {
	// InsertTrail creates a new trail. Returns ErrConflict when a trail for
	// the same (source, target) pair already exists.
	InsertTrail(ctx context.Context, trail *types.Trail) error

	// GetTrail fetches a trail by its (source, target) pair.
	GetTrail(ctx context.Context, tenantID, sourceBlob, targetBlob string) (*types.Trail, error)

	// GetTrailByID fetches a trail by ID.
	GetTrailByID(ctx context.Context, tenantID, trailID string) (*types.Trail, error)

	// ReinforceTrail atomically applies a traversal: strength increases by
	// boost (capped at maxStrength), state resets to ACTIVE, the traversal
	// count increments and last_traversed_at moves to now. The whole
	// read-modify-write happens in one statement so it cannot race with a
	// sweep. Returns the updated trail, or ErrNotFound.
	ReinforceTrail(ctx context.Context, tenantID, trailID string, boost, maxStrength float64, now time.Time) (*types.Trail, error)

	// ApplyDecay writes a sweep result for one trail, guarded by the
	// last_traversed_at value the sweep observed. If a traversal landed in
	// between, no row matches and ErrConflict is returned — the traversal
	// wins and the sweep moves on.
	ApplyDecay(ctx context.Context, tenantID, trailID string, newStrength float64, newState string, observedTraversal time.Time) error

	// ResurrectTrail atomically doubles strength and forces state back to
	// ACTIVE, from any state including ARCHIVED. Returns the updated trail.
	ResurrectTrail(ctx context.Context, tenantID, trailID string, now time.Time) (*types.Trail, error)

	// ListTrails returns trails matching the filter. Default order is
	// strength descending.
	ListTrails(ctx context.Context, tenantID string, filter TrailFilter) ([]*types.Trail, error)

	// TrailHealth aggregates counts and strength per lifecycle state.
	TrailHealth(ctx context.Context, tenantID string) (*types.TrailHealth, error)
}

// LinkStore persists the typed cross-references between blobs.
type LinkStore interface {
	// CreateLink inserts a link. Returns ErrConflict when the ordered
	// (source, target) pair is already linked.
	CreateLink(ctx context.Context, link *types.Link) error

	// ListLinks returns links matching the filter, newest first.
	ListLinks(ctx context.Context, tenantID string, filter LinkFilter) ([]*types.Link, error)
}

// Store composes every persistence concern a full Boswell deployment needs.
// Both the PostgreSQL and SQLite backends satisfy it.
type Store interface {
	ObjectStore
	BranchStore
	FingerprintStore
	TrailStore
	LinkStore

	// Close releases the underlying database resources.
	Close() error
}
