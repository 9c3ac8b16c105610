package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/stevekrontz-dev/boswell/internal/embedding"
	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// maxCommitRetries bounds how many times a commit is recomputed after losing
// the branch-head race.
const maxCommitRetries = 3

// blobCacheMaxBytes sizes the in-process read cache for blob content.
const blobCacheMaxBytes = 64 << 20

// Repository is the commit-graph engine: content-addressed blob storage,
// tree/commit linkage, branch heads and history walks. Writes are atomic
// from the caller's point of view; the blob and commit rows land before the
// head moves, so a crash mid-commit leaves only a harmless orphan.
type Repository struct {
	store    storage.Store
	embedder embedding.Provider
	router   *Router
	cache    *ristretto.Cache
}

// NewRepository builds the repository engine. router may be nil to disable
// routing suggestions on the commit path.
func NewRepository(store storage.Store, embedder embedding.Provider, router *Router) (*Repository, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100000,
		MaxCost:     blobCacheMaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create blob cache: %w", err)
	}
	return &Repository{
		store:    store,
		embedder: embedder,
		router:   router,
		cache:    cache,
	}, nil
}

// CommitRequest carries one memory write.
type CommitRequest struct {
	TenantID string
	Branch   string
	// Content is a plain string or any JSON-serializable value; structured
	// content is canonicalized before hashing.
	Content     any
	ContentType string
	Message     string
	Author      string
	Tags        []string
	// ForceBranch suppresses the routing check entirely.
	ForceBranch bool
}

// Commit appends one memory to a branch: blob first, then tree entry,
// commit row and tags in one transaction, then the branch-head swap. Losing
// the head race retries against the fresh head up to maxCommitRetries times
// before surfacing the conflict. The returned routing suggestion, when
// non-nil, is advisory only.
func (r *Repository) Commit(ctx context.Context, req CommitRequest) (*types.CommitResult, *types.RoutingSuggestion, error) {
	canonical, err := types.CanonicalContent(req.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if req.Branch == "" {
		return nil, nil, fmt.Errorf("%w: branch is required", storage.ErrInvalidInput)
	}

	now := time.Now()
	blob, err := types.NewBlob(req.TenantID, canonical, req.ContentType, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if err := r.store.PutBlob(ctx, blob); err != nil {
		return nil, nil, fmt.Errorf("failed to store blob: %w", err)
	}

	var commit *types.Commit
	var entry *types.TreeEntry
	for attempt := 0; ; attempt++ {
		branch, err := r.store.GetBranch(ctx, req.TenantID, req.Branch)
		if err != nil {
			return nil, nil, err
		}
		parent := ""
		if !branch.IsEmpty() {
			parent = branch.HeadCommit
		}

		attemptTime := time.Now()
		entry = types.NewTreeEntry(req.TenantID, req.Branch, blob.Hash, req.Message, blob.ContentType, attemptTime)
		commit, err = types.NewCommit(req.TenantID, entry.TreeHash, parent, req.Author, req.Message, attemptTime)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		if err := r.store.AppendCommit(ctx, commit, entry, req.Tags); err != nil {
			return nil, nil, fmt.Errorf("failed to append commit: %w", err)
		}

		err = r.store.AdvanceHead(ctx, req.TenantID, req.Branch, branch.HeadCommit, commit.Hash)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrConflict) && attempt < maxCommitRetries {
			log.Printf("engine: branch %s head moved during commit, retrying (%d)", req.Branch, attempt+1)
			continue
		}
		return nil, nil, err
	}

	// Intake embedding: generated inline, bounded by the provider's own
	// timeout, and fail-open. A blob without an embedding simply cannot
	// contribute to fingerprints until a later run embeds it.
	var suggestion *types.RoutingSuggestion
	vector, err := r.embedder.Embed(ctx, canonical)
	if err != nil {
		log.Printf("engine: embedding unavailable, blob %s stored without embedding: %v", blob.Hash, err)
	} else {
		if err := r.store.SetBlobEmbedding(ctx, req.TenantID, blob.Hash, vector); err != nil {
			log.Printf("engine: failed to store embedding for blob %s: %v", blob.Hash, err)
		}
		if r.router != nil && !req.ForceBranch {
			suggestion, err = r.router.SuggestFor(ctx, req.TenantID, req.Branch, vector)
			if err != nil {
				log.Printf("engine: routing check failed for branch %s: %v", req.Branch, err)
				suggestion = nil
			}
		}
	}

	return &types.CommitResult{
		CommitHash: commit.Hash,
		BlobHash:   blob.Hash,
		TreeHash:   entry.TreeHash,
		Branch:     req.Branch,
		Message:    req.Message,
	}, suggestion, nil
}

// Log walks a branch's history from its head, most recent first, up to
// limit commits. A missing parent truncates the walk and returns the
// partial history: a corrupted link must not make the whole chain
// unreadable.
func (r *Repository) Log(ctx context.Context, tenantID, branchName string, limit int) ([]*types.Commit, error) {
	branch, err := r.store.GetBranch(ctx, tenantID, branchName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	var commits []*types.Commit
	hash := branch.HeadCommit
	if branch.IsEmpty() {
		return commits, nil
	}
	for hash != "" && len(commits) < limit {
		commit, err := r.store.GetCommit(ctx, tenantID, hash)
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("engine: commit chain for branch %s broken at %s, returning partial history", branchName, hash)
			break
		}
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
		hash = commit.ParentHash
	}
	return commits, nil
}

// Checkout validates a branch exists and returns its metadata. Pure read.
func (r *Repository) Checkout(ctx context.Context, tenantID, branchName string) (*types.Branch, error) {
	return r.store.GetBranch(ctx, tenantID, branchName)
}

// ListBranches returns every branch for the tenant, ordered by name.
func (r *Repository) ListBranches(ctx context.Context, tenantID string) ([]*types.Branch, error) {
	return r.store.ListBranches(ctx, tenantID)
}

// CreateBranch creates a branch starting at from's current head. Only the
// pointer is copied: history is structurally shared. An empty from creates
// an empty branch at GENESIS.
func (r *Repository) CreateBranch(ctx context.Context, tenantID, name, from, description string) (*types.Branch, error) {
	head := types.GenesisHead
	if from != "" {
		source, err := r.store.GetBranch(ctx, tenantID, from)
		if err != nil {
			return nil, err
		}
		head = source.HeadCommit
	}
	branch, err := types.NewBranch(tenantID, name, head, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	branch.Description = description
	if err := r.store.CreateBranch(ctx, branch); err != nil {
		return nil, err
	}
	return branch, nil
}

// GetBlob fetches blob content through a read-through in-process cache.
func (r *Repository) GetBlob(ctx context.Context, tenantID, blobHash string) (*types.Blob, error) {
	key := tenantID + ":" + blobHash
	if cached, ok := r.cache.Get(key); ok {
		return cached.(*types.Blob), nil
	}
	blob, err := r.store.GetBlob(ctx, tenantID, blobHash)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, blob, int64(blob.ByteSize))
	return blob, nil
}

// FindByTag returns blobs carrying the tag, newest first.
func (r *Repository) FindByTag(ctx context.Context, tenantID, tag string, limit int) ([]*types.Blob, error) {
	return r.store.FindBlobsByTag(ctx, tenantID, tag, limit)
}
