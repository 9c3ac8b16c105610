package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

// maxHistoryWalk bounds the parent-chain traversal so a corrupted chain with
// a cycle cannot loop forever.
const maxHistoryWalk = 100000

// Fingerprints computes and scores branch centroids. A centroid is a cache
// of derived state: it is recomputed wholesale from the branch's full
// history on bootstrap and is allowed to go stale between runs.
type Fingerprints struct {
	objects  storage.ObjectStore
	branches storage.BranchStore
	store    storage.FingerprintStore
}

// NewFingerprints builds the fingerprint engine.
func NewFingerprints(objects storage.ObjectStore, branches storage.BranchStore, store storage.FingerprintStore) *Fingerprints {
	return &Fingerprints{objects: objects, branches: branches, store: store}
}

// ComputeCentroid walks the branch's full commit history, collects every
// blob embedding reachable through tree entries, and returns the
// element-wise mean. A branch with no embedded commits returns a nil
// centroid and zero count — unrouteable, not an error.
func (f *Fingerprints) ComputeCentroid(ctx context.Context, tenantID, branchName string) ([]float32, int, error) {
	branch, err := f.branches.GetBranch(ctx, tenantID, branchName)
	if err != nil {
		return nil, 0, err
	}
	if branch.IsEmpty() {
		return nil, 0, nil
	}

	var treeHashes []string
	hash := branch.HeadCommit
	for steps := 0; hash != "" && steps < maxHistoryWalk; steps++ {
		commit, err := f.objects.GetCommit(ctx, tenantID, hash)
		if errors.Is(err, storage.ErrNotFound) {
			// Broken chain: use what we have rather than failing.
			log.Printf("engine: commit chain for branch %s broken at %s, centroid uses partial history", branchName, hash)
			break
		}
		if err != nil {
			return nil, 0, err
		}
		treeHashes = append(treeHashes, commit.TreeHash)
		hash = commit.ParentHash
	}
	if len(treeHashes) == 0 {
		return nil, 0, nil
	}

	embeddings, err := f.objects.TreeEmbeddings(ctx, tenantID, treeHashes)
	if err != nil {
		return nil, 0, err
	}
	return meanVector(embeddings), len(embeddings), nil
}

// Bootstrap recomputes and upserts the centroid of every branch belonging
// to the tenant. Branches without embeddings are reported as skipped, never
// as failures.
func (f *Fingerprints) Bootstrap(ctx context.Context, tenantID string, now time.Time) ([]types.BootstrapResult, error) {
	branches, err := f.branches.ListBranches(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("fingerprint bootstrap failed to list branches: %w", err)
	}

	results := make([]types.BootstrapResult, 0, len(branches))
	for _, branch := range branches {
		centroid, count, err := f.ComputeCentroid(ctx, tenantID, branch.Name)
		if err != nil {
			return nil, fmt.Errorf("fingerprint bootstrap failed on branch %s: %w", branch.Name, err)
		}
		if centroid == nil {
			results = append(results, types.BootstrapResult{
				Branch: branch.Name,
				Status: "skipped_no_embeddings",
			})
			continue
		}
		err = f.store.UpsertFingerprint(ctx, &types.Fingerprint{
			TenantID:    tenantID,
			BranchName:  branch.Name,
			Centroid:    centroid,
			CommitCount: count,
			LastUpdated: now.UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("fingerprint upsert failed for branch %s: %w", branch.Name, err)
		}
		results = append(results, types.BootstrapResult{
			Branch:               branch.Name,
			CommitsWithEmbedding: count,
			Status:               "computed",
		})
	}
	return results, nil
}

// Score ranks every fingerprinted branch by cosine similarity to the
// candidate embedding, non-increasing. Equal scores keep the store's
// natural row order.
func (f *Fingerprints) Score(ctx context.Context, tenantID string, embedding []float32) ([]types.BranchScore, error) {
	fingerprints, err := f.store.GetFingerprints(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	scores := make([]types.BranchScore, 0, len(fingerprints))
	for _, fp := range fingerprints {
		scores = append(scores, types.BranchScore{
			Branch:      fp.BranchName,
			Similarity:  cosineSimilarity(embedding, fp.Centroid),
			CommitCount: fp.CommitCount,
		})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Similarity > scores[j].Similarity
	})
	return scores, nil
}

// List returns per-branch fingerprint summaries ordered by contributing
// commit count descending.
func (f *Fingerprints) List(ctx context.Context, tenantID string) ([]*types.Fingerprint, error) {
	return f.store.ListFingerprintSummaries(ctx, tenantID)
}

// meanVector computes the element-wise arithmetic mean of the vectors.
// Vectors shorter than the first are padded conceptually with zeros by
// ignoring missing positions; in practice all embeddings share one model's
// dimensionality.
func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sums := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			sums[i] += float64(v[i])
		}
	}
	mean := make([]float32, dim)
	for i, s := range sums {
		mean[i] = float32(s / float64(len(vectors)))
	}
	return mean
}

// cosineSimilarity computes dot(a,b) / (||a|| * ||b||). Mismatched lengths
// or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
