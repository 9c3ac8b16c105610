package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevekrontz-dev/boswell/pkg/types"
)

func TestComputeCentroidMeansEmbeddings(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{byText: map[string][]float32{
		"alpha": {1, 0},
		"beta":  {0, 1},
	}}
	repo := newTestRepository(t, store, embedder)
	fingerprints := NewFingerprints(store, store, store)
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	for _, content := range []string{"alpha", "beta"} {
		_, _, err := repo.Commit(ctx, CommitRequest{
			TenantID: testTenant, Branch: "work", Content: content, Message: content,
		})
		require.NoError(t, err)
	}

	centroid, count, err := fingerprints.ComputeCentroid(ctx, testTenant, "work")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.InDelta(t, 0.5, float64(centroid[0]), 1e-6)
	require.InDelta(t, 0.5, float64(centroid[1]), 1e-6)
}

func TestComputeCentroidEmptyBranch(t *testing.T) {
	store := newTestStore(t)
	fingerprints := NewFingerprints(store, store, store)
	mustCreateBranch(t, store, "empty")

	centroid, count, err := fingerprints.ComputeCentroid(context.Background(), testTenant, "empty")
	require.NoError(t, err)
	require.Nil(t, centroid)
	require.Equal(t, 0, count)
}

func TestBootstrapComputesAndSkips(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{vec: []float32{0.3, 0.7}}
	repo := newTestRepository(t, store, embedder)
	fingerprints := NewFingerprints(store, store, store)
	ctx := context.Background()

	mustCreateBranch(t, store, "embedded")
	mustCreateBranch(t, store, "bare")

	_, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "embedded", Content: "x", Message: "m",
	})
	require.NoError(t, err)

	results, err := fingerprints.Bootstrap(ctx, testTenant, time.Now())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byBranch := map[string]types.BootstrapResult{}
	for _, r := range results {
		byBranch[r.Branch] = r
	}
	require.Equal(t, "skipped_no_embeddings", byBranch["bare"].Status)
	require.Equal(t, 0, byBranch["bare"].CommitsWithEmbedding)
	require.Equal(t, "computed", byBranch["embedded"].Status)
	require.Equal(t, 1, byBranch["embedded"].CommitsWithEmbedding)

	// Only the embedded branch got a fingerprint stored.
	stored, err := store.GetFingerprints(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "embedded", stored[0].BranchName)
}

func TestScoreSortedNonIncreasing(t *testing.T) {
	store := newTestStore(t)
	fingerprints := NewFingerprints(store, store, store)
	ctx := context.Background()
	now := time.Now()

	for name, centroid := range map[string][]float32{
		"research": {1, 0},
		"family":   {0, 1},
		"mixed":    {0.7, 0.7},
	} {
		require.NoError(t, store.UpsertFingerprint(ctx, &types.Fingerprint{
			TenantID: testTenant, BranchName: name,
			Centroid: centroid, CommitCount: 1, LastUpdated: now,
		}))
	}

	scores, err := fingerprints.Score(ctx, testTenant, []float32{1, 0})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	for i := 1; i < len(scores); i++ {
		require.GreaterOrEqual(t, scores[i-1].Similarity, scores[i].Similarity)
	}
	require.Equal(t, "research", scores[0].Branch)
	require.InDelta(t, 1.0, scores[0].Similarity, 1e-6)
}

func TestScoreNoFingerprints(t *testing.T) {
	store := newTestStore(t)
	fingerprints := NewFingerprints(store, store, store)

	scores, err := fingerprints.Score(context.Background(), testTenant, []float32{1, 0})
	require.NoError(t, err)
	require.Empty(t, scores)
}

func TestListOrderedByCommitCount(t *testing.T) {
	store := newTestStore(t)
	fingerprints := NewFingerprints(store, store, store)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.UpsertFingerprint(ctx, &types.Fingerprint{
		TenantID: testTenant, BranchName: "small", Centroid: []float32{1}, CommitCount: 2, LastUpdated: now,
	}))
	require.NoError(t, store.UpsertFingerprint(ctx, &types.Fingerprint{
		TenantID: testTenant, BranchName: "big", Centroid: []float32{1}, CommitCount: 9, LastUpdated: now,
	}))

	list, err := fingerprints.List(ctx, testTenant)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "big", list[0].BranchName)
}

func TestBootstrapUnknownTenantIsEmpty(t *testing.T) {
	store := newTestStore(t)
	fingerprints := NewFingerprints(store, store, store)

	results, err := fingerprints.Bootstrap(context.Background(), "00000000-0000-0000-0000-00000000dead", time.Now())
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
	require.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{0, 0}))
}
