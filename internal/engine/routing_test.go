package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevekrontz-dev/boswell/internal/storage/sqlite"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

func seedFingerprints(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	for name, centroid := range map[string][]float32{
		"research": {1, 0},
		"family":   {0, 1},
	} {
		require.NoError(t, store.UpsertFingerprint(ctx, &types.Fingerprint{
			TenantID: testTenant, BranchName: name,
			Centroid: centroid, CommitCount: 1, LastUpdated: now,
		}))
	}
}

func TestValidateFlagsMismatch(t *testing.T) {
	store := newTestStore(t)
	seedFingerprints(t, store)

	// The candidate embedding points squarely at "research".
	embedder := &fakeEmbedder{vec: []float32{0.42, 0}}
	router := NewRouter(NewFingerprints(store, store, store), embedder, 0)

	suggestion, err := router.Validate(context.Background(), testTenant, "family", "quantum annealing notes")
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	require.True(t, suggestion.IsMismatch)
	require.Equal(t, "research", suggestion.SuggestedBranch)
	require.Equal(t, "family", suggestion.RequestedBranch)
	require.InDelta(t, 1.0, suggestion.Confidence, 1e-6)
	require.NotEmpty(t, suggestion.Message)
	require.NotEmpty(t, suggestion.AllScores)
	require.Greater(t, suggestion.ConfidenceGap, 0.0)
}

func TestValidateMatchIsNotMismatch(t *testing.T) {
	store := newTestStore(t)
	seedFingerprints(t, store)

	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	router := NewRouter(NewFingerprints(store, store, store), embedder, 0)

	// Branch names compare case-insensitively.
	suggestion, err := router.Validate(context.Background(), testTenant, "RESEARCH", "notes")
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	require.False(t, suggestion.IsMismatch)
	require.Empty(t, suggestion.Message)
}

func TestValidateSingleFingerprintHasZeroGap(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertFingerprint(context.Background(), &types.Fingerprint{
		TenantID: testTenant, BranchName: "research",
		Centroid: []float32{1, 0}, CommitCount: 1, LastUpdated: time.Now(),
	}))

	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	router := NewRouter(NewFingerprints(store, store, store), embedder, 0)

	// With no runner-up there is nothing to measure a gap against.
	suggestion, err := router.Validate(context.Background(), testTenant, "research", "notes")
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	require.InDelta(t, 1.0, suggestion.Confidence, 1e-6)
	require.Zero(t, suggestion.ConfidenceGap)
}

func TestSuggestBelowThresholdIsSilent(t *testing.T) {
	store := newTestStore(t)
	seedFingerprints(t, store)

	// Best similarity (~0.71) stays under the raised threshold, so the
	// mismatch is never raised.
	embedder := &fakeEmbedder{vec: []float32{0.7, 0.7}}
	router := NewRouter(NewFingerprints(store, store, store), embedder, 0.999)

	suggestion, err := router.Suggest(context.Background(), testTenant, "family", "notes")
	require.NoError(t, err)
	require.Nil(t, suggestion)
}

func TestSuggestFailsOpenOnEmbeddingError(t *testing.T) {
	store := newTestStore(t)
	seedFingerprints(t, store)

	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	router := NewRouter(NewFingerprints(store, store, store), embedder, 0)

	suggestion, err := router.Suggest(context.Background(), testTenant, "family", "notes")
	require.NoError(t, err)
	require.Nil(t, suggestion)

	suggestion, err = router.Validate(context.Background(), testTenant, "family", "notes")
	require.NoError(t, err)
	require.Nil(t, suggestion)
}

func TestSuggestNoFingerprints(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	router := NewRouter(NewFingerprints(store, store, store), embedder, 0)

	suggestion, err := router.Suggest(context.Background(), testTenant, "anything", "notes")
	require.NoError(t, err)
	require.Nil(t, suggestion)
}

func TestCommitCarriesRoutingSuggestion(t *testing.T) {
	store := newTestStore(t)
	seedFingerprints(t, store)
	embedder := &fakeEmbedder{vec: []float32{0.42, 0}}
	repo := newTestRepository(t, store, embedder)
	ctx := context.Background()
	mustCreateBranch(t, store, "family")

	// The commit itself succeeds on the requested branch; the mismatch is
	// advisory only.
	result, suggestion, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "family", Content: "lab results", Message: "m",
	})
	require.NoError(t, err)
	require.NotNil(t, suggestion)
	require.Equal(t, "research", suggestion.SuggestedBranch)

	branch, err := store.GetBranch(ctx, testTenant, "family")
	require.NoError(t, err)
	require.Equal(t, result.CommitHash, branch.HeadCommit)
}

func TestForceBranchSuppressesSuggestion(t *testing.T) {
	store := newTestStore(t)
	seedFingerprints(t, store)
	embedder := &fakeEmbedder{vec: []float32{0.42, 0}}
	repo := newTestRepository(t, store, embedder)
	mustCreateBranch(t, store, "family")

	_, suggestion, err := repo.Commit(context.Background(), CommitRequest{
		TenantID: testTenant, Branch: "family", Content: "lab results", Message: "m",
		ForceBranch: true,
	})
	require.NoError(t, err)
	require.Nil(t, suggestion)
}
