package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/internal/storage/sqlite"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

const testTenant = "00000000-0000-0000-0000-000000000001"

// fakeEmbedder returns a fixed vector, or fails when err is set.
type fakeEmbedder struct {
	vec    []float32
	err    error
	byText map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.byText[text]; ok {
		return v, nil
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Model() string { return "fake" }

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRepository(t *testing.T, store storage.Store, embedder *fakeEmbedder) *Repository {
	t.Helper()
	if embedder == nil {
		embedder = &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	}
	fingerprints := NewFingerprints(store, store, store)
	router := NewRouter(fingerprints, embedder, 0)
	repo, err := NewRepository(store, embedder, router)
	require.NoError(t, err)
	return repo
}

func mustCreateBranch(t *testing.T, store storage.Store, name string) {
	t.Helper()
	branch, err := types.NewBranch(testTenant, name, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateBranch(context.Background(), branch))
}

func TestCommitGenesis(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	result, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant,
		Branch:   "work",
		Content:  map[string]any{"note": "hello"},
		Message:  "first note",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.CommitHash)
	require.NotEmpty(t, result.BlobHash)
	require.NotEmpty(t, result.TreeHash)

	commit, err := store.GetCommit(ctx, testTenant, result.CommitHash)
	require.NoError(t, err)
	require.True(t, commit.IsGenesis())

	branch, err := store.GetBranch(ctx, testTenant, "work")
	require.NoError(t, err)
	require.Equal(t, result.CommitHash, branch.HeadCommit)
}

func TestCommitChains(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	first, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "work", Content: "one", Message: "m1",
	})
	require.NoError(t, err)

	second, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "work", Content: "two", Message: "m2",
	})
	require.NoError(t, err)

	commit, err := store.GetCommit(ctx, testTenant, second.CommitHash)
	require.NoError(t, err)
	require.Equal(t, first.CommitHash, commit.ParentHash)
}

func TestConcurrentCommitsStayLinear(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []string
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, _, err := repo.Commit(ctx, CommitRequest{
				TenantID: testTenant,
				Branch:   "work",
				Content:  fmt.Sprintf("note %d", i),
				Message:  fmt.Sprintf("m%d", i),
			})
			if errors.Is(err, storage.ErrConflict) {
				// Lost the head race more times than the retry budget
				// allows. Conflict is the contract for that, not a bug.
				return
			}
			require.NoError(t, err)
			mu.Lock()
			succeeded = append(succeeded, result.CommitHash)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	require.NotEmpty(t, succeeded)

	// Every winner is on the branch history, and the history is a single
	// chain: each commit's parent is the next one down, ending at genesis.
	history, err := repo.Log(ctx, testTenant, "work", writers)
	require.NoError(t, err)
	require.Len(t, history, len(succeeded))
	require.ElementsMatch(t, succeeded, commitHashes(history))
	for i, commit := range history {
		if i == len(history)-1 {
			require.True(t, commit.IsGenesis())
			continue
		}
		require.Equal(t, history[i+1].Hash, commit.ParentHash)
	}
}

func commitHashes(commits []*types.Commit) []string {
	hashes := make([]string, len(commits))
	for i, c := range commits {
		hashes[i] = c.Hash
	}
	return hashes
}

func TestCommitContentAddressing(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	// Identical structured content yields the same blob both times, even
	// though the commits differ.
	a, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "work",
		Content: map[string]any{"b": 2, "a": 1}, Message: "m1",
	})
	require.NoError(t, err)
	b, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "work",
		Content: map[string]any{"a": 1, "b": 2}, Message: "m2",
	})
	require.NoError(t, err)
	require.Equal(t, a.BlobHash, b.BlobHash)
	require.NotEqual(t, a.CommitHash, b.CommitHash)
}

func TestCommitUnknownBranch(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)

	_, _, err := repo.Commit(context.Background(), CommitRequest{
		TenantID: testTenant, Branch: "ghost", Content: "x", Message: "m",
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommitRejectsEmptyContent(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	mustCreateBranch(t, store, "work")

	_, _, err := repo.Commit(context.Background(), CommitRequest{
		TenantID: testTenant, Branch: "work", Content: nil, Message: "m",
	})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCommitSurvivesEmbeddingFailure(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, &fakeEmbedder{err: errors.New("service down")})
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	result, suggestion, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "work", Content: "still works", Message: "m",
	})
	require.NoError(t, err)
	require.Nil(t, suggestion)

	blob, err := store.GetBlob(ctx, testTenant, result.BlobHash)
	require.NoError(t, err)
	require.Nil(t, blob.Embedding)
}

func TestCommitStoresEmbedding(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, &fakeEmbedder{vec: []float32{0.5, 0.5}})
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	result, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "work", Content: "embed me", Message: "m",
	})
	require.NoError(t, err)

	blob, err := store.GetBlob(ctx, testTenant, result.BlobHash)
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.5}, blob.Embedding)
}

func TestLogOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	var hashes []string
	for _, msg := range []string{"m1", "m2", "m3"} {
		result, _, err := repo.Commit(ctx, CommitRequest{
			TenantID: testTenant, Branch: "work", Content: msg, Message: msg,
		})
		require.NoError(t, err)
		hashes = append(hashes, result.CommitHash)
	}

	commits, err := repo.Log(ctx, testTenant, "work", 10)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	// Most recent first.
	require.Equal(t, hashes[2], commits[0].Hash)
	require.Equal(t, hashes[0], commits[2].Hash)

	limited, err := repo.Log(ctx, testTenant, "work", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestLogEmptyBranch(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	mustCreateBranch(t, store, "empty")

	commits, err := repo.Log(context.Background(), testTenant, "empty", 10)
	require.NoError(t, err)
	require.Empty(t, commits)
}

func TestLogTruncatesBrokenChain(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()

	// A branch whose head points at a commit that was never stored: the
	// walk returns the partial (empty) history instead of failing.
	branch, err := types.NewBranch(testTenant, "broken", "deadbeef", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateBranch(ctx, branch))

	commits, err := repo.Log(ctx, testTenant, "broken", 10)
	require.NoError(t, err)
	require.Empty(t, commits)
}

func TestCreateBranchSharesHead(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()
	mustCreateBranch(t, store, "b1")

	result, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "b1", Content: "x", Message: "m",
	})
	require.NoError(t, err)

	b2, err := repo.CreateBranch(ctx, testTenant, "b2", "b1", "")
	require.NoError(t, err)
	require.Equal(t, result.CommitHash, b2.HeadCommit)

	// History is shared through the pointer, not copied.
	commits, err := repo.Log(ctx, testTenant, "b2", 10)
	require.NoError(t, err)
	require.Len(t, commits, 1)
}

func TestCreateBranchEmptyStart(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)

	branch, err := repo.CreateBranch(context.Background(), testTenant, "fresh", "", "scratch space")
	require.NoError(t, err)
	require.True(t, branch.IsEmpty())
}

func TestCreateBranchDuplicate(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()

	_, err := repo.CreateBranch(ctx, testTenant, "dup", "", "")
	require.NoError(t, err)
	_, err = repo.CreateBranch(ctx, testTenant, "dup", "", "")
	require.ErrorIs(t, err, storage.ErrConflict)
}

func TestGetBlobReadThrough(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	result, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "work", Content: "cached content", Message: "m",
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		blob, err := repo.GetBlob(ctx, testTenant, result.BlobHash)
		require.NoError(t, err)
		require.Equal(t, "cached content", blob.Content)
	}

	_, err = repo.GetBlob(ctx, testTenant, "no-such-blob")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommitAttachesTags(t *testing.T) {
	store := newTestStore(t)
	repo := newTestRepository(t, store, nil)
	ctx := context.Background()
	mustCreateBranch(t, store, "work")

	result, _, err := repo.Commit(ctx, CommitRequest{
		TenantID: testTenant, Branch: "work", Content: "tagged", Message: "m",
		Tags: []string{"golang", "memory"},
	})
	require.NoError(t, err)

	blobs, err := repo.FindByTag(ctx, testTenant, "golang", 10)
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	require.Equal(t, result.BlobHash, blobs[0].Hash)
}
