package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stevekrontz-dev/boswell/internal/storage"
	"github.com/stevekrontz-dev/boswell/pkg/types"
)

func TestCreateLinkAndDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l, err := types.NewLink(testTenant, "a", "b", "work", "research", types.LinkCausal, 0.8, "b follows a", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateLink(ctx, l))

	// Same ordered pair is rejected, regardless of type.
	dup, err := types.NewLink(testTenant, "a", "b", "work", "research", types.LinkElaboration, 1, "", time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, s.CreateLink(ctx, dup), storage.ErrConflict)

	// The reverse pair is distinct.
	rev, err := types.NewLink(testTenant, "b", "a", "research", "work", types.LinkResonance, 1, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateLink(ctx, rev))
}

func TestListLinksFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	mk := func(src, dst, srcBranch, dstBranch, lt string) {
		l, err := types.NewLink(testTenant, src, dst, srcBranch, dstBranch, lt, 1, "", now)
		require.NoError(t, err)
		require.NoError(t, s.CreateLink(ctx, l))
	}
	mk("a", "b", "work", "research", types.LinkCausal)
	mk("b", "c", "research", "family", types.LinkContradiction)
	mk("c", "a", "family", "work", types.LinkCausal)

	byBlob, err := s.ListLinks(ctx, testTenant, storage.LinkFilter{Blob: "b"})
	require.NoError(t, err)
	require.Len(t, byBlob, 2)

	byBranch, err := s.ListLinks(ctx, testTenant, storage.LinkFilter{Branch: "family"})
	require.NoError(t, err)
	require.Len(t, byBranch, 2)

	byType, err := s.ListLinks(ctx, testTenant, storage.LinkFilter{LinkType: types.LinkCausal})
	require.NoError(t, err)
	require.Len(t, byType, 2)

	all, err := s.ListLinks(ctx, testTenant, storage.LinkFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, all, 2)
}
