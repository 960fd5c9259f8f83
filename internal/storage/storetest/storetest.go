// Package storetest holds the behavioural suite every scroll.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TsaiLintung/paper-scroll/internal/scroll"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) scroll.Store

// Run exercises the full scroll.Store contract against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("settings missing then round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetSettings(ctx)
		require.True(t, errors.Is(err, scroll.ErrNotFound))

		want := scroll.DefaultSettings()
		want.Email = "me@example.org"
		want.Journals = append(want.Journals, scroll.Journal{Name: "jpe", ISSN: "0022-3808"})
		require.NoError(t, store.PutSettings(ctx, want))

		got, err := store.GetSettings(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("snapshots overwrite by key", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := scroll.JournalSnapshot{ISSN: "0002-8282", Name: "aer", Year: 2021,
			Items: []scroll.SnapshotItem{{DOI: "10.1/a"}}}
		second := scroll.JournalSnapshot{ISSN: "0002-8282", Name: "aer", Year: 2021,
			Items: []scroll.SnapshotItem{{DOI: "10.1/b"}, {DOI: "10.1/c"}}}
		other := scroll.JournalSnapshot{ISSN: "0022-3808", Name: "jpe", Year: 2020,
			Items: []scroll.SnapshotItem{{DOI: "10.2/z"}}}

		require.NoError(t, store.SaveSnapshot(ctx, first))
		require.NoError(t, store.SaveSnapshot(ctx, other))
		require.NoError(t, store.SaveSnapshot(ctx, second))

		snaps, err := store.ListSnapshots(ctx)
		require.NoError(t, err)
		require.Equal(t, []scroll.JournalSnapshot{second, other}, snaps)

		require.NoError(t, store.DeleteSnapshot(ctx, "aer-2021"))
		require.NoError(t, store.DeleteSnapshot(ctx, "missing-1999"))
		snaps, err = store.ListSnapshots(ctx)
		require.NoError(t, err)
		require.Equal(t, []scroll.JournalSnapshot{other}, snaps)
	})

	t.Run("status is a singleton", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetStatus(ctx)
		require.True(t, errors.Is(err, scroll.ErrNotFound))

		require.NoError(t, store.SaveStatus(ctx, scroll.Status{Message: "Fetching aer (2021)", Progress: 0}))
		require.NoError(t, store.SaveStatus(ctx, scroll.Status{Message: "All journals updated.", Progress: 1}))

		got, err := store.GetStatus(ctx)
		require.NoError(t, err)
		require.Equal(t, scroll.Status{Message: "All journals updated.", Progress: 1}, got)
	})

	t.Run("work cache keyed by normalized doi", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		work := scroll.Work{ID: "https://openalex.org/W1", DOI: "https://doi.org/10.1/a", DisplayName: "Cached"}
		require.NoError(t, store.CacheWork(ctx, "10.1/A", work))

		got, ok, err := store.GetCachedWork(ctx, "https://doi.org/10.1/a")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, work, got)

		_, ok, err = store.GetCachedWork(ctx, "10.1/missing")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("starred newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		older := scroll.StarredPaper{Paper: scroll.Paper{DOI: "https://doi.org/10.1/a", Title: "A"}, StarredAt: base}
		newer := scroll.StarredPaper{Paper: scroll.Paper{DOI: "https://doi.org/10.1/b", Title: "B"}, StarredAt: base.Add(time.Hour)}
		require.NoError(t, store.StarPaper(ctx, older))
		require.NoError(t, store.StarPaper(ctx, newer))

		got, err := store.ListStarred(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "B", got[0].Paper.Title)
		require.True(t, got[0].StarredAt.Equal(newer.StarredAt))

		one, err := store.GetStarred(ctx, "10.1/B")
		require.NoError(t, err)
		require.Equal(t, "B", one.Paper.Title)

		require.NoError(t, store.UnstarPaper(ctx, "10.1/B"))
		_, err = store.GetStarred(ctx, "https://doi.org/10.1/b")
		require.True(t, errors.Is(err, scroll.ErrNotFound))
		got, err = store.ListStarred(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "A", got[0].Paper.Title)
	})
}
