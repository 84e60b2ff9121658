package cachestate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/university-rankings/internal/clock/system"
	"github.com/JakeFAU/university-rankings/internal/ranking"
	"github.com/JakeFAU/university-rankings/internal/storage/memory"
)

func newTracker(t *testing.T, codes ...string) (*Tracker, *memory.Store, *system.Manual) {
	t.Helper()
	clock := system.NewManual(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	store := memory.New(clock)
	for _, code := range codes {
		_, _, err := store.EnsureSource(context.Background(), ranking.Source{
			Code: code, Name: code + " rankings", Region: ranking.RegionInternational,
		})
		require.NoError(t, err)
	}
	return NewTracker(store, clock), store, clock
}

func TestIsStale(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	old := now.Add(-25 * time.Hour)

	require.True(t, IsStale(nil, time.Hour, now))
	require.True(t, IsStale(&ranking.CacheState{}, time.Hour, now))
	require.False(t, IsStale(&ranking.CacheState{LastSuccessfulFetch: &recent}, 0, now))
	require.True(t, IsStale(&ranking.CacheState{LastSuccessfulFetch: &old}, 0, now))
	require.False(t, IsStale(&ranking.CacheState{LastSuccessfulFetch: &old}, 48*time.Hour, now))
}

func TestFormatAge(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0d 0h ago", FormatAge(0))
	require.Equal(t, "0d 0h ago", FormatAge(-time.Hour))
	require.Equal(t, "1d 2h ago", FormatAge(26*time.Hour+59*time.Minute))
	require.Equal(t, "3d 0h ago", FormatAge(72*time.Hour))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "short", Truncate("short", 100))
	require.Equal(t, "abc", Truncate("abcdef", 3))
	require.Equal(t, "héé", Truncate("hééllo", 3))
}

func TestMarkSuccessThenFailureKeepsLastSuccess(t *testing.T) {
	t.Parallel()

	tr, store, clock := newTracker(t, "qs")
	ctx := context.Background()

	state, err := tr.Begin(ctx, "qs")
	require.NoError(t, err)
	require.Equal(t, ranking.StatusPending, state.Status)

	state, err = tr.MarkSuccess(ctx, state, 42)
	require.NoError(t, err)
	firstSuccess := *state.LastSuccessfulFetch

	clock.Advance(2 * time.Hour)
	state, err = tr.MarkFailed(ctx, state, "fetch https://example.com: timed out")
	require.NoError(t, err)

	got, err := store.GetCacheState(ctx, "qs")
	require.NoError(t, err)
	require.Equal(t, ranking.StatusFailed, got.Status)
	require.Equal(t, firstSuccess, *got.LastSuccessfulFetch)
	require.Equal(t, clock.Now(), *got.LastFetchTime)
	require.Equal(t, 42, got.RecordsFetched)
	require.Contains(t, got.ErrorMessage, "timed out")

	clock.Advance(time.Hour)
	_, err = tr.MarkSuccess(ctx, state, 7)
	require.NoError(t, err)
	got, err = store.GetCacheState(ctx, "qs")
	require.NoError(t, err)
	require.Equal(t, ranking.StatusSuccess, got.Status)
	require.Empty(t, got.ErrorMessage)
	require.Equal(t, 7, got.RecordsFetched)
	require.Equal(t, clock.Now(), *got.LastSuccessfulFetch)
}

func TestStatusAndStaleReasons(t *testing.T) {
	t.Parallel()

	tr, _, clock := newTracker(t, "qs", "arwu", "forbes", "niche")
	ctx := context.Background()

	// qs: fresh success.
	qs, err := tr.Begin(ctx, "qs")
	require.NoError(t, err)
	_, err = tr.MarkSuccess(ctx, qs, 10)
	require.NoError(t, err)

	// arwu: attempted, never succeeded.
	arwu, err := tr.Begin(ctx, "arwu")
	require.NoError(t, err)
	_, err = tr.MarkFailed(ctx, arwu, "no data returned")
	require.NoError(t, err)

	// forbes: succeeded long ago.
	clock.Advance(-50 * time.Hour)
	forbes, err := tr.Begin(ctx, "forbes")
	require.NoError(t, err)
	_, err = tr.MarkSuccess(ctx, forbes, 3)
	require.NoError(t, err)
	clock.Advance(50 * time.Hour)

	statuses, err := tr.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 4)
	require.False(t, statuses[0].Stale)
	require.Zero(t, statuses[0].Age)
	require.True(t, statuses[1].Stale)
	require.Equal(t, 50*time.Hour, statuses[2].Age)
	require.Nil(t, statuses[3].State)

	stale, err := tr.Stale(ctx)
	require.NoError(t, err)
	require.Equal(t, []StaleSource{
		{Code: "arwu", Name: "arwu rankings", Reason: ReasonNeverFetched},
		{Code: "forbes", Name: "forbes rankings", Reason: "last fetch 2d 2h ago"},
		{Code: "niche", Name: "niche rankings", Reason: ReasonNoCacheData},
	}, stale)
}

func TestStatusDoesNotCreateRows(t *testing.T) {
	t.Parallel()

	tr, store, _ := newTracker(t, "qs")
	_, err := tr.Status(context.Background())
	require.NoError(t, err)
	_, err = store.GetCacheState(context.Background(), "qs")
	require.ErrorIs(t, err, ranking.ErrNotFound)
}
