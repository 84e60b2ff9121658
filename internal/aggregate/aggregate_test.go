package aggregate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/university-rankings/internal/ranking"
	"github.com/JakeFAU/university-rankings/internal/storage/memory"
)

func TestMean(t *testing.T) {
	t.Parallel()

	got := Mean([]*float64{ranking.Float(95), ranking.Float(90), nil, ranking.Float(85)})
	require.NotNil(t, got)
	require.Equal(t, 90.0, *got)

	require.Nil(t, Mean([]*float64{nil, nil}))
	require.Nil(t, Mean(nil))

	got = Mean([]*float64{ranking.Float(1), ranking.Float(2), ranking.Float(2)})
	require.Equal(t, 1.67, *got)
}

type fixture struct {
	store   *memory.Store
	mit     ranking.Institution
	harvard ranking.Institution
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New(nil)
	for _, src := range []ranking.Source{
		{Code: "qs", Region: ranking.RegionInternational},
		{Code: "arwu", Region: ranking.RegionInternational},
		{Code: "forbes", Region: ranking.RegionAmerican},
	} {
		_, _, err := s.EnsureSource(ctx, src)
		require.NoError(t, err)
	}
	mit, _, err := s.GetOrCreateInstitution(ctx, ranking.Institution{Name: "Massachusetts Institute of Technology"})
	require.NoError(t, err)
	harvard, _, err := s.GetOrCreateInstitution(ctx, ranking.Institution{Name: "Harvard University"})
	require.NoError(t, err)

	put := func(inst ranking.Institution, code string, rank int, score *float64) {
		_, _, err := s.UpsertEntry(ctx, ranking.EntryUpsert{
			Key:   ranking.EntryKey{InstitutionID: inst.ID, SourceCode: code, Year: 2025},
			Rank:  rank,
			Score: score,
		})
		require.NoError(t, err)
	}
	put(mit, "qs", 1, ranking.Float(100))
	put(mit, "arwu", 3, ranking.Float(90))
	put(mit, "forbes", 2, ranking.Float(70))
	put(harvard, "qs", 4, ranking.Float(96))
	put(harvard, "arwu", 1, nil)
	return fixture{store: s, mit: mit, harvard: harvard}
}

func TestCompositeScoreFiltersByRegion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	got, err := CompositeScore(ctx, f.store, f.mit.ID, ranking.RegionInternational)
	require.NoError(t, err)
	require.Equal(t, 95.0, *got)

	got, err = CompositeScore(ctx, f.store, f.mit.ID, ranking.RegionAmerican)
	require.NoError(t, err)
	require.Equal(t, 70.0, *got)

	got, err = CompositeScore(ctx, f.store, f.harvard.ID, ranking.RegionInternational)
	require.NoError(t, err)
	require.Equal(t, 96.0, *got)

	got, err = CompositeScore(ctx, f.store, f.harvard.ID, ranking.RegionAmerican)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCompositeScoreReflectsLiveEntries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.store.UpsertEntry(ctx, ranking.EntryUpsert{
		Key:   ranking.EntryKey{InstitutionID: f.harvard.ID, SourceCode: "arwu", Year: 2025},
		Rank:  1,
		Score: ranking.Float(100),
	})
	require.NoError(t, err)

	got, err := CompositeScore(ctx, f.store, f.harvard.ID, ranking.RegionInternational)
	require.NoError(t, err)
	require.Equal(t, 98.0, *got)
}

func TestLeaderboard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	board, err := Leaderboard(context.Background(), f.store, ranking.RegionInternational, 2025, 0)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, "Harvard University", board[0].Institution.Name)
	require.Equal(t, 96.0, board[0].Composite)
	require.Equal(t, 1, board[0].Sources)
	require.Equal(t, 95.0, board[1].Composite)

	board, err = Leaderboard(context.Background(), f.store, ranking.RegionInternational, 2025, 1)
	require.NoError(t, err)
	require.Len(t, board, 1)

	board, err = Leaderboard(context.Background(), f.store, ranking.RegionInternational, 2024, 0)
	require.NoError(t, err)
	require.Empty(t, board)
}

func TestForInstitution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	got, err := ForInstitution(context.Background(), f.store, "Massachusetts Institute of Technology")
	require.NoError(t, err)
	require.Equal(t, 95.0, *got.Scores[ranking.RegionInternational])
	require.Equal(t, 70.0, *got.Scores[ranking.RegionAmerican])
}

func TestForInstitutionSuggestsCloseNames(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := ForInstitution(context.Background(), f.store, "Massachusets Institute of Technology")
	require.ErrorIs(t, err, ranking.ErrNotFound)

	var nf *InstitutionNotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, []string{"Massachusetts Institute of Technology"}, nf.Suggestions)
	require.Contains(t, err.Error(), "did you mean")
}
