package ranking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawEntryValidate(t *testing.T) {
	t.Parallel()

	valid := RawEntry{InstitutionName: "MIT", Country: "USA", Rank: 1, Score: Float(100)}
	require.NoError(t, valid.Validate())

	cases := map[string]RawEntry{
		"blank name":     {InstitutionName: "  ", Rank: 1},
		"zero rank":      {InstitutionName: "MIT", Rank: 0},
		"score too high": {InstitutionName: "MIT", Rank: 1, Score: Float(100.5)},
		"negative score": {InstitutionName: "MIT", Rank: 1, Score: Float(-1)},
		"bad metric":     {InstitutionName: "MIT", Rank: 1, Metrics: map[Metric]float64{"vibes": 10}},
		"metric range":   {InstitutionName: "MIT", Rank: 1, Metrics: map[Metric]float64{MetricResearchImpact: 101}},
	}
	for name, entry := range cases {
		entry := entry
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.Error(t, entry.Validate())
		})
	}
}

func TestRawEntryValidateAllowsUnknownRankAndNilScore(t *testing.T) {
	t.Parallel()

	entry := RawEntry{InstitutionName: "Somewhere", Rank: UnknownRank}
	require.NoError(t, entry.Validate())
}

func TestParseRegion(t *testing.T) {
	t.Parallel()

	r, err := ParseRegion("american")
	require.NoError(t, err)
	require.Equal(t, RegionAmerican, r)

	r, err = ParseRegion(" INTERNATIONAL ")
	require.NoError(t, err)
	require.Equal(t, RegionInternational, r)

	_, err = ParseRegion("europe")
	require.Error(t, err)
}

func TestMetricValid(t *testing.T) {
	t.Parallel()

	for _, m := range Metrics {
		require.True(t, m.Valid(), m)
	}
	require.False(t, Metric("overall").Valid())
}
