package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchRequiresASelection(t *testing.T) {
	t.Parallel()

	_, err := run(t, newTestFactory(t), "fetch")
	require.ErrorContains(t, err, "--source, --all or --init-only")
}

func TestFetchInitOnly(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t)
	out, err := run(t, factory, "fetch", "--init-only")
	require.NoError(t, err)
	require.Contains(t, out, "Registered 10 new ranking sources")

	out, err = run(t, factory, "fetch", "--init-only")
	require.NoError(t, err)
	require.Contains(t, out, "Registered 0 new ranking sources")
}

func TestFetchUnknownSource(t *testing.T) {
	t.Parallel()

	_, err := run(t, newTestFactory(t), "fetch", "--source", "nope")
	require.ErrorContains(t, err, `unknown source "nope"`)
	require.ErrorContains(t, err, "available:")
}

func TestFetchFailureIsReportedNotReturned(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t)
	out, err := run(t, factory, "fetch", "--source", "qs")
	require.NoError(t, err)
	require.Contains(t, out, "FAILED")
	require.Contains(t, strings.ToLower(out), "0 ok / 1 failed / 0 skipped")

	out, err = run(t, factory, "status")
	require.NoError(t, err)
	require.Contains(t, out, "FAILED")
	require.Contains(t, out, "Never")
}

func TestStatusAndStaleAfterInit(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t)
	out, err := run(t, factory, "status")
	require.NoError(t, err)
	require.Contains(t, out, "No ranking sources registered")

	out, err = run(t, factory, "stale")
	require.NoError(t, err)
	require.Contains(t, out, "All caches are up to date!")

	_, err = run(t, factory, "fetch", "--init-only")
	require.NoError(t, err)

	out, err = run(t, factory, "status")
	require.NoError(t, err)
	require.Contains(t, out, "No cache data")
	require.Contains(t, out, "QS World University Rankings")

	out, err = run(t, factory, "stale")
	require.NoError(t, err)
	require.Contains(t, out, "no cache data")
	require.Contains(t, out, "rankings fetch --source ")
	require.Contains(t, out, "rankings fetch --all")
}

func TestSeedThenComposite(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t)
	out, err := run(t, factory, "seed")
	require.NoError(t, err)
	require.Contains(t, out, "Seeded")

	out, err = run(t, factory, "composite", "--region", "american", "--limit", "5")
	require.NoError(t, err)
	require.Contains(t, strings.ToLower(out), "american composite")
	require.Contains(t, out, "Massachusetts Institute of Technology")

	out, err = run(t, factory, "composite", "--institution", "Stanford University")
	require.NoError(t, err)
	require.Contains(t, out, "INTERNATIONAL")
	require.Contains(t, out, "AMERICAN")

	out, err = run(t, factory, "composite", "--institution", "Stanford Universty")
	require.NoError(t, err)
	require.Contains(t, out, "not found")
	require.Contains(t, out, "did you mean: Stanford University")
}

func TestCompositeEmptyRegion(t *testing.T) {
	t.Parallel()

	out, err := run(t, newTestFactory(t), "composite")
	require.NoError(t, err)
	require.Contains(t, out, "No scored entries for region INTERNATIONAL")
}

func TestCompositeRejectsUnknownRegion(t *testing.T) {
	t.Parallel()

	_, err := run(t, newTestFactory(t), "composite", "--region", "europe")
	require.Error(t, err)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := run(t, newTestFactory(t), "migrate")
	require.ErrorContains(t, err, "db.dsn is required")
}
