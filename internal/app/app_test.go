package app_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/university-rankings/internal/app"
	"github.com/JakeFAU/university-rankings/internal/config"
	"github.com/JakeFAU/university-rankings/internal/fetcher"
	"github.com/JakeFAU/university-rankings/internal/ingest"
)

// fixtureFetcher serves one HTML file for the first request and fails the rest.
type fixtureFetcher struct {
	mu    sync.Mutex
	html  []byte
	calls int
}

func (f *fixtureFetcher) Fetch(_ context.Context, url string) (*goquery.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls > 1 {
		return nil, fetcher.StatusFailure(url, 404)
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(f.html))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Fetch.DelayMs = 0
	return cfg
}

func TestNewDefaultsToMemoryStore(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.GetStore().Ping(context.Background()))
	require.NotNil(t, a.GetOrchestrator())
	require.NotNil(t, a.GetTracker())
	require.ElementsMatch(t, []string{"qs", "arwu", "usnews", "forbes", "niche"}, a.GetRegistry().Codes())
}

func TestEnsureSourcesIsIdempotent(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	created, err := a.EnsureSources(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, created)

	created, err = a.EnsureSources(context.Background())
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestRunArchivesPagesAndRecordsMetrics(t *testing.T) {
	t.Parallel()

	html, err := os.ReadFile(filepath.Join("..", "extract", "testdata", "arwu.html"))
	require.NoError(t, err)

	cfg := testConfig(t)
	archiveDir := t.TempDir()
	cfg.Archive = config.ArchiveConfig{Backend: config.ArchiveLocal, Dir: archiveDir, Prefix: "pages"}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, zaptest.NewLogger(t), app.WithFetcher(&fixtureFetcher{html: html}))
	require.NoError(t, err)

	_, err = a.EnsureSources(ctx)
	require.NoError(t, err)

	report, err := a.GetOrchestrator().Run(ctx, []string{"arwu"})
	require.NoError(t, err)
	require.Len(t, report.Sources, 1)
	sr := report.Sources[0]
	require.Equal(t, ingest.OutcomeSuccess, sr.Outcome)
	require.Equal(t, 3, sr.Created)
	require.Equal(t, 3, sr.NewInstitutions)

	pages, err := filepath.Glob(filepath.Join(archiveDir, "pages", "arwu", "*", "page-001.html"))
	require.NoError(t, err)
	require.Len(t, pages, 1)

	a.Close()
	count, err := testutil.GatherAndCount(a.GetGatherer(), "rankings_source_runs_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestNewRejectsBrokenArchiveDir(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := testConfig(t)
	cfg.Archive = config.ArchiveConfig{Backend: config.ArchiveLocal, Dir: file}
	_, err := app.New(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorContains(t, err, "local archive")
}
