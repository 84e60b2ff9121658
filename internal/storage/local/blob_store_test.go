package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/university-rankings/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "archive", "pages")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "qs/20250501T090000Z/page-001.html", "text/html", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	want := filepath.Join(dir, "qs", "20250501T090000Z", "page-001.html")
	require.Equal(t, "file://"+want, uri)
	// #nosec G304 -- reads from the test temp directory.
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(data))

	_, err = store.PutObject(ctx, "qs/20250501T090000Z/page-001.html", "text/html", strings.NewReader("v2"))
	require.NoError(t, err)
	// #nosec G304 -- reads from the test temp directory.
	data, err = os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))

	_, err = store.PutObject(ctx, "", "text/html", strings.NewReader("x"))
	require.Error(t, err)

	_, err = store.PutObject(ctx, "../escape.html", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}
