package gcs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, Config{}.Validate())
	require.Error(t, Config{Bucket: "  "}.Validate())
	require.NoError(t, Config{Bucket: "rankings-archive"}.Validate())
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "rankings-archive"})
	require.Error(t, err)
}

func TestDialRejectsMissingBucket(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), Config{Endpoint: "http://localhost:4443/storage/v1/"})
	require.Error(t, err)
}

func TestDialWithEmulatorEndpoint(t *testing.T) {
	t.Parallel()

	store, err := Dial(context.Background(), Config{
		Bucket:   "rankings-archive",
		Endpoint: "http://127.0.0.1:1/storage/v1/",
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	_, err = store.PutObject(context.Background(), "", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}
