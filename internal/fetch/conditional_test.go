package fetch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulith-dev/pulith/internal/cache"
	"github.com/pulith-dev/pulith/internal/fetch"
	"github.com/pulith-dev/pulith/internal/transport/mocktransport"
)

func TestConditionalFetcherDownloadsThenReportsNotModified(t *testing.T) {
	client := mocktransport.New()
	client.Serve("https://example.test/cond", &mocktransport.Resource{
		Body: []byte("conditional body"),
		ETag: `"v1"`,
	})

	store, err := cache.NewMemoryCache(16)
	require.NoError(t, err)

	c := fetch.NewConditionalFetcher(fetch.NewFetcher(client, nil), store)
	dest := filepath.Join(t.TempDir(), "cond.txt")

	res, err := c.Fetch(context.Background(), "https://example.test/cond", dest, fetch.NewFetchOptions())
	require.NoError(t, err)
	require.Equal(t, fetch.StatusDownloaded, res.Status)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "conditional body", string(got))

	res2, err := c.Fetch(context.Background(), "https://example.test/cond", dest, fetch.NewFetchOptions())
	require.NoError(t, err)
	require.Equal(t, fetch.StatusNotModified, res2.Status)
	require.Zero(t, res2.Report.TotalBytes, "a 304 must not report a transfer")
}

func TestConditionalFetcherDetectsUnchangedBytesOnNewETag(t *testing.T) {
	client := mocktransport.New()
	resource := &mocktransport.Resource{Body: []byte("same bytes"), ETag: `"v1"`}
	client.Serve("https://example.test/republish", resource)

	store, err := cache.NewMemoryCache(16)
	require.NoError(t, err)

	c := fetch.NewConditionalFetcher(fetch.NewFetcher(client, nil), store)
	dest := filepath.Join(t.TempDir(), "republish.txt")

	_, err = c.Fetch(context.Background(), "https://example.test/republish", dest, fetch.NewFetchOptions())
	require.NoError(t, err)

	// Simulate the server issuing a new ETag for byte-identical content: a
	// full 200 response comes back, but the digest still matches the cached
	// one, so the fetcher should surface StatusLocalMatch rather than
	// StatusDownloaded.
	resource.ETag = `"v2"`

	res, err := c.Fetch(context.Background(), "https://example.test/republish", dest, fetch.NewFetchOptions())
	require.NoError(t, err)
	require.Equal(t, fetch.StatusLocalMatch, res.Status)
}
