package fetch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulith-dev/pulith/internal/fetch"
	"github.com/pulith-dev/pulith/internal/perr"
	"github.com/pulith-dev/pulith/internal/transport/mocktransport"
)

func TestMultiSourceFetcherFallsBackOnPriority(t *testing.T) {
	client := mocktransport.New()
	client.Serve("https://mirror-a.test/x", &mocktransport.Resource{Body: []byte("primary")})
	// mirror-b is never registered, so fetching it fails with NotFound.

	f := fetch.NewMultiSourceFetcher(fetch.NewFetcher(client, nil))
	dest := filepath.Join(t.TempDir(), "out.bin")

	sources := fetch.NewSources(
		fetch.DownloadSource{URL: "https://mirror-b.test/x", Priority: 0},
		fetch.DownloadSource{URL: "https://mirror-a.test/x", Priority: 1},
	)

	rep, err := f.Fetch(context.Background(), dest, fetch.MultiSourceOptions{Sources: sources, Strategy: fetch.SelectPriority}, fetch.NewFetchOptions())
	require.NoError(t, err)
	require.Equal(t, int64(len("primary")), rep.TotalBytes)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "primary", string(got))
}

func TestMultiSourceFetcherFailsWhenAllSourcesFail(t *testing.T) {
	client := mocktransport.New()
	f := fetch.NewMultiSourceFetcher(fetch.NewFetcher(client, nil))
	dest := filepath.Join(t.TempDir(), "out.bin")

	sources := fetch.NewSources(fetch.DownloadSource{URL: "https://nowhere.test/x"})

	_, err := f.Fetch(context.Background(), dest, fetch.MultiSourceOptions{Sources: sources, Strategy: fetch.SelectPriority}, fetch.NewFetchOptions())
	require.Error(t, err)
}

func TestMultiSourceFetcherRejectsEmptySourceSet(t *testing.T) {
	client := mocktransport.New()
	f := fetch.NewMultiSourceFetcher(fetch.NewFetcher(client, nil))

	_, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "out.bin"), fetch.MultiSourceOptions{Strategy: fetch.SelectPriority}, fetch.NewFetchOptions())
	require.Error(t, err)
	kind, ok := perr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, perr.KindInvalidState, kind)
}

func TestMultiSourceFetcherRace(t *testing.T) {
	client := mocktransport.New()
	client.Serve("https://mirror-a.test/race", &mocktransport.Resource{Body: []byte("same content")})
	client.Serve("https://mirror-b.test/race", &mocktransport.Resource{Body: []byte("same content")})

	f := fetch.NewMultiSourceFetcher(fetch.NewFetcher(client, nil))
	dest := filepath.Join(t.TempDir(), "raced.bin")

	sources := fetch.NewSources(
		fetch.DownloadSource{URL: "https://mirror-a.test/race"},
		fetch.DownloadSource{URL: "https://mirror-b.test/race"},
	)

	rep, err := f.Fetch(context.Background(), dest, fetch.MultiSourceOptions{Sources: sources, Strategy: fetch.SelectRace}, fetch.NewFetchOptions())
	require.NoError(t, err)
	require.Equal(t, int64(len("same content")), rep.TotalBytes)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "same content", string(got))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	require.Len(t, entries, 1, "loser temp files must be cleaned up")
}

func TestMultiSourceFetcherGeographicPrefersLocalRegion(t *testing.T) {
	client := mocktransport.New()
	client.Serve("https://eu.test/x", &mocktransport.Resource{Body: []byte("eu")})
	client.Serve("https://us.test/x", &mocktransport.Resource{Body: []byte("us")})

	f := fetch.NewMultiSourceFetcher(fetch.NewFetcher(client, nil))
	dest := filepath.Join(t.TempDir(), "geo.bin")

	sources := fetch.NewSources(
		fetch.DownloadSource{URL: "https://us.test/x", Tags: map[string]string{"region": "us"}},
		fetch.DownloadSource{URL: "https://eu.test/x", Tags: map[string]string{"region": "eu"}},
	)

	rep, err := f.Fetch(context.Background(), dest, fetch.MultiSourceOptions{Sources: sources, Strategy: fetch.SelectGeographic, Locality: "eu"}, fetch.NewFetchOptions())
	require.NoError(t, err)
	require.Equal(t, int64(len("eu")), rep.TotalBytes)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "eu", string(got))
}
