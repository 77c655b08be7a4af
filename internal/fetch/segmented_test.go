package fetch_test

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulith-dev/pulith/internal/fetch"
	"github.com/pulith-dev/pulith/internal/transport/mocktransport"
)

func TestSegmentedFetcherAssemblesRangesInOrder(t *testing.T) {
	client := mocktransport.New()
	body := make([]byte, 10_000)
	for i := range body {
		body[i] = byte(i % 251)
	}
	client.Serve("https://example.test/big", &mocktransport.Resource{Body: body, AcceptRanges: true})

	sum := sha256.Sum256(body)

	f := fetch.NewSegmentedFetcher(client, nil, 4)
	dest := filepath.Join(t.TempDir(), "big.bin")

	opts := fetch.NewFetchOptions().WithChecksum("sha256", sum[:])

	rep, err := f.Fetch(context.Background(), "https://example.test/big", dest, 4, opts)
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), rep.TotalBytes)
	require.Equal(t, sum[:], rep.Digest)
	require.True(t, client.RangeCalls() >= 4)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

// TestSegmentedFetcherDowngradesWithoutRangeSupport covers the
// RangeUnsupported contract: a server that doesn't advertise Accept-Ranges
// falls back to a plain single-source fetch instead of failing.
func TestSegmentedFetcherDowngradesWithoutRangeSupport(t *testing.T) {
	client := mocktransport.New()
	body := []byte("no ranges here")
	client.Serve("https://example.test/plain", &mocktransport.Resource{Body: body, AcceptRanges: false})

	f := fetch.NewSegmentedFetcher(client, nil, 4)
	dest := filepath.Join(t.TempDir(), "plain.txt")

	rep, err := f.Fetch(context.Background(), "https://example.test/plain", dest, 4, fetch.NewFetchOptions())
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), rep.TotalBytes)
	require.Equal(t, int64(0), client.RangeCalls())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, body, got)
}
