// Package transport implements the HTTP transport abstraction:
// HEAD/Range/conditional GET, a bounded redirect count, and
// transient-vs-permanent error classification, generalized from the
// tdm's pkg/http.Client into an interface so fetch strategies can be
// tested against a mock instead of a real socket.
package transport

import (
	"context"
	"io"
)

// Meta is the metadata a HEAD (or a GET's initial response) yields about a
// resource.
type Meta struct {
	TotalBytes   int64
	AcceptRanges bool
	ETag         string
	LastModified string
	StatusCode   int
}

// Client is the capability the fetch engine depends on for every strategy.
// A real implementation wraps net/http; tests use mocktransport.Client.
type Client interface {
	// Head performs a HEAD request and returns the resource's metadata.
	Head(ctx context.Context, url string, headers map[string]string) (Meta, error)

	// GetRange performs a GET with a Range header covering [start, end]
	// (inclusive), returning an error satisfying perr.KindRangeUnsupported
	// if the server doesn't honor it.
	GetRange(ctx context.Context, url string, start, end int64, headers map[string]string) (io.ReadCloser, Meta, error)

	// Get performs an unconditional or conditional GET depending on
	// headers (If-None-Match / If-Modified-Since). A 304 response yields a
	// Meta with StatusCode 304 and a nil body.
	Get(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, Meta, error)
}
