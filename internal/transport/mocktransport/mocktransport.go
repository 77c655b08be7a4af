// Package mocktransport provides an in-memory transport.Client for tests,
// so fetch strategies can be exercised without a real socket.
package mocktransport

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pulith-dev/pulith/internal/perr"
	"github.com/pulith-dev/pulith/internal/transport"
)

// Resource is a byte-slice backed object the mock client serves.
type Resource struct {
	Body         []byte
	AcceptRanges bool
	ETag         string
	LastModified string

	// Latency, injected per-read via LatencyFn if set.
	LatencyFn func()

	// FailAfter, if > 0, injects exactly one transient error the first
	// time a stream for this resource reads past this many bytes,
	// simulating a mid-transfer disconnect a retry then recovers from.
	// Zero means never fail.
	FailAfter int64
}

// Client is a thread-safe, in-memory implementation of transport.Client.
type Client struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	tripped   map[string]*atomic.Bool

	headCalls  atomic.Int64
	getCalls   atomic.Int64
	rangeCalls atomic.Int64
}

// New builds an empty mock client.
func New() *Client {
	return &Client{
		resources: make(map[string]*Resource),
		tripped:   make(map[string]*atomic.Bool),
	}
}

// Serve registers a resource at url.
func (c *Client) Serve(url string, r *Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[url] = r
	c.tripped[url] = &atomic.Bool{}
}

func (c *Client) get(url string) (*Resource, *atomic.Bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resources[url]
	return r, c.tripped[url], ok
}

// HeadCalls, GetCalls, RangeCalls report invocation counts for assertions.
func (c *Client) HeadCalls() int64  { return c.headCalls.Load() }
func (c *Client) GetCalls() int64   { return c.getCalls.Load() }
func (c *Client) RangeCalls() int64 { return c.rangeCalls.Load() }

func (c *Client) Head(_ context.Context, url string, headers map[string]string) (transport.Meta, error) {
	c.headCalls.Add(1)
	r, _, ok := c.get(url)
	if !ok {
		return transport.Meta{}, perr.NewNotFound(url)
	}

	if inm := headers["If-None-Match"]; inm != "" && r.ETag != "" && inm == r.ETag {
		return transport.Meta{StatusCode: 304, ETag: r.ETag, LastModified: r.LastModified}, nil
	}
	if ims := headers["If-Modified-Since"]; ims != "" && r.LastModified != "" && ims == r.LastModified {
		return transport.Meta{StatusCode: 304, ETag: r.ETag, LastModified: r.LastModified}, nil
	}

	return transport.Meta{
		TotalBytes:   int64(len(r.Body)),
		AcceptRanges: r.AcceptRanges,
		ETag:         r.ETag,
		LastModified: r.LastModified,
		StatusCode:   200,
	}, nil
}

func (c *Client) GetRange(_ context.Context, url string, start, end int64, _ map[string]string) (io.ReadCloser, transport.Meta, error) {
	c.rangeCalls.Add(1)
	r, tripped, ok := c.get(url)
	if !ok {
		return nil, transport.Meta{}, perr.NewNotFound(url)
	}
	if !r.AcceptRanges {
		return nil, transport.Meta{}, perr.NewRangeUnsupported(url)
	}

	n := int64(len(r.Body))
	if start < 0 || start > end || end >= n {
		return nil, transport.Meta{}, perr.NewInvalidState(url, "range out of bounds")
	}

	body := r.Body[start : end+1]
	meta := transport.Meta{
		TotalBytes:   int64(len(body)),
		AcceptRanges: true,
		ETag:         r.ETag,
		LastModified: r.LastModified,
		StatusCode:   206,
	}
	return newMockReader(r, tripped, body), meta, nil
}

func (c *Client) Get(_ context.Context, url string, headers map[string]string) (io.ReadCloser, transport.Meta, error) {
	c.getCalls.Add(1)
	r, tripped, ok := c.get(url)
	if !ok {
		return nil, transport.Meta{}, perr.NewNotFound(url)
	}

	if inm := headers["If-None-Match"]; inm != "" && r.ETag != "" && inm == r.ETag {
		return nil, transport.Meta{StatusCode: 304}, nil
	}
	if ims := headers["If-Modified-Since"]; ims != "" && r.LastModified != "" && ims == r.LastModified {
		return nil, transport.Meta{StatusCode: 304}, nil
	}

	body := r.Body
	if rng := headers["Range"]; rng != "" {
		if start, ok := parseRangeStart(rng); ok && start <= int64(len(body)) {
			body = body[start:]
		}
	}

	meta := transport.Meta{
		TotalBytes:   int64(len(body)),
		AcceptRanges: r.AcceptRanges,
		ETag:         r.ETag,
		LastModified: r.LastModified,
		StatusCode:   200,
	}
	return newMockReader(r, tripped, body), meta, nil
}

func parseRangeStart(header string) (int64, bool) {
	const prefix = "bytes="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return 0, false
	}
	rest := header[len(prefix):]
	var start int64
	for i := 0; i < len(rest); i++ {
		if rest[i] == '-' {
			break
		}
		if rest[i] < '0' || rest[i] > '9' {
			return 0, false
		}
		start = start*10 + int64(rest[i]-'0')
	}
	return start, true
}

// mockReader streams body, injecting latency and the resource's one-shot
// FailAfter error.
type mockReader struct {
	r         *bytes.Reader
	resource  *Resource
	tripped   *atomic.Bool
	localRead int64
}

func newMockReader(r *Resource, tripped *atomic.Bool, body []byte) *mockReader {
	return &mockReader{r: bytes.NewReader(body), resource: r, tripped: tripped}
}

func (m *mockReader) Read(p []byte) (int, error) {
	if m.resource.LatencyFn != nil {
		m.resource.LatencyFn()
	}

	if m.resource.FailAfter > 0 && m.tripped != nil && !m.tripped.Load() && m.localRead >= m.resource.FailAfter {
		m.tripped.Store(true)
		return 0, perr.NewNetwork(io.ErrUnexpectedEOF, "mock", 0, true)
	}

	n, err := m.r.Read(p)
	m.localRead += int64(n)
	return n, err
}

func (m *mockReader) Close() error { return nil }

var _ transport.Client = (*Client)(nil)
