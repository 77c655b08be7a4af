package ratelimit

import (
	"context"
	"io"
)

// ThrottledReader wraps any io.Reader and acquires tokens for each chunk
// before returning it to the caller. Errors from the inner reader are
// preserved unchanged; backpressure is automatic because a slow consumer
// simply stops calling Read, so no bytes are acquired and the bucket stays
// full.
type ThrottledReader struct {
	ctx    context.Context
	inner  io.Reader
	bucket Bucket
}

// NewThrottledReader builds a ThrottledReader. A nil bucket makes Read a
// pure passthrough, which lets callers make throttling optional without an
// extra branch at every call site.
func NewThrottledReader(ctx context.Context, inner io.Reader, bucket Bucket) *ThrottledReader {
	return &ThrottledReader{ctx: ctx, inner: inner, bucket: bucket}
}

// Read implements io.Reader. It reads from the inner reader first (so the
// acquired size matches exactly what was produced, never an
// over-estimate), then throttles on that many bytes before returning them.
func (t *ThrottledReader) Read(p []byte) (int, error) {
	n, err := t.inner.Read(p)
	if n > 0 && t.bucket != nil {
		if acqErr := t.bucket.Acquire(t.ctx, int64(n)); acqErr != nil {
			return n, acqErr
		}
	}

	return n, err
}
