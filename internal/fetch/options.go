// Package fetch implements the strategy layer: the single-source,
// segmented, resumable, conditional, multi-source, and batch fetch
// strategies that compose transport, rate control, verification, and the
// filesystem layer into a single commit discipline (stage into a
// workspace, verify, commit atomically, never touch the destination
// directly). Generalized from tdm's internal/downloader and
// internal/engine packages, which drive the same pipeline — HEAD, chunked
// concurrent transfer, retry-with-backoff, merge-then-publish — against
// tdm's own chunk/connection abstractions.
package fetch

import (
	"time"

	"github.com/pulith-dev/pulith/internal/config"
)

// RetryPolicy governs how a fetch strategy retries a transient failure. It
// is immutable: every field is set at construction.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryPolicy mirrors tdm's downloader defaults (3 attempts,
// base delay doubling, jittered), taken from internal/config's built-in
// DefaultConfig. A config file read by config.GetConfig does not change it.
func DefaultRetryPolicy() RetryPolicy {
	fc := config.DefaultConfig().Fetch
	return RetryPolicy{
		MaxAttempts: fc.MaxRetries,
		BaseDelay:   fc.RetryDelay,
		MaxDelay:    2 * time.Minute,
		Jitter:      true,
	}
}

// ShouldRetry reports whether attempt (0-indexed) should be retried for err.
// Only transient errors are retried, and only while attempts remain.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsTransient(err)
}

// FetchOptions is the immutable configuration a caller builds up before
// invoking a strategy. Every With* method returns a new value rather than
// mutating through a pointer receiver — construction is a pure value
// transform, built by accumulation: each builder step yields a new value.
type FetchOptions struct {
	ExpectedChecksum []byte
	ChecksumAlgo     string // "sha256" or "blake3"; empty means SHA256

	Retry RetryPolicy

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TotalTimeout   time.Duration

	BandwidthCapBPS int64 // 0 means unlimited

	ChunkSize int64 // streaming chunk size; default 64 KiB, floor 8 KiB

	Progress ProgressFunc

	Headers map[string]string
}

// ProgressFunc is a shared, thread-safe progress callback handle. It must
// not block; slow consumers are the caller's responsibility.
type ProgressFunc func(Snapshot)

const (
	defaultChunkSize = 64 * 1024
	minChunkSize     = 8 * 1024
)

// NewFetchOptions returns the zero-value-safe starting point for the
// builder chain, with the ambient defaults from internal/config's retry
// and bandwidth-cap settings already applied.
func NewFetchOptions() FetchOptions {
	fc := config.DefaultConfig().Fetch
	return FetchOptions{
		Retry:           DefaultRetryPolicy(),
		ConnectTimeout:  30 * time.Second,
		ReadTimeout:     30 * time.Second,
		ChunkSize:       defaultChunkSize,
		BandwidthCapBPS: fc.MaxBandwidthBytesPerSec,
	}
}

// WithChecksum returns a copy of o carrying an expected digest, hex-decoded
// by the caller at the boundary — this package never parses hex.
func (o FetchOptions) WithChecksum(algo string, expected []byte) FetchOptions {
	o.ChecksumAlgo = algo
	o.ExpectedChecksum = expected
	return o
}

// WithRetry returns a copy of o using policy p.
func (o FetchOptions) WithRetry(p RetryPolicy) FetchOptions {
	o.Retry = p
	return o
}

// WithTimeouts returns a copy of o with the connect/read/total timeouts set.
func (o FetchOptions) WithTimeouts(connect, read, total time.Duration) FetchOptions {
	o.ConnectTimeout = connect
	o.ReadTimeout = read
	o.TotalTimeout = total
	return o
}

// WithBandwidthCap returns a copy of o capped at bytesPerSec (0 disables
// throttling).
func (o FetchOptions) WithBandwidthCap(bytesPerSec int64) FetchOptions {
	o.BandwidthCapBPS = bytesPerSec
	return o
}

// WithChunkSize returns a copy of o with the given write chunk size,
// floored at an 8 KiB minimum.
func (o FetchOptions) WithChunkSize(n int64) FetchOptions {
	if n < minChunkSize {
		n = minChunkSize
	}
	o.ChunkSize = n
	return o
}

// WithProgress returns a copy of o reporting through fn.
func (o FetchOptions) WithProgress(fn ProgressFunc) FetchOptions {
	o.Progress = fn
	return o
}

// WithHeaders returns a copy of o sending the given extra request headers
// on every request the strategy issues.
func (o FetchOptions) WithHeaders(h map[string]string) FetchOptions {
	merged := make(map[string]string, len(o.Headers)+len(h))
	for k, v := range o.Headers {
		merged[k] = v
	}
	for k, v := range h {
		merged[k] = v
	}
	o.Headers = merged
	return o
}

func (o FetchOptions) chunkSize() int64 {
	if o.ChunkSize <= 0 {
		return defaultChunkSize
	}
	if o.ChunkSize < minChunkSize {
		return minChunkSize
	}
	return o.ChunkSize
}

// DownloadSource is one candidate location for an artifact in a
// multi-source fetch. Priority is total under (Priority, index) so ties
// resolve deterministically by insertion order.
type DownloadSource struct {
	URL      string
	Priority int
	Checksum []byte
	Tags     map[string]string

	index int
}

// NewSources assigns each source its insertion index, establishing a
// total order (Priority, index) for tie-breaking.
func NewSources(sources ...DownloadSource) []DownloadSource {
	out := make([]DownloadSource, len(sources))
	for i, s := range sources {
		s.index = i
		out[i] = s
	}
	return out
}

// SelectionStrategy chooses how MultiSourceFetcher picks among sources.
type SelectionStrategy int

const (
	SelectPriority SelectionStrategy = iota
	SelectRoundRobin
	SelectRace
	SelectGeographic
)

// MultiSourceOptions configures MultiSourceFetcher.
type MultiSourceOptions struct {
	Sources  []DownloadSource
	Strategy SelectionStrategy
	// Locality is consulted only by SelectGeographic: sources are matched
	// against this tag value under the "region" tag key, ties broken by
	// priority.
	Locality string
}
