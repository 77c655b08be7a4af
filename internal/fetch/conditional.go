package fetch

import (
	"context"

	"github.com/pulith-dev/pulith/internal/cache"
)

// ConditionalStatus classifies a ConditionalFetcher result.
type ConditionalStatus int

const (
	// StatusDownloaded means the server returned 200 and new bytes were
	// fetched and committed.
	StatusDownloaded ConditionalStatus = iota
	// StatusNotModified means the server returned 304; the destination is
	// untouched.
	StatusNotModified
	// StatusLocalMatch means the server returned 200 but the returned
	// content's digest matches the locally cached digest. The body is
	// still transferred and committed to the destination.
	StatusLocalMatch
)

// ConditionalResult is the outcome of a ConditionalFetcher.Fetch call.
type ConditionalResult struct {
	Status ConditionalStatus
	Report FetchReport // zero value when Status == StatusNotModified
}

// ConditionalFetcher implements the conditional-request strategy: consults
// a MetadataStore keyed by url, issues If-None-Match / If-Modified-Since,
// and distinguishes "nothing changed" from "changed but identical bytes"
// from "genuinely new content". Only the first case skips the transfer;
// identical bytes under new metadata are downloaded and committed again.
type ConditionalFetcher struct {
	Inner *Fetcher
	Store cache.MetadataStore
}

// NewConditionalFetcher builds a ConditionalFetcher backed by inner for
// the actual transfer and store for metadata.
func NewConditionalFetcher(inner *Fetcher, store cache.MetadataStore) *ConditionalFetcher {
	return &ConditionalFetcher{Inner: inner, Store: store}
}

// Fetch issues a conditional request for url. If the cached metadata's
// digest already matches a freshly downloaded body, the workspace from the
// underlying Fetcher attempt is still committed (the bytes are correct;
// recomputing over the network doesn't save an atomic publish), but the
// status is reported as StatusLocalMatch so callers can distinguish "we
// already had this" from a genuinely new version for logging/metrics
// purposes.
func (c *ConditionalFetcher) Fetch(ctx context.Context, url, dest string, opts FetchOptions) (ConditionalResult, error) {
	entry, hit, err := c.Store.Get(url)
	if err != nil {
		return ConditionalResult{}, err
	}

	headers := make(map[string]string, len(opts.Headers)+2)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if hit {
		if entry.ETag != "" {
			headers["If-None-Match"] = entry.ETag
		}
		if entry.LastModified != "" {
			headers["If-Modified-Since"] = entry.LastModified
		}
	}

	meta, err := c.Inner.Client.Head(ctx, url, headers)
	if err == nil && meta.StatusCode == 304 {
		return ConditionalResult{Status: StatusNotModified}, nil
	}

	condOpts := opts.WithHeaders(headers)
	rep, err := c.Inner.Fetch(ctx, url, dest, condOpts)
	if err != nil {
		return ConditionalResult{}, err
	}

	status := StatusDownloaded
	if hit && len(entry.Digest) > 0 && bytesEqual(entry.Digest, rep.Digest) {
		status = StatusLocalMatch
	}

	if err := c.Store.Put(url, cache.Entry{
		ETag:         meta.ETag,
		LastModified: meta.LastModified,
		Size:         rep.TotalBytes,
		Digest:       rep.Digest,
	}); err != nil {
		return ConditionalResult{}, err
	}

	return ConditionalResult{Status: status, Report: rep}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
