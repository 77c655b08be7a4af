package fetch

import (
	"context"
	"io"
	"time"

	"github.com/pulith-dev/pulith/internal/fsatomic"
	"github.com/pulith-dev/pulith/internal/logger"
	"github.com/pulith-dev/pulith/internal/perr"
	"github.com/pulith-dev/pulith/internal/progress"
	"github.com/pulith-dev/pulith/internal/ratelimit"
	"github.com/pulith-dev/pulith/internal/transport"
	"github.com/pulith-dev/pulith/internal/verify"
)

// Fetcher implements the single-source strategy: HEAD for total size
// (best-effort), stream through a tee'd hasher into a staged file,
// respecting an optional throttle, retrying transient errors with
// backoff, then verify-and-commit. Generalized from tdm's
// Download.Start/processDownload single-connection path.
type Fetcher struct {
	Client transport.Client
	Bucket ratelimit.Bucket // nil disables throttling
}

// NewFetcher builds a Fetcher against client. bucket may be nil.
func NewFetcher(client transport.Client, bucket ratelimit.Bucket) *Fetcher {
	return &Fetcher{Client: client, Bucket: bucket}
}

// Fetch downloads url to dest under opts, honoring the commit discipline
// common to every strategy: allocate workspace, stream verified bytes,
// verify digest, commit atomically, clean up.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string, opts FetchOptions) (FetchReport, error) {
	start := time.Now()

	meta, err := f.Client.Head(ctx, url, opts.Headers)
	total := int64(0)
	if err == nil {
		total = meta.TotalBytes
	} else {
		logger.Debugf("HEAD failed for %s, proceeding without known size: %v", url, err)
	}

	reporter := progress.NewReporter(total)
	emitProgress(reporter, opts.Progress)

	var attempts []SourceAttempt
	var digest []byte

	ws, err := fsatomic.AllocateWorkspace(dest)
	if err != nil {
		return FetchReport{}, err
	}

	maxAttempts := opts.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	// written is the size of the successful attempt's staged file; the
	// reporter's BytesDone also counts bytes from failed attempts.
	var written int64
	attemptStart := time.Now()
	for attempt := 0; attempt < maxAttempts; attempt++ {
		before := reporter.Snapshot().BytesDone
		digest, err = f.attempt(ctx, url, ws, reporter, opts)
		if err == nil {
			written = reporter.Snapshot().BytesDone - before
			attempts = append(attempts, SourceAttempt{URL: url, Segment: -1, Outcome: OutcomeSucceeded, Attempts: attempt + 1, Elapsed: time.Since(attemptStart)})
			break
		}

		attempts = append(attempts, SourceAttempt{URL: url, Segment: -1, Outcome: OutcomeFailed, Err: err, Attempts: attempt + 1, Elapsed: time.Since(attemptStart)})

		if !opts.Retry.ShouldRetry(err, attempt) {
			ws.Abort()
			return FetchReport{}, err
		}

		reporter.RecordRetry()
		emitProgress(reporter, opts.Progress)

		delay := retryDelay(attempt, opts.Retry.BaseDelay, opts.Retry.MaxDelay, opts.Retry.Jitter)
		select {
		case <-ctx.Done():
			ws.Abort()
			return FetchReport{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err != nil {
		ws.Abort()
		return FetchReport{}, perr.NewRetryLimitExceeded(err, url, maxAttempts)
	}

	reporter.SetPhase(progress.PhaseVerifying)
	emitProgress(reporter, opts.Progress)

	reporter.SetPhase(progress.PhaseCommitting)
	emitProgress(reporter, opts.Progress)

	if err := commitFile(ws, dest); err != nil {
		return FetchReport{}, err
	}

	reporter.SetPhase(progress.PhaseCompleted)
	emitProgress(reporter, opts.Progress)

	return report(reporter, dest, written, digest, attempts, time.Since(start)), nil
}

// attempt performs one end-to-end streaming attempt: connect, download,
// verify. It does not commit; the caller commits only after a full
// successful attempt loop.
func (f *Fetcher) attempt(ctx context.Context, url string, ws *fsatomic.Workspace, reporter *progress.Reporter, opts FetchOptions) ([]byte, error) {
	reporter.SetPhase(progress.PhaseConnecting)

	connectCtx := ctx
	var cancel context.CancelFunc
	if opts.ConnectTimeout > 0 {
		connectCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	body, _, err := f.Client.Get(connectCtx, url, opts.Headers)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	reporter.SetPhase(progress.PhaseDownloading)

	algo := verify.SHA256
	if opts.ChecksumAlgo == string(verify.Blake3) {
		algo = verify.Blake3
	}
	hasher, err := verify.NewHasher(algo)
	if err != nil {
		return nil, err
	}

	var reader io.Reader = body
	if bucket := effectiveBucket(f.Bucket, opts.BandwidthCapBPS); bucket != nil {
		reader = ratelimit.NewThrottledReader(ctx, reader, bucket)
	}

	vr := verify.NewVerifiedReader(reader, hasher)

	out, err := ws.OpenFile(stagingFileName)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	buf := make([]byte, opts.chunkSize())
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, rerr := vr.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, werr, ws.Root())
			}
			reporter.AddBytes(int64(n), "", -1)
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, classifyReadErr(rerr, url)
		}
	}

	if err := out.Sync(); err != nil {
		return nil, perr.NewFsAtomicFailed(perr.FsPhaseCopy, err, ws.Root())
	}

	return vr.Finish(opts.ExpectedChecksum)
}

// classifyReadErr passes through errors that are already in the perr
// taxonomy (from the transport layer); anything else is wrapped as a
// generic IO error, so read errors propagate unchanged in kind.
func classifyReadErr(err error, resource string) error {
	if _, ok := perr.KindOf(err); ok {
		return err
	}
	return perr.NewIO(err, resource)
}
