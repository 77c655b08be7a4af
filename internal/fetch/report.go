package fetch

import (
	"time"

	"github.com/pulith-dev/pulith/internal/progress"
)

// Snapshot is the value delivered to a caller's ProgressFunc:
// progress.ExtendedProgress, re-exported under this package so strategy
// callers don't need to import internal/progress directly.
type Snapshot = progress.ExtendedProgress

// Outcome classifies how a single source attempt ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeSkipped   Outcome = "skipped"
)

// SourceAttempt records one strategy's attempt against one source (or
// segment), for FetchReport.Attempts.
type SourceAttempt struct {
	URL      string
	Segment  int // -1 if not segment-scoped
	Outcome  Outcome
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// FetchReport is the final result of a successful fetch.
type FetchReport struct {
	Path       string
	TotalBytes int64
	Digest     []byte
	Attempts   []SourceAttempt
	Elapsed    time.Duration
	Metrics    Snapshot
}

func report(reporter *progress.Reporter, path string, total int64, digest []byte, attempts []SourceAttempt, elapsed time.Duration) FetchReport {
	return FetchReport{
		Path:       path,
		TotalBytes: total,
		Digest:     digest,
		Attempts:   attempts,
		Elapsed:    elapsed,
		Metrics:    reporter.Snapshot(),
	}
}

func emitProgress(reporter *progress.Reporter, fn ProgressFunc) {
	if fn == nil {
		return
	}
	fn(reporter.Snapshot())
}
