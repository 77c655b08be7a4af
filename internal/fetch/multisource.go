package fetch

import (
	"context"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pulith-dev/pulith/internal/perr"
)

// MultiSourceFetcher implements the failover/race/geographic strategies
// over a set of DownloadSource candidates sharing one destination. Follows
// a try-the-preferred-candidate-then-fall-back idiom lifted from
// per-connection scope to per-source scope.
type MultiSourceFetcher struct {
	Inner *Fetcher

	// roundRobinNext tracks the rotation cursor across invocations: each
	// call starts from the next source rather than always from the first.
	roundRobinNext atomic.Int64
}

// NewMultiSourceFetcher builds a MultiSourceFetcher using inner for each
// candidate's actual transfer.
func NewMultiSourceFetcher(inner *Fetcher) *MultiSourceFetcher {
	return &MultiSourceFetcher{Inner: inner}
}

// orderedSources returns sources sorted by the total order (Priority,
// insertion index).
func orderedSources(sources []DownloadSource) []DownloadSource {
	out := make([]DownloadSource, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].index < out[j].index
	})
	return out
}

// Fetch dispatches to the strategy named by msOpts.Strategy.
func (m *MultiSourceFetcher) Fetch(ctx context.Context, dest string, msOpts MultiSourceOptions, opts FetchOptions) (FetchReport, error) {
	if len(msOpts.Sources) == 0 {
		return FetchReport{}, perr.NewInvalidState(dest, "multi-source fetch requires a non-empty source set")
	}

	switch msOpts.Strategy {
	case SelectPriority:
		return m.fetchFallback(ctx, dest, orderedSources(msOpts.Sources), opts)
	case SelectRoundRobin:
		return m.fetchRoundRobin(ctx, dest, msOpts.Sources, opts)
	case SelectRace:
		return m.fetchRace(ctx, dest, msOpts.Sources, opts)
	case SelectGeographic:
		return m.fetchGeographic(ctx, dest, msOpts.Sources, msOpts.Locality, opts)
	default:
		return FetchReport{}, perr.NewInvalidState(dest, "unknown multi-source selection strategy")
	}
}

// fetchFallback tries sources in the given order, falling back to the
// next on any error.
func (m *MultiSourceFetcher) fetchFallback(ctx context.Context, dest string, sources []DownloadSource, opts FetchOptions) (FetchReport, error) {
	var lastErr error
	var attempts []SourceAttempt

	for _, src := range sources {
		srcOpts := opts
		if len(src.Checksum) > 0 {
			srcOpts = opts.WithChecksum(opts.ChecksumAlgo, src.Checksum)
		}

		rep, err := m.Inner.Fetch(ctx, src.URL, dest, srcOpts)
		if err == nil {
			rep.Attempts = append(attempts, rep.Attempts...)
			return rep, nil
		}

		attempts = append(attempts, SourceAttempt{URL: src.URL, Segment: -1, Outcome: OutcomeFailed, Err: err, Attempts: 1})
		lastErr = err
	}

	return FetchReport{Attempts: attempts}, lastErr
}

// fetchRoundRobin rotates the starting source index across invocations,
// then falls back through the remaining sources in order if the first
// pick fails.
func (m *MultiSourceFetcher) fetchRoundRobin(ctx context.Context, dest string, sources []DownloadSource, opts FetchOptions) (FetchReport, error) {
	n := len(sources)
	start := int(m.roundRobinNext.Add(1)-1) % n

	rotated := make([]DownloadSource, n)
	for i := 0; i < n; i++ {
		rotated[i] = sources[(start+i)%n]
	}

	return m.fetchFallback(ctx, dest, rotated, opts)
}

// fetchGeographic selects sources whose "region" tag matches locality,
// ties broken by priority, then falls back through the rest.
func (m *MultiSourceFetcher) fetchGeographic(ctx context.Context, dest string, sources []DownloadSource, locality string, opts FetchOptions) (FetchReport, error) {
	matched := make([]DownloadSource, 0, len(sources))
	rest := make([]DownloadSource, 0, len(sources))

	for _, s := range sources {
		if s.Tags != nil && s.Tags["region"] == locality {
			matched = append(matched, s)
		} else {
			rest = append(rest, s)
		}
	}

	ordered := append(orderedSources(matched), orderedSources(rest)...)
	return m.fetchFallback(ctx, dest, ordered, opts)
}

// raceResult is one source's outcome in fetchRace.
type raceResult struct {
	src     DownloadSource
	tmpDest string
	report  FetchReport
	err     error
}

// fetchRace fetches every source concurrently, each into its own sibling
// temp destination so they never contend for the same workspace. The
// first to complete successfully wins: its temp file is renamed onto
// dest, every other in-flight attempt is cancelled (their own Fetch calls
// drop their workspaces on ctx cancellation, so cancellation is observable
// before any cancelled task's workspace could be committed), and any loser
// that still finished before cancellation took effect has its temp file
// removed. Per the Decision recorded in DESIGN.md: if more than one
// completed source carries a per-source checksum, all of their digests
// must agree with each other or the race result is rejected.
func (m *MultiSourceFetcher) fetchRace(ctx context.Context, dest string, sources []DownloadSource, opts FetchOptions) (FetchReport, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(sources))
	var wg sync.WaitGroup

	for i, src := range sources {
		src := src
		tmpDest := raceTempDest(dest, i)

		wg.Add(1)
		go func() {
			defer wg.Done()

			srcOpts := opts
			if len(src.Checksum) > 0 {
				srcOpts = opts.WithChecksum(opts.ChecksumAlgo, src.Checksum)
			}

			rep, err := m.Inner.Fetch(raceCtx, src.URL, tmpDest, srcOpts)
			results <- raceResult{src: src, tmpDest: tmpDest, report: rep, err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var winner *raceResult
	var completed []raceResult
	var attempts []SourceAttempt

	for res := range results {
		if res.err != nil {
			attempts = append(attempts, SourceAttempt{URL: res.src.URL, Segment: -1, Outcome: OutcomeFailed, Err: res.err, Attempts: 1})
			continue
		}

		completed = append(completed, res)
		attempts = append(attempts, SourceAttempt{URL: res.src.URL, Segment: -1, Outcome: OutcomeSucceeded, Attempts: 1})

		if winner == nil {
			winner = &res
			cancel()
		}
	}

	if winner == nil {
		return FetchReport{Attempts: attempts}, perr.NewInvalidState(dest, "all race sources failed")
	}

	if err := checkRaceDigestConsistency(completed); err != nil {
		for _, c := range completed {
			os.Remove(c.tmpDest)
		}
		return FetchReport{Attempts: attempts}, err
	}

	if err := os.Rename(winner.tmpDest, dest); err != nil {
		return FetchReport{Attempts: attempts}, perr.NewFsAtomicFailed(perr.FsPhaseRename, err, dest)
	}

	for _, c := range completed {
		if c.src.URL != winner.src.URL {
			os.Remove(c.tmpDest)
		}
	}

	winner.report.Path = dest
	winner.report.Attempts = attempts
	return winner.report, nil
}

func raceTempDest(dest string, i int) string {
	return dest + ".race-" + strconv.Itoa(i)
}

// checkRaceDigestConsistency applies the Decision recorded in DESIGN.md:
// every completed source that carries its own digest must agree with
// every other one that does; a race with zero checksummed sources has
// nothing to compare and always passes.
func checkRaceDigestConsistency(completed []raceResult) error {
	var reference []byte
	for _, c := range completed {
		if len(c.src.Checksum) == 0 {
			continue
		}
		if reference == nil {
			reference = c.report.Digest
			continue
		}
		if !bytesEqual(reference, c.report.Digest) {
			return perr.NewInvalidState(c.src.URL, "race sources produced disagreeing digests")
		}
	}
	return nil
}
