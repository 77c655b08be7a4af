package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pulith-dev/pulith/internal/perr"
)

// Job is one unit of work in a BatchFetcher's dependency graph.
type Job struct {
	ID      string
	URL     string
	Dest    string
	Options FetchOptions
	// DependsOn lists job IDs that must complete before this job starts.
	DependsOn []string
}

// JobResult is one job's outcome within a BatchFetcher.Run call.
type JobResult struct {
	ID     string
	Report FetchReport
	Err    error
}

// BatchFetcher implements the dependency-ordered batch strategy: jobs form
// a DAG via DependsOn edges; Run topologically sorts them (rejecting
// cycles with InvalidState) and executes up to MaxConcurrent in parallel,
// respecting edges. Generalized from tdm's engine.Queue, which
// schedules independent downloads over a bounded worker pool without a
// dependency graph; this adds Kahn's-algorithm layering on top of the same
// errgroup-bounded-by-semaphore shape used elsewhere in this package.
type BatchFetcher struct {
	Inner *Fetcher

	MaxConcurrent int
	// FailFast cancels every job that hasn't started yet on the first
	// failure; otherwise all independently-runnable jobs still run and
	// Run returns every job's individual result.
	FailFast bool
}

// NewBatchFetcher builds a BatchFetcher. maxConcurrent <= 0 defaults to 4.
func NewBatchFetcher(inner *Fetcher, maxConcurrent int, failFast bool) *BatchFetcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &BatchFetcher{Inner: inner, MaxConcurrent: maxConcurrent, FailFast: failFast}
}

// Run executes jobs, respecting dependency edges, and returns one
// JobResult per job (in no particular order). A dependency cycle, a job
// depending on an unknown ID, or a duplicate ID is rejected up front with
// InvalidState before any fetch begins.
func (b *BatchFetcher) Run(ctx context.Context, jobs []Job) ([]JobResult, error) {
	order, err := topoSort(jobs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	done := make(map[string]chan struct{}, len(jobs))
	for _, j := range jobs {
		done[j.ID] = make(chan struct{})
	}

	results := make([]JobResult, len(jobs))
	var resultsMu sync.Mutex
	setResult := func(i int, r JobResult) {
		resultsMu.Lock()
		results[i] = r
		resultsMu.Unlock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	sem := make(chan struct{}, b.MaxConcurrent)

	var failed atomic32

	for idx, id := range order {
		idx, id := idx, id
		job := byID[id]

		g.Go(func() error {
			for _, dep := range job.DependsOn {
				select {
				case <-done[dep]:
				case <-gctx.Done():
					setResult(idx, JobResult{ID: id, Err: gctx.Err()})
					close(done[id])
					return nil
				}
			}

			if b.FailFast && failed.load() {
				setResult(idx, JobResult{ID: id, Err: perr.NewInvalidState(id, "cancelled: an earlier job in this batch failed")})
				close(done[id])
				return nil
			}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				setResult(idx, JobResult{ID: id, Err: runCtx.Err()})
				close(done[id])
				return nil
			}

			rep, err := b.Inner.Fetch(runCtx, job.URL, job.Dest, job.Options)
			setResult(idx, JobResult{ID: id, Report: rep, Err: err})
			close(done[id])

			if err != nil {
				failed.store(true)
				if b.FailFast {
					cancel()
				}
			}

			return nil
		})
	}

	g.Wait()

	return results, nil
}

// atomic32 is a tiny bool flag safe for concurrent use, avoiding a second
// import just for a single shared boolean.
type atomic32 struct {
	mu sync.Mutex
	v  bool
}

func (a *atomic32) load() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

func (a *atomic32) store(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v = v
}

// topoSort returns jobs' IDs in an order consistent with DependsOn edges
// via Kahn's algorithm, or an InvalidState error if a cycle, duplicate ID,
// or reference to an unknown ID exists.
func topoSort(jobs []Job) ([]string, error) {
	inDegree := make(map[string]int, len(jobs))
	adj := make(map[string][]string, len(jobs))
	seen := make(map[string]bool, len(jobs))

	for _, j := range jobs {
		if seen[j.ID] {
			return nil, perr.NewInvalidState(j.ID, "duplicate job id")
		}
		seen[j.ID] = true
		if _, ok := inDegree[j.ID]; !ok {
			inDegree[j.ID] = 0
		}
	}

	for _, j := range jobs {
		for _, dep := range j.DependsOn {
			if !seen[dep] {
				return nil, perr.NewInvalidState(j.ID, "depends on unknown job id "+dep)
			}
			adj[dep] = append(adj[dep], j.ID)
			inDegree[j.ID]++
		}
	}

	queue := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if inDegree[j.ID] == 0 {
			queue = append(queue, j.ID)
		}
	}

	order := make([]string, 0, len(jobs))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(jobs) {
		return nil, perr.NewInvalidState("batch", "dependency cycle detected")
	}

	return order, nil
}
