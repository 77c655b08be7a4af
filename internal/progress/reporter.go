package progress

import (
	"sync"
	"time"
)

const (
	defaultHistorySize = 20
	// emaAlpha weights the newest instantaneous rate sample against the
	// running average. Higher reacts faster, lower smooths more.
	emaAlpha = 0.3
)

type sample struct {
	atMs      int64
	bytesDone int64
}

// Reporter accumulates the raw measurements a fetch produces (bytes
// observed, phase transitions, reconnections) and derives an
// ExtendedProgress snapshot on demand. Safe for concurrent use: a
// segmented or multi-source fetch has several workers reporting bytes
// against the same Reporter.
type Reporter struct {
	mu sync.Mutex

	history     []sample
	historyCap  int
	totalBytes  int64
	bytesDone   int64
	retryCount  int
	phase       Phase
	phaseStart  map[Phase]int64
	phaseElapsed map[Phase]time.Duration
	perSource   map[string]int64
	perSegment  map[int]int64

	emaRate   float64
	peakRate  int64
	reconnect int

	now func() time.Time
}

// NewReporter creates a Reporter for a fetch whose total size is
// totalBytes (0 if unknown).
func NewReporter(totalBytes int64) *Reporter {
	now := time.Now()
	return &Reporter{
		historyCap:   defaultHistorySize,
		totalBytes:   totalBytes,
		phase:        PhaseConnecting,
		phaseStart:   map[Phase]int64{PhaseConnecting: now.UnixMilli()},
		phaseElapsed: make(map[Phase]time.Duration),
		perSource:    make(map[string]int64),
		perSegment:   make(map[int]int64),
		now:          time.Now,
	}
}

// AddBytes records n additional bytes observed for source (may be "" if
// the fetch has a single, unnamed source) at segment index seg (may be -1
// if segments aren't in use).
func (r *Reporter) AddBytes(n int64, source string, seg int) {
	if n <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.bytesDone += n
	if source != "" {
		r.perSource[source] += n
	}
	if seg >= 0 {
		r.perSegment[seg] += n
	}

	nowMs := r.now().UnixMilli()
	r.recordSampleLocked(nowMs)
}

func (r *Reporter) recordSampleLocked(nowMs int64) {
	r.history = append(r.history, sample{atMs: nowMs, bytesDone: r.bytesDone})
	if len(r.history) > r.historyCap {
		r.history = r.history[1:]
	}

	if len(r.history) < 2 {
		return
	}

	prev := r.history[len(r.history)-2]
	cur := r.history[len(r.history)-1]

	deltaMs := cur.atMs - prev.atMs
	if deltaMs <= 0 {
		return
	}

	instantaneous := float64(cur.bytesDone-prev.bytesDone) / (float64(deltaMs) / 1000.0)
	if r.emaRate == 0 {
		r.emaRate = instantaneous
	} else {
		r.emaRate = emaAlpha*instantaneous + (1-emaAlpha)*r.emaRate
	}

	if rate := int64(r.emaRate); rate > r.peakRate {
		r.peakRate = rate
	}
}

// SetPhase advances the fetch to phase. Calling it with a phase that isn't
// strictly after the current one is a no-op, enforcing the one-way
// forward invariant.
func (r *Reporter) SetPhase(phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if phase <= r.phase {
		return
	}

	nowMs := r.now().UnixMilli()

	if start, ok := r.phaseStart[r.phase]; ok {
		r.phaseElapsed[r.phase] += time.Duration(nowMs-start) * time.Millisecond
	}

	r.phase = phase
	r.phaseStart[phase] = nowMs
}

// RecordRetry increments the retry counter reported in the next snapshot.
func (r *Reporter) RecordRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount++
}

// RecordReconnect increments the reconnection counter, for strategies
// (resumable, multi-source) that re-establish a connection mid-fetch.
func (r *Reporter) RecordReconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnect++
}

// Snapshot returns the current ExtendedProgress. ETAKnown is false unless
// both the rate is positive and the total size is known, per the
// invariant that an ETA is never fabricated from insufficient data.
func (r *Reporter) Snapshot() ExtendedProgress {
	r.mu.Lock()
	defer r.mu.Unlock()

	phaseElapsed := make(map[Phase]time.Duration, len(r.phaseElapsed)+1)
	for p, d := range r.phaseElapsed {
		phaseElapsed[p] = d
	}
	if start, ok := r.phaseStart[r.phase]; ok {
		phaseElapsed[r.phase] += time.Duration(r.now().UnixMilli()-start) * time.Millisecond
	}

	perSource := make(map[string]int64, len(r.perSource))
	for k, v := range r.perSource {
		perSource[k] = v
	}
	perSegment := make(map[int]int64, len(r.perSegment))
	for k, v := range r.perSegment {
		perSegment[k] = v
	}

	rate := int64(r.emaRate)

	ep := ExtendedProgress{
		Progress: Progress{
			Phase:      r.phase,
			BytesDone:  r.bytesDone,
			TotalBytes: r.totalBytes,
			RetryCount: r.retryCount,
		},
		RateBPS:       rate,
		PhaseElapsed:  phaseElapsed,
		PerSource:     perSource,
		PerSegment:    perSegment,
		PeakRateBPS:   r.peakRate,
		Reconnections: r.reconnect,
	}

	if rate > 0 && r.totalBytes > 0 {
		remaining := r.totalBytes - r.bytesDone
		if remaining < 0 {
			remaining = 0
		}
		ep.ETA = time.Duration(float64(remaining)/float64(rate)) * time.Second
		ep.ETAKnown = true
	}

	return ep
}
