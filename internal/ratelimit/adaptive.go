package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/pulith-dev/pulith/internal/logger"
)

// AdaptiveConfig tunes the congestion-response law; see DESIGN.md for the
// chosen constants: halve the rate when effective throughput falls to or
// below half of what was configured over a measurement window, otherwise
// grow by 10% of the original ceiling, never exceeding it.
type AdaptiveConfig struct {
	// Window is how much admitted-byte history check checks over.
	Window time.Duration
	// CongestionThreshold: effective/configured <= this ratio is
	// considered congested.
	CongestionThreshold float64
	// DecreaseFactor multiplies the rate down on congestion.
	DecreaseFactor float64
	// IncreaseFraction of the ceiling added back per healthy window.
	IncreaseFraction float64
	// Floor is the minimum rate adjustment will ever reach.
	Floor int64
}

// DefaultAdaptiveConfig returns the AIMD law chosen in DESIGN.md.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Window:               2 * time.Second,
		CongestionThreshold:  0.5,
		DecreaseFactor:       0.5,
		IncreaseFraction:     0.10,
		Floor:                1,
	}
}

type sample struct {
	at    time.Time
	bytes int64
}

// AdaptiveTokenBucket wraps a TokenBucket, tracking admitted-byte history
// and reacting to sustained congestion by shrinking the rate, then probing
// back upward once throughput recovers.
type AdaptiveTokenBucket struct {
	*TokenBucket

	cfg     AdaptiveConfig
	ceiling int64

	mu        sync.Mutex
	history   []sample
	congested bool
}

// NewAdaptiveTokenBucket creates an adaptive bucket whose rate will never
// be pushed back above ratePerSec (the configured ceiling), only below it.
func NewAdaptiveTokenBucket(capacity, ratePerSec int64, cfg AdaptiveConfig) *AdaptiveTokenBucket {
	return &AdaptiveTokenBucket{
		TokenBucket: NewTokenBucket(capacity, ratePerSec),
		cfg:         cfg,
		ceiling:     ratePerSec,
	}
}

// Acquire records the admitted bytes for congestion sampling, then behaves
// exactly like TokenBucket.Acquire. It never calls rate adjustment itself;
// CheckAndAdjustRate is a separate, explicit operation so a non-adaptive
// basic bucket and this one can share the same acquire semantics.
func (a *AdaptiveTokenBucket) Acquire(ctx context.Context, n int64) error {
	if err := a.TokenBucket.Acquire(ctx, n); err != nil {
		return err
	}

	a.record(n)
	return nil
}

func (a *AdaptiveTokenBucket) record(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	a.history = append(a.history, sample{at: now, bytes: n})
	a.pruneLocked(now)
}

func (a *AdaptiveTokenBucket) pruneLocked(now time.Time) {
	cutoff := now.Add(-a.cfg.Window)

	i := 0
	for ; i < len(a.history); i++ {
		if a.history[i].at.After(cutoff) {
			break
		}
	}
	a.history = a.history[i:]
}

// CheckAndAdjustRate samples recent effective throughput against the
// configured ceiling and multiplicatively decreases the rate when
// congested, or additively increases it back toward the ceiling otherwise.
func (a *AdaptiveTokenBucket) CheckAndAdjustRate() {
	a.mu.Lock()
	now := time.Now()
	a.pruneLocked(now)

	var total int64
	for _, s := range a.history {
		total += s.bytes
	}

	window := a.cfg.Window.Seconds()
	if window <= 0 {
		window = 1
	}
	effective := float64(total) / window

	current := a.TokenBucket.CurrentRate()
	congested := effective <= a.cfg.CongestionThreshold*float64(a.ceiling)

	var next int64
	if congested {
		next = int64(float64(current) * a.cfg.DecreaseFactor)
		if next < a.cfg.Floor {
			next = a.cfg.Floor
		}
		a.congested = true
	} else {
		increase := int64(float64(a.ceiling) * a.cfg.IncreaseFraction)
		next = current + increase
		if next > a.ceiling {
			next = a.ceiling
		}
		a.congested = false
	}
	a.mu.Unlock()

	if next != current {
		logger.Debugf("adaptive rate limiter: effective=%.0fB/s current=%dB/s -> %dB/s (congested=%v)",
			effective, current, next, congested)
		a.TokenBucket.SetRate(next)
	}
}

// Congested reports whether the last CheckAndAdjustRate call classified
// the bucket as congested.
func (a *AdaptiveTokenBucket) Congested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.congested
}
