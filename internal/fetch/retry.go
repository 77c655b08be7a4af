package fetch

import (
	"math/rand"
	"time"

	"github.com/pulith-dev/pulith/internal/perr"
	"github.com/pulith-dev/pulith/internal/ratelimit"
)

// IsTransient reports whether err is retryable per the shared perr
// taxonomy, generalized from tdm's isRetryableError.
func IsTransient(err error) bool {
	return perr.IsRetryable(err)
}

// retryDelay computes the backoff before retrying attempt (0-indexed):
// min(base * 2^attempt, max), optionally perturbed by uniform jitter in
// [0, 100ms].
func retryDelay(attempt int, base, max time.Duration, jitter bool) time.Duration {
	if base <= 0 {
		base = time.Second
	}

	delay := base << uint(attempt)
	if delay <= 0 || (max > 0 && delay > max) {
		delay = max
	}

	if jitter {
		delay += time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
	}

	return delay
}

// effectiveBucket picks the throttle a strategy should read through: a
// Fetcher-wide shared bucket takes precedence (it's meant to cap aggregate
// throughput across calls); absent one, a per-call BandwidthCapBPS builds a
// one-off bucket scoped to this single fetch. Returns nil if neither is set,
// meaning unthrottled.
func effectiveBucket(shared ratelimit.Bucket, capBPS int64) ratelimit.Bucket {
	if shared != nil {
		return shared
	}
	if capBPS > 0 {
		return ratelimit.NewTokenBucket(capBPS, capBPS)
	}
	return nil
}
