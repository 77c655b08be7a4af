package fetch_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulith-dev/pulith/internal/fetch"
	"github.com/pulith-dev/pulith/internal/perr"
)

func TestRetryPolicyOnlyRetriesTransientWithinBudget(t *testing.T) {
	p := fetch.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}

	transient := perr.NewNetwork(errors.New("boom"), "u", 503, true)
	permanent := perr.NewInvalidURL("u")

	require.True(t, p.ShouldRetry(transient, 0))
	require.True(t, p.ShouldRetry(transient, 1))
	require.False(t, p.ShouldRetry(transient, 2), "attempt has reached MaxAttempts")

	require.False(t, p.ShouldRetry(permanent, 0), "permanent errors are never retried")
	require.False(t, p.ShouldRetry(nil, 0))
}
