package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/pulith-dev/pulith/internal/perr"
)

// classify converts a transport-level error (from http.Client.Do) into the
// shared perr taxonomy, generalized from tdm's pkg/http.ClassifyError.
// Context cancellation is left unwrapped so callers can distinguish caller-
// initiated cancellation from a genuine timeout.
func classify(err error, url string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	// net/http wraps CheckRedirect's returned error (already classified, e.g.
	// perr.NewTooManyRedirects) in a *url.Error; unwrap and pass it through
	// unchanged rather than reclassifying it as a generic network error.
	var perrErr *perr.Error
	if errors.As(err, &perrErr) {
		return perrErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return perr.NewTimeout(perr.TimeoutConnect, err, url)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return perr.NewNetwork(err, url, 0, true)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return perr.NewTimeout(perr.TimeoutRead, err, url)
		}
		return perr.NewNetwork(err, url, 0, true)
	}

	return perr.NewNetwork(err, url, 0, true)
}

// classifyStatus maps an HTTP status code into the shared error taxonomy,
// generalized from tdm's ClassifyHTTPError. 5xx and the select
// 4xx codes 408/429 are transient; every other 4xx is permanent.
func classifyStatus(statusCode int, url string) error {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return perr.NewNetwork(New5xxError(statusCode), url, statusCode, true)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests:
		return perr.NewNetwork(New5xxError(statusCode), url, statusCode, true)
	case statusCode >= http.StatusBadRequest:
		return perr.NewNetwork(New5xxError(statusCode), url, statusCode, false)
	default:
		return nil
	}
}

// New5xxError builds a plain error describing an HTTP status code (any
// code, not only 5xx), a tiny unexported struct that composes cleanly with
// perr.Error's Unwrap chain.
func New5xxError(statusCode int) error {
	return &statusError{code: statusCode}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}

// IsRedirect reports whether code is a 3xx the client's follow policy
// treats as a redirect.
func IsRedirect(code int) bool {
	return code >= 300 && code < 400
}
