package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulith-dev/pulith/internal/perr"
	"github.com/pulith-dev/pulith/internal/transport"
)

func TestHTTPClientHead(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Content-Length", "42")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := transport.NewHTTPClient(0)
	meta, err := c.Head(context.Background(), ts.URL, nil)
	require.NoError(t, err)
	require.True(t, meta.AcceptRanges)
	require.Equal(t, `"abc"`, meta.ETag)
}

func TestHTTPClientHeadNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer ts.Close()

	c := transport.NewHTTPClient(0)
	_, err := c.Head(context.Background(), ts.URL, nil)
	require.Error(t, err)

	kind, ok := perr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, perr.KindNetwork, kind)
	require.False(t, perr.IsRetryable(err), "404 is a permanent error")
}

func TestHTTPClientGetRangeSupported(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bytes=0-9", r.Header.Get("Range"))
		w.Header().Set("Content-Range", "bytes 0-9/20")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("0123456789"))
	}))
	defer ts.Close()

	c := transport.NewHTTPClient(0)
	body, meta, err := c.GetRange(context.Background(), ts.URL, 0, 9, nil)
	require.NoError(t, err)
	defer body.Close()
	require.Equal(t, 206, meta.StatusCode)
}

func TestHTTPClientGetRangeUnsupportedServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("whole body, ignored the range"))
	}))
	defer ts.Close()

	c := transport.NewHTTPClient(0)
	_, _, err := c.GetRange(context.Background(), ts.URL, 0, 9, nil)
	require.Error(t, err)
	kind, ok := perr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, perr.KindRangeUnsupported, kind)
}

func TestHTTPClientGetHonorsConditionalNotModified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("body"))
	}))
	defer ts.Close()

	c := transport.NewHTTPClient(0)
	body, meta, err := c.Get(context.Background(), ts.URL, map[string]string{"If-None-Match": `"v1"`})
	require.NoError(t, err)
	require.Nil(t, body)
	require.Equal(t, http.StatusNotModified, meta.StatusCode)
}

func TestHTTPClientRejectsTooManyRedirects(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/", http.StatusFound)
	}))
	defer ts.Close()

	c := transport.NewHTTPClient(2)
	_, err := c.Head(context.Background(), ts.URL, nil)
	require.Error(t, err)
	kind, ok := perr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, perr.KindTooManyRedirects, kind)
}
