package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pulith-dev/pulith/internal/logger"
	"github.com/pulith-dev/pulith/internal/perr"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	maxIdleConns          = 100
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxConnsPerHost       = 16

	defaultRedirectLimit = 10

	DefaultUserAgent = "pulith/1.0"
)

// HTTPClient implements Client against a real net/http transport, tuned
// the way tdm's pkg/http.NewClient tunes its http.Transport.
type HTTPClient struct {
	client        *http.Client
	redirectLimit int
}

// NewHTTPClient builds an HTTPClient. redirectLimit <= 0 uses the default
// of 10, bounding redirect follow chains.
func NewHTTPClient(redirectLimit int) *HTTPClient {
	if redirectLimit <= 0 {
		redirectLimit = defaultRedirectLimit
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultConnectTimeout,
			KeepAlive: keepAlivePeriod,
		}).DialContext,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       defaultIdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		DisableCompression:    true,
		MaxConnsPerHost:       maxConnsPerHost,
	}

	c := &HTTPClient{redirectLimit: redirectLimit}
	c.client = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= c.redirectLimit {
				return perr.NewTooManyRedirects(req.URL.String(), c.redirectLimit)
			}
			return nil
		},
	}

	return c
}

func (c *HTTPClient) newRequest(ctx context.Context, method, url string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return nil, perr.NewInvalidURL(url)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (c *HTTPClient) Head(ctx context.Context, url string, headers map[string]string) (Meta, error) {
	req, err := c.newRequest(ctx, http.MethodHead, url, headers)
	if err != nil {
		return Meta{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Meta{}, classify(err, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Meta{}, classifyStatus(resp.StatusCode, url)
	}

	return metaFromResponse(resp), nil
}

func (c *HTTPClient) GetRange(ctx context.Context, url string, start, end int64, headers map[string]string) (io.ReadCloser, Meta, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, headers)
	if err != nil {
		return nil, Meta{}, err
	}

	req.Header.Set("Range", "bytes="+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Meta{}, classify(err, url)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, Meta{}, classifyStatus(resp.StatusCode, url)
	}

	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		logger.Warnf("server ignored range request for %s (status %d)", url, resp.StatusCode)
		return nil, Meta{}, perr.NewRangeUnsupported(url)
	}

	return resp.Body, metaFromResponse(resp), nil
}

func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, Meta, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, headers)
	if err != nil {
		return nil, Meta{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Meta{}, classify(err, url)
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return nil, Meta{StatusCode: resp.StatusCode}, nil
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, Meta{}, classifyStatus(resp.StatusCode, url)
	}

	return resp.Body, metaFromResponse(resp), nil
}

func metaFromResponse(resp *http.Response) Meta {
	return Meta{
		TotalBytes:   resp.ContentLength,
		AcceptRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		StatusCode:   resp.StatusCode,
	}
}
