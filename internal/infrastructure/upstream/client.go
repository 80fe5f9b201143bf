// Package upstream provides the HTTP client used to reach provider APIs.
package upstream

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client wraps an http.Client tuned for long-lived streaming upstreams and
// exposes a context-cancellation watchdog for in-flight bodies.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// Config controls transport-level timeouts. Zero values fall back to
// production defaults.
type Config struct {
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.TLSHandshakeTimeout == 0 {
		c.TLSHandshakeTimeout = 15 * time.Second
	}
	if c.ResponseHeaderTimeout == 0 {
		c.ResponseHeaderTimeout = 300 * time.Second
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = 5
	}
	return c
}

// New builds a Client with connection pooling and TLS 1.2+ enforced.
func New(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// Request is the minimal description of an upstream call. Headers are
// applied verbatim; callers are responsible for auth headers and body
// framing (the dispatcher reads the inbound body once and replays it here).
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   io.Reader
}

// Do issues the request and returns the raw response. The caller owns
// resp.Body and must close it. When ctx is cancelled while the body is
// still being streamed, WatchCancellation should be used to close it early.
func (c *Client) Do(ctx context.Context, req Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: do request: %w", err)
	}
	return resp, nil
}

// WatchCancellation closes resp.Body as soon as ctx is done, unless
// streamDone fires first. It must be run in its own goroutine for the
// duration of a streaming read loop.
func (c *Client) WatchCancellation(ctx context.Context, resp *http.Response, streamDone <-chan struct{}) {
	select {
	case <-ctx.Done():
		c.logger.Info("closing upstream body on context cancellation", zap.Error(ctx.Err()))
		resp.Body.Close()
	case <-streamDone:
	}
}
