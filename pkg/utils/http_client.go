package utils

import (
	"net"
	"net/http"
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
)

// ClientConfig tunes the client used for validator and payment gateway calls.
// Non-positive values fall back to the defaults.
type ClientConfig struct {
	// Timeout caps the whole exchange. Callers also bound each call with a context deadline.
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	MaxConnsPerHost       int
	MaxIdleConnsPerHost   int
}

type ClientOption func(*ClientConfig)

func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.Timeout = d }
}

func WithResponseHeaderTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.ResponseHeaderTimeout = d }
}

func WithMaxConnsPerHost(n int) ClientOption {
	return func(c *ClientConfig) { c.MaxConnsPerHost = n }
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.DialTimeout = d }
}

// DefaultClientConfig matches the default DOWNSTREAM_TIMEOUT of 5s.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               5 * time.Second,
		ResponseHeaderTimeout: 3 * time.Second,
		DialTimeout:           time.Second,
		MaxConnsPerHost:       64,
		MaxIdleConnsPerHost:   64,
	}
}

func (c *ClientConfig) applyDefaults() {
	d := DefaultClientConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ResponseHeaderTimeout <= 0 || c.ResponseHeaderTimeout > c.Timeout {
		c.ResponseHeaderTimeout = min(d.ResponseHeaderTimeout, c.Timeout)
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = d.MaxConnsPerHost
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = min(d.MaxIdleConnsPerHost, c.MaxConnsPerHost)
	}
}

// NewHTTPClient builds the downstream client. Every request carries the trace id found on
// its context in the X-Trace-Id header.
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := DefaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		MaxIdleConns:          2 * cfg.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.DialTimeout * 5,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: &TraceTransport{Base: base}, Timeout: cfg.Timeout}
}

// TraceTransport copies the context trace id onto outbound requests that lack one.
type TraceTransport struct {
	Base http.RoundTripper
}

func (t *TraceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	traceID := TraceIDFromContext(req.Context())
	if IsEmpty(traceID) || req.Header.Get(pkg.HeaderTraceId) != "" {
		return t.base().RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set(pkg.HeaderTraceId, traceID)
	return t.base().RoundTrip(clone)
}

func (t *TraceTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
