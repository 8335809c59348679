package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrTransport = errors.New("rpc transport failed")

// TransportError is returned once the proxy and the direct fallback have
// both failed. Err is the last underlying cause.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc transport failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// ProxyStatusError is a proxy answering 407 to a plain-HTTP request.
type ProxyStatusError struct {
	StatusCode int
	Status     string
}

func (e *ProxyStatusError) Error() string {
	return "proxy refused request: " + e.Status
}

// ProxyMetrics is satisfied by *metrics.Metrics.
type ProxyMetrics interface {
	ProxyRetry()
	ProxyFallback()
}

type TransportOptions struct {
	MaxAttempts int
	Backoff     time.Duration
	// AttemptTimeout bounds each proxied attempt and the direct fallback
	// separately. Zero leaves only the request context.
	AttemptTimeout time.Duration
	Sleep          func(ctx context.Context, d time.Duration) error
	IsProxyError   func(error) bool
	Metrics        ProxyMetrics
	Log            *zap.Logger
}

// Transport sends through the forward proxy and retries proxy failures.
// After MaxAttempts proxy failures the proxy is disabled for the rest of the
// Transport's lifetime and the request goes out once more directly.
type Transport struct {
	Proxied http.RoundTripper
	Direct  http.RoundTripper

	opts     TransportOptions
	proxyURL *url.URL
	disabled atomic.Bool
}

// NewTransport builds proxied and direct http.Transports. A nil proxy yields
// a Transport that always goes direct.
func NewTransport(proxy *url.URL, opts TransportOptions) *Transport {
	direct := http.DefaultTransport.(*http.Transport).Clone()
	direct.Proxy = nil
	var proxied http.RoundTripper
	if proxy != nil {
		p := http.DefaultTransport.(*http.Transport).Clone()
		p.Proxy = http.ProxyURL(proxy)
		proxied = p
	}
	t := NewTransportWith(proxied, direct, opts)
	t.proxyURL = proxy
	return t
}

func NewTransportWith(proxied, direct http.RoundTripper, opts TransportOptions) *Transport {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.IsProxyError == nil {
		opts.IsProxyError = IsProxyError
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if direct == nil {
		direct = http.DefaultTransport
	}
	return &Transport{Proxied: proxied, Direct: direct, opts: opts}
}

func (t *Transport) ProxyDisabled() bool {
	return t.Proxied == nil || t.disabled.Load()
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	if t.ProxyDisabled() {
		return t.attempt(t.Direct, req)
	}

	var lastErr error
	for attempt := 1; attempt <= t.opts.MaxAttempts; attempt++ {
		resp, err := t.attempt(t.Proxied, req)
		if err == nil && resp.StatusCode == http.StatusProxyAuthRequired {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			err = &ProxyStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		}
		if err == nil {
			return resp, nil
		}
		// A proxied attempt that hit its own deadline counts as a proxy
		// failure; the caller's context ending does not.
		attemptTimedOut := errors.Is(err, context.DeadlineExceeded) && req.Context().Err() == nil
		if !attemptTimedOut && !t.opts.IsProxyError(err) {
			return nil, err
		}
		lastErr = err
		t.opts.Log.Warn("proxy request failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", t.opts.MaxAttempts),
			zap.String("proxy", t.proxyHost()),
			zap.Error(err),
		)
		if t.opts.Metrics != nil {
			t.opts.Metrics.ProxyRetry()
		}
		if attempt == t.opts.MaxAttempts {
			break
		}
		if err := t.opts.Sleep(req.Context(), t.opts.Backoff); err != nil {
			return nil, err
		}
	}

	t.disableProxy(lastErr)
	resp, err := t.attempt(t.Direct, req)
	if err != nil {
		return nil, &TransportError{Attempts: t.opts.MaxAttempts + 1, Err: err}
	}
	return resp, nil
}

func (t *Transport) disableProxy(cause error) {
	if !t.disabled.CompareAndSwap(false, true) {
		return
	}
	t.opts.Log.Warn("proxy disabled, continuing without it",
		zap.String("proxy", t.proxyHost()),
		zap.NamedError("cause", cause),
	)
	if t.opts.Metrics != nil {
		t.opts.Metrics.ProxyFallback()
	}
}

func (t *Transport) proxyHost() string {
	if t.proxyURL == nil {
		return ""
	}
	return t.proxyURL.Host
}

// IsProxyError reports failures that originate at the proxy rather than the
// RPC node.
func IsProxyError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *ProxyStatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return true
	}
	// CONNECT refusals for https targets surface as the proxy's status text.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "proxyconnect") ||
		strings.Contains(msg, "proxy authentication required") ||
		strings.Contains(msg, "socks connect")
}

// rewindable returns req itself when its body can be replayed, otherwise a
// clone carrying a buffered copy. The caller's request is never modified.
func rewindable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(b))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	return out, nil
}

// attempt sends a fresh copy of req through rt under AttemptTimeout. The
// attempt's context is released when the response body is closed.
func (t *Transport) attempt(rt http.RoundTripper, req *http.Request) (*http.Response, error) {
	ctx, cancel := req.Context(), context.CancelFunc(func() {})
	if t.opts.AttemptTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.opts.AttemptTimeout)
	}
	r, err := rewind(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := rt.RoundTrip(r)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.Body == nil {
		cancel()
		return resp, nil
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	r := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		r.Body = body
	}
	return r, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
