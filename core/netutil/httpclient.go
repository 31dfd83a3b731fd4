package netutil

import (
	"io"
	"net"
	"net/http"
	"time"
)

const (
	dialTimeout      = 5 * time.Second
	keepAlive        = 30 * time.Second
	handshakeTimeout = 5 * time.Second
	headerTimeout    = 10 * time.Second
	idleTimeout      = 30 * time.Second

	defaultTimeout = 30 * time.Second
	defaultRetries = 3
	defaultBackoff = 2 * time.Second

	// drained before a retried response is closed so the connection is reused
	drainLimit = 64 << 10
)

// ClientOptions tunes NewHTTPClient. Zero values select defaults; a
// negative MaxRetries disables retries.
type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	// RetryStatus also retries idempotent requests answered with 502, 503 or 504.
	RetryStatus bool
}

// NewHTTPClient returns a client with pooled connections and tight dial,
// handshake and header timeouts, retrying transient network failures.
func NewHTTPClient(opts ClientOptions) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext
	base.MaxIdleConnsPerHost = 10
	base.IdleConnTimeout = idleTimeout
	base.TLSHandshakeTimeout = handshakeTimeout
	base.ResponseHeaderTimeout = headerTimeout

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	switch {
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &RetryTransport{
			Base:        base,
			MaxRetries:  opts.MaxRetries,
			Backoff:     opts.Backoff,
			RetryStatus: opts.RetryStatus,
		},
	}
}

// RetryTransport repeats a round trip that failed with a transient error,
// and optionally one answered with a gateway status. The wait before
// attempt n+1 is n*Backoff.
type RetryTransport struct {
	Base        http.RoundTripper
	MaxRetries  int
	Backoff     time.Duration
	RetryStatus bool
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	last := max(t.MaxRetries, 0) + 1

	for attempt := 1; ; attempt++ {
		resp, err := base.RoundTrip(req)
		if attempt == last || !t.retry(req, resp, err) {
			return resp, err
		}
		discard(resp)

		if !pause(req, t.Backoff*time.Duration(attempt)) {
			return nil, req.Context().Err()
		}
		if req, err = rewind(req); err != nil {
			return nil, err
		}
	}
}

func (t *RetryTransport) retry(req *http.Request, resp *http.Response, err error) bool {
	if !replayable(req) {
		return false
	}
	if err != nil {
		return ShouldRetry(err)
	}
	return t.RetryStatus && idempotent(req.Method) && ShouldRetryStatus(resp.StatusCode)
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// rewind returns a copy of req with a fresh body for the next attempt.
func rewind(req *http.Request) (*http.Request, error) {
	if req.GetBody == nil {
		return req.Clone(req.Context()), nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next := req.Clone(req.Context())
	next.Body = body
	return next, nil
}

// pause waits d or until the request context ends.
func pause(req *http.Request, d time.Duration) bool {
	if d <= 0 {
		return req.Context().Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}

func idempotent(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}
