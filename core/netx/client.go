// Package netx builds the outbound HTTP clients used for Telegram, Bitrix24 and AI providers.
package netx

import (
	"context"
	"net"
	"net/http"
	"time"
)

// ClientOptions tunes BuildHTTPClient. Zero Retries disables retrying.
type ClientOptions struct {
	Timeout         time.Duration
	ResponseTimeout time.Duration
	Retries         int
	Backoff         time.Duration
}

// TelegramOptions matches the Bot API: short headers, a few retries on transient dial errors.
func TelegramOptions() ClientOptions {
	return ClientOptions{
		Timeout:         30 * time.Second,
		ResponseTimeout: 5 * time.Second,
		Retries:         3,
		Backoff:         2 * time.Second,
	}
}

// NoRetryOptions is used for CRM and AI calls, which must not be repeated automatically.
func NoRetryOptions(timeout time.Duration) ClientOptions {
	return ClientOptions{Timeout: timeout}
}

// BuildHTTPClient returns a client over a pooled transport, wrapped in a
// retrying round tripper when opts.Retries > 0.
func BuildHTTPClient(opts ClientOptions) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	tr.DialContext = dialer.DialContext
	tr.TLSHandshakeTimeout = 5 * time.Second
	tr.IdleConnTimeout = 30 * time.Second
	tr.MaxIdleConnsPerHost = 10
	tr.ResponseHeaderTimeout = opts.ResponseTimeout

	client := &http.Client{Timeout: opts.Timeout, Transport: tr}
	if opts.Retries > 0 {
		client.Transport = &retryTransport{base: tr, maxRetries: opts.Retries, backoff: opts.Backoff}
	}
	return client
}

// retryTransport repeats requests that failed before reaching the server.
// Requests whose body cannot be replayed are tried once.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	ctx := req.Context()

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.maxRetries && ShouldRetry(err); attempt++ {
		if req.Body != nil && req.GetBody == nil {
			break
		}
		if !wait(ctx, time.Duration(attempt)*t.backoff) {
			return nil, ctx.Err()
		}
		retry := req.Clone(ctx)
		if req.GetBody != nil {
			if retry.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
		resp, err = base.RoundTrip(retry)
	}
	return resp, err
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
