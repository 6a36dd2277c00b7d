package netx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("boom")))
	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}))
}

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	calls := 0
	rt := &retryTransport{
		base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
			}
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
		maxRetries: 3,
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.test", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	calls := 0
	rt := &retryTransport{
		base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, errors.New("tls: bad certificate")
		}),
		maxRetries: 3,
		backoff:    time.Millisecond,
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.test", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBuildHTTPClientWithoutRetries(t *testing.T) {
	c := BuildHTTPClient(NoRetryOptions(7 * time.Second))
	assert.Equal(t, 7*time.Second, c.Timeout)
	_, isRetry := c.Transport.(*retryTransport)
	assert.False(t, isRetry)

	c = BuildHTTPClient(TelegramOptions())
	_, isRetry = c.Transport.(*retryTransport)
	assert.True(t, isRetry)
}
