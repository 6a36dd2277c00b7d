package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer d.Close()

	var calls atomic.Int32
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "send.text", func() error {
		if calls.Add(1) < 3 {
			return timeoutErr{}
		}
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not succeed")
	}
	assert.EqualValues(t, 3, calls.Load())
	assert.Zero(t, d.Failures())
}

func TestDispatcherDoesNotRetryPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	defer d.Close()

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", func() error {
		calls.Add(1)
		return errors.New("telegram: bad request (400)")
	}))

	waitFor(t, func() bool { return d.Failures() == 1 })
	assert.EqualValues(t, 1, calls.Load())
}

func TestDispatcherClosed(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()

	err := d.Enqueue(context.Background(), "send.text", func() error { return nil })
	assert.ErrorIs(t, err, ErrQueueClosed)

	d2 := NewDispatcher(Options{})
	defer d2.Close()
	assert.Error(t, d2.Enqueue(context.Background(), "send.text", nil))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "dns", classifyError(&net.DNSError{Err: "no such host", Name: "api.telegram.org"}))
	assert.Equal(t, "http_4xx", classifyError(&tele.Error{Code: 403, Description: "Forbidden"}))
	assert.Equal(t, "http_5xx", classifyError(errors.New("telegram: internal error (502)")))
	assert.Equal(t, "unknown", classifyError(errors.New("boom")))
}

func TestRetriesStopAtMaxDuration(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 5, RetryBackoff: time.Hour, MaxDuration: 20 * time.Millisecond})
	defer d.Close()

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", func() error {
		calls.Add(1)
		return timeoutErr{}
	}))
	waitFor(t, func() bool { return d.Failures() == 1 })
	assert.EqualValues(t, 1, calls.Load())
}

func TestCloseDrainsQueue(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	var calls atomic.Int32
	for range 5 {
		require.NoError(t, d.Enqueue(context.Background(), "send.text", func() error {
			calls.Add(1)
			return nil
		}))
	}
	d.Close()
	assert.EqualValues(t, 5, calls.Load())
	assert.Zero(t, d.Pending())
}

func TestRedactToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAbb-cc_DD/sendMessage": EOF`)
	msg := redact(err)
	assert.NotContains(t, msg, "AAbb-cc_DD")
	assert.Contains(t, msg, "bot<redacted>")
}
