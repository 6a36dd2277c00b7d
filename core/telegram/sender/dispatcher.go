// Package sender runs outbound Bot API calls on a small worker pool so update
// handlers return before Telegram answers.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/leadbot/core/logger"
	"github.com/m3rciful/leadbot/core/netx"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when every slot is taken.
	ErrQueueFull = errors.New("telegram sender: queue full")

	botToken = regexp.MustCompile(`bot\d+:[\w-]+`)
	apiCode  = regexp.MustCompile(`\((\d{3})\)\s*$`)
)

// Options sizes the pool. Zero values fall back to the defaults in NewDispatcher.
type Options struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	// RetryBackoff grows linearly: attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration
	// MaxDuration caps one job including its retries.
	MaxDuration time.Duration
}

type job struct {
	ctx    context.Context
	action string
	run    func() error
}

// Dispatcher delivers queued sends, retrying transient network failures.
type Dispatcher struct {
	opts     Options
	queue    chan job
	mu       sync.RWMutex
	closed   bool
	workers  sync.WaitGroup
	failures atomic.Uint64
}

// NewDispatcher starts opts.Workers goroutines reading one bounded queue.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	opts.MaxRetries = max(opts.MaxRetries, 0)
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{opts: opts, queue: make(chan job, opts.QueueSize)}
	for range opts.Workers {
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			for j := range d.queue {
				d.deliver(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run may be called more than once,
// so it has to resume where a failed attempt stopped.
func (d *Dispatcher) Enqueue(ctx context.Context, action string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil job")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- job{ctx: ctx, action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending is the number of jobs waiting for a worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Failures is the number of jobs dropped after their last attempt.
func (d *Dispatcher) Failures() uint64 {
	return d.failures.Load()
}

// Close stops accepting jobs and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) deliver(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// Sends outlive the update that queued them.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			logger.Debug(ctx, "tg.sender", "send.done",
				slog.String("action", j.action),
				slog.Int("attempt", attempt),
				slog.Duration("duration", logger.Took(start)),
			)
			return
		}
		if attempt == attempts || !netx.ShouldRetry(err) {
			break
		}
		wait := time.Duration(attempt) * d.opts.RetryBackoff
		logger.Debug(ctx, "tg.sender", "send.retry",
			slog.String("action", j.action),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
		)
		if !sleep(runCtx, wait) {
			err = errors.Join(err, runCtx.Err())
			break
		}
	}

	d.failures.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail",
		slog.String("action", j.action),
		slog.String("err", redact(err)),
		slog.String("err_kind", classifyError(err)),
		slog.Duration("duration", logger.Took(start)),
	)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// classifyError buckets a send failure for dashboards.
func classifyError(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	var opErr *net.OpError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr) && !dnsErr.IsTimeout:
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	}
	switch code := statusCode(err); {
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// statusCode recovers the HTTP status of a Bot API error.
func statusCode(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	if m := apiCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// redact strips the bot token telebot embeds in request URLs.
func redact(err error) string {
	if err == nil {
		return ""
	}
	return botToken.ReplaceAllString(err.Error(), "bot<redacted>")
}
