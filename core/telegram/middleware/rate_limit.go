package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/leadbot/core/logger"
	tghelpers "github.com/m3rciful/leadbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two accepted updates of one user.
	Interval time.Duration
	// Exclude lists update kinds ("callback", "message") that bypass the limit.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now overrides the clock in tests.
	Now func() time.Time
}

const pruneThreshold = 1024

// RateLimitMiddleware drops updates arriving less than opts.Interval after the
// previous accepted update of the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
	)
	allow := func(userID int64, at time.Time) bool {
		mu.Lock()
		defer mu.Unlock()
		if last, ok := lastSeen[userID]; ok && at.Sub(last) < opts.Interval {
			return false
		}
		lastSeen[userID] = at
		if len(lastSeen) > pruneThreshold {
			for id, ts := range lastSeen {
				if at.Sub(ts) > 10*opts.Interval {
					delete(lastSeen, id)
				}
			}
		}
		return true
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip || allow(user.ID, now()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "skip"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
