package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares is the global chain: panic recovery, the per-user rate
// limit when configured, then update logging. onLimited answers a throttled
// update; nil drops it silently.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited tele.HandlerFunc) []Middleware {
	chain := []Middleware{{Name: "recover", Use: middleware.RecoverMiddleware}}
	if limit := rateLimitOptions(cfg); limit.Interval > 0 {
		limit.OnLimited = onLimited
		chain = append(chain, Middleware{Name: "rate_limit", Use: middleware.RateLimitMiddleware(limit)})
	}
	return append(chain, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})
}

func rateLimitOptions(cfg *coreconfig.Config) middleware.RateLimitOptions {
	if cfg == nil || cfg.RateLimit.IntervalMS <= 0 {
		return middleware.RateLimitOptions{}
	}
	skip := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
	for _, kind := range cfg.RateLimit.ExcludeUpdates {
		skip[strings.ToLower(strings.TrimSpace(kind))] = struct{}{}
	}
	return middleware.RateLimitOptions{
		Interval: time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
		Exclude:  skip,
	}
}
