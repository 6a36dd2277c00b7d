package router

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/leadbot/core/conversation"
	"github.com/m3rciful/leadbot/core/logger"
	tghelpers "github.com/m3rciful/leadbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

var nowFunc = time.Now

// served runs fn as the named handler and logs one summary line for the
// update. A nil fn logs the update as skipped.
func served(c tele.Context, name string, fn func() error, extra ...slog.Attr) error {
	start := nowFunc()
	ctx := tghelpers.WithHandler(c, name)

	var err error
	status := "skip"
	if fn != nil {
		err = fn()
		status = logger.Status(err)
	}

	queued, kb := tghelpers.Queued(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.Int("queued", queued),
		slog.Bool("kb", kb),
		slog.Duration("duration", nowFunc().Sub(start)),
	}, extra...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.Clip(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
		logger.Warn(ctx, "tg", "handler.handled", attrs...)
		return err
	}
	logger.Info(ctx, "tg", "handler.handled", attrs...)
	return nil
}

// handlerName turns a command or callback key into a log-friendly name.
func handlerName(prefix, key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		key = "unknown"
	}
	return prefix + strings.ReplaceAll(key, " ", "_")
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, conversation.ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	case errors.Is(err, conversation.ErrMalformedInbound):
		return "MALFORMED_INBOUND"
	case errors.Is(err, conversation.ErrChannelMismatch):
		return "CHANNEL_MISMATCH"
	}
	return "HANDLER_ERROR"
}
