package middleware

import (
	"log/slog"

	"github.com/m3rciful/leadbot/core/logger"
	"github.com/m3rciful/leadbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/leadbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware prepares the update's log context and logs its receipt.
// It runs once per update even when several route groups install it.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if tghelpers.HasContext(c) {
			return next(c)
		}
		ctx := tghelpers.BuildContext(c)

		upd := c.Update()
		attrs := []slog.Attr{slog.String("kind", updateKind(upd))}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
		}
		switch {
		case upd.Callback != nil:
			key, _ := callbacks.ParseCallbackData(upd.Callback)
			attrs = append(attrs, slog.String("action", logger.Clip(key, 64)))
		case upd.Message != nil:
			attrs = append(attrs, slog.String("text", logger.Clip(c.Text(), 256)))
		}
		logger.Debug(ctx, "tg", "update.received", attrs...)

		return next(c)
	}
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}
