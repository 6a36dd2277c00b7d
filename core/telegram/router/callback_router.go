package router

import (
	"log/slog"

	tg "github.com/m3rciful/leadbot/core/telegram"
	"github.com/m3rciful/leadbot/core/telegram/callbacks"
	"github.com/m3rciful/leadbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute dispatches every inline button press through the registry.
// The press is acknowledged first so the button spinner stops even when the
// handler waits on the language model.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key, _ := callbacks.ParseCallbackData(cb)
		_ = c.Respond()

		h, ok := reg.GetCallback(key)
		if !ok {
			h = reg.CallbackNotFound()
		}
		return served(c, handlerName("callback.", key), func() error { return h(c) },
			slog.String("action", key),
			slog.Bool("known", ok),
		)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
