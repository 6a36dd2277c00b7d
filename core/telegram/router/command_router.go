// Package router turns the registry into telebot routes with per-update
// summary logging.
package router

import (
	"context"
	"log/slog"

	"github.com/m3rciful/leadbot/core/logger"
	tg "github.com/m3rciful/leadbot/core/telegram"
	"github.com/m3rciful/leadbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes returns one route per registered command.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for name, cmd := range cmds {
		h := cmd.Handler
		handler := func(c tele.Context) error {
			return served(c, handlerName("", name), func() error { return h(c) })
		}
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		})
	}
	logger.Info(context.Background(), "tg.wire", "routes.commands",
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
