package router

import (
	tg "github.com/m3rciful/leadbot/core/telegram"
	"github.com/m3rciful/leadbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextOptions configures TextRoutes.
type TextOptions struct {
	// UnknownMedia answers documents, photos, voice notes and stickers.
	UnknownMedia tele.HandlerFunc
}

// TextRoutes routes plain text. Text naming a registered command or alias
// runs that command; anything else reaches the registry text fallback.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	onText := func(c tele.Context) error {
		if reg == nil {
			return served(c, "text", nil)
		}
		if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
			return served(c, handlerName("", key), func() error { return cmd.Handler(c) })
		}
		var fn func() error
		if fb := reg.TextFallback(); fb != nil {
			fn = func() error { return fb(c) }
		}
		return served(c, "text", fn)
	}

	onMedia := func(c tele.Context) error {
		var fn func() error
		if opts.UnknownMedia != nil {
			fn = func() error { return opts.UnknownMedia(c) }
		}
		return served(c, "unexpected_media", fn)
	}
	media := middleware.RecoverMiddleware(middleware.LoggerMiddleware(onMedia))

	routes := []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(onText)),
	}}
	for _, endpoint := range []string{tele.OnDocument, tele.OnPhoto, tele.OnVoice, tele.OnSticker} {
		routes = append(routes, tg.Route{Endpoint: endpoint, Handler: media})
	}
	return routes
}
