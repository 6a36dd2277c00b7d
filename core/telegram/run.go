package telegram

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/logger"
	"github.com/m3rciful/leadbot/core/netx"
	tghelpers "github.com/m3rciful/leadbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/leadbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const defaultAPIURL = "https://api.telegram.org"

// Middleware is a named global middleware, applied with bot.Use in order.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds one telebot endpoint (a command, tele.OnText, a media kind) to a handler.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions wires a bot for RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Bot is built from Config when nil.
	Bot *tele.Bot
	// Sender sizes the outbound queue; zero values take its defaults.
	Sender tgsender.Options

	Middlewares []Middleware
	Routes      []Route
}

// NewBot builds the bot with the configured poller and a retrying HTTP client.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config")
	}
	hold := longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)

	// getUpdates keeps the response open for the whole long poll.
	httpOpts := netx.TelegramOptions()
	httpOpts.ResponseTimeout += hold
	httpOpts.Timeout += hold

	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  newPoller(cfg),
		Client:  netx.BuildHTTPClient(httpOpts),
		OnError: reportHandlerError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return bot, nil
}

func reportHandlerError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "tg.handler_error", slog.String("err", logger.Clip(err.Error(), 256)))
}

// RunTelegram serves updates until ctx is cancelled, then drains the send queue.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	bot := opts.Bot
	if bot == nil {
		var err error
		if bot, err = NewBot(cfg); err != nil {
			return err
		}
	}

	queue := tgsender.NewDispatcher(opts.Sender)
	tghelpers.SetDispatcher(queue)
	defer func() {
		logger.Info(context.Background(), "tg", "tg.stop",
			slog.Int("pending_sends", queue.Pending()),
			slog.Uint64("failed_sends", queue.Failures()),
		)
		queue.Close()
		tghelpers.SetDispatcher(nil)
	}()

	announceMode(ctx, bot, cfg)

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	SetupCommands(bot, reg)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		bot.Start()
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		bot.Stop()
		<-stopped
	}
	if err := ctx.Err(); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// announceMode logs how updates arrive and, for long polling, clears a
// webhook left behind by an earlier deployment.
func announceMode(ctx context.Context, bot *tele.Bot, cfg *coreconfig.Config) {
	if hook, ok := bot.Poller.(*tele.Webhook); ok {
		logger.Info(ctx, "tg", "tg.mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", hook.Listen),
			slog.String("public_url", hook.Endpoint.PublicURL),
		)
		return
	}
	logger.Info(ctx, "tg", "tg.mode",
		slog.String("mode", coreconfig.RunModeLongpoll),
		slog.Duration("poll", longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)),
	)
	err := deleteWebhook(ctx, bot.URL, cfg.Telegram.Token)
	level := logger.Info
	if err != nil {
		level = logger.Warn
	}
	level(ctx, "tg", "tg.webhook_cleared",
		slog.String("status", logger.Status(err)),
		slog.Any("err", err),
	)
}

func deleteWebhook(ctx context.Context, apiURL, token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("empty token")
	}
	base := cmp.Or(strings.TrimRight(apiURL, "/"), defaultAPIURL)
	form := url.Values{"drop_pending_updates": {"false"}}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/bot"+token+"/deleteWebhook", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := netx.BuildHTTPClient(netx.NoRetryOptions(5 * time.Second)).Do(req)
	if err != nil {
		// The request URL carries the token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("deleteWebhook: %w", uerr.Err)
		}
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook: %s", resp.Status)
	}
	return nil
}

