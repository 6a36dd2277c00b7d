package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/leadbot/core/bootstrap"
	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/conversation"
	"github.com/m3rciful/leadbot/core/logger"
	coretelegram "github.com/m3rciful/leadbot/core/telegram"
	"github.com/m3rciful/leadbot/core/telegram/router"
	"github.com/m3rciful/leadbot/core/web"
)

// Options describe how to load configuration, bootstrap the app, and run the adapters.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string
	// ConfigPath wins over the environment variable when set.
	ConfigPath string
	// Mode overrides app.mode; empty keeps the configured value.
	Mode string

	LoadConfig func(path string, overrides ...coreconfig.Override) (*coreconfig.Config, error)
	Bootstrap  func(bootstrap.Options) (*bootstrap.Result, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	RunWeb         func(ctx context.Context, cfg coreconfig.HTTPConfig, conv web.Conversation) error
}

// ResolveConfigPath picks the explicit path, then the environment variable, then the default.
func ResolveConfigPath(opts Options) string {
	if opts.ConfigPath != "" {
		return opts.ConfigPath
	}
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p
	}
	return opts.DefaultConfigPath
}

// LoadConfig resolves the config path and loads it with the mode override applied.
func LoadConfig(opts Options) (*coreconfig.Config, error) {
	load := opts.LoadConfig
	if load == nil {
		load = coreconfig.Load
	}
	cfgPath := ResolveConfigPath(opts)
	log.Printf("loading config: %s", cfgPath)
	cfg, err := load(cfgPath, coreconfig.WithMode(opts.Mode))
	if err != nil {
		return nil, fmt.Errorf("cmd: failed to load config: %w", err)
	}
	return cfg, nil
}

// Run loads configuration, bootstraps infrastructure, and serves the web API
// and/or the Telegram bot until SIGINT or SIGTERM.
func Run(opts Options) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}

	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}
	res, err := boot(bootstrap.Options{Config: cfg})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() { _ = res.DB.Close() }()

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	startedAt := time.Now()

	var (
		bot      *tele.Bot
		notifier conversation.Notifier
	)
	if cfg.TelegramEnabled() {
		bot, err = coretelegram.NewBot(cfg)
		if err != nil {
			return err
		}
		if cfg.Telegram.AdminID != 0 {
			notifier = coretelegram.NewNotifier(bot, cfg.Telegram.AdminID)
		}
	}

	svc, err := bootstrap.BuildServices(bootstrap.ServiceOptions{
		Config:   cfg,
		DB:       res.DB,
		Notifier: notifier,
	})
	if err != nil {
		return fmt.Errorf("cmd: services build failed: %w", err)
	}

	serve, err := adapters(opts, cfg, bot, svc.Controller)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range serve {
		g.Go(func() error { return run(gctx) })
	}

	logger.Info(ctx, "app", "ready",
		slog.String("status", "ok"),
		slog.String("mode", cfg.App.Mode),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	err = g.Wait()
	logger.Info(context.Background(), "app", "shutdown", slog.String("status", logger.Status(err)))
	return err
}

// adapters prepares every enabled adapter before any of them starts, so a
// wiring failure never leaves a server running unsupervised.
func adapters(opts Options, cfg *coreconfig.Config, bot *tele.Bot, conv *conversation.Controller) ([]func(context.Context) error, error) {
	if conv == nil {
		return nil, errors.New("cmd: no conversation controller")
	}
	var serve []func(context.Context) error
	if cfg.WebEnabled() {
		runWeb := opts.RunWeb
		if runWeb == nil {
			runWeb = web.Run
		}
		serve = append(serve, func(ctx context.Context) error {
			return runWeb(ctx, cfg.HTTP, conv)
		})
	}
	if cfg.TelegramEnabled() {
		runOpts, err := telegramRunOptions(cfg, bot, conv)
		if err != nil {
			return nil, err
		}
		runTelegram := opts.RunTelegram
		if runTelegram == nil {
			runTelegram = coretelegram.RunTelegram
		}
		serve = append(serve, func(ctx context.Context) error {
			return runTelegram(ctx, runOpts)
		})
	}
	return serve, nil
}

func telegramRunOptions(cfg *coreconfig.Config, bot *tele.Bot, conv coretelegram.Conversation) (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	adapter := coretelegram.NewAdapter(conv)
	if err := adapter.Register(reg); err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("cmd: telegram wiring failed: %w", err)
	}

	routes := router.CommandRoutes(reg)
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{UnknownMedia: adapter.OnUnsupported})...)
	routes = append(routes, router.CallbackRoute(reg))

	return coretelegram.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Bot:         bot,
		Middlewares: coretelegram.DefaultMiddlewares(cfg, nil),
		Routes:      routes,
	}, nil
}
