package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/logger"
)

// NewRouter builds the chi router with the global middleware stack and chat routes.
func NewRouter(cfg coreconfig.HTTPConfig, conv Conversation) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLog)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/health"))
	r.Use(CORS(cfg.AllowedOrigins))

	NewChatHandler(conv).RegisterRoutes(r)
	return r
}

// Run serves the chat API until ctx is cancelled, then shuts the server down gracefully.
func Run(ctx context.Context, cfg coreconfig.HTTPConfig, conv Conversation) error {
	timeout := time.Duration(cfg.ReadTimeoutSeconds) * time.Second
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewRouter(cfg, conv),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		// The AI call dominates the response time.
		WriteTimeout: 2 * timeout,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http", "http.listen",
			slog.String("status", "ok"),
			slog.String("listen", cfg.Listen),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info(ctx, "http", "http.stopped", slog.String("status", "ok"))
	return nil
}
