package web

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/leadbot/core/logger"
)

// CORS returns middleware that handles CORS headers for the chat widget.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestLog attaches the chi request id to the context as rid and logs each request.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRID(r.Context(), chimw.GetReqID(r.Context()))
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := "ok"
		if ww.Status() >= http.StatusInternalServerError {
			status = "fail"
		}
		logger.Info(ctx, "http", "http.request",
			slog.String("status", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("http_code", ww.Status()),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}
