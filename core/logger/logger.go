// Package logger is the process-wide structured logger. Every line carries a
// component and an event name; request, update and session identifiers are
// taken from the context passed to the helpers.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"

	"github.com/m3rciful/leadbot/core/buildinfo"
	coreconfig "github.com/m3rciful/leadbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	sinks    []*sink

	level slog.LevelVar

	// L is the configured base logger. It stays nil until InitLogger runs,
	// and the package helpers drop events until then.
	L *slog.Logger
)

// InitLogger builds the base logger from cfg. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		err = setup(cfg)
	})
	return err
}

func setup(cfg *coreconfig.Config) error {
	var lc coreconfig.LoggingConfig
	if cfg != nil {
		lc = cfg.Logging
	}
	level.Set(parseLevel(lc.Level))

	out, err := openSink(os.Stdout, lc.Dir, lc.File)
	if err != nil {
		return err
	}
	sinks = append(sinks, out)

	var h slog.Handler = newLineHandler(&level, out, pickFormat(lc))
	if lc.Dir != "" && lc.ErrorsFile != "" {
		errs, err := openSink(nil, lc.Dir, lc.ErrorsFile)
		if err != nil {
			return err
		}
		sinks = append(sinks, errs)
		h = slogmulti.Fanout(h, newLineHandler(slog.LevelWarn, errs, formatJSON))
	}

	L = slog.New(h)
	slog.SetDefault(L)

	attrs := []slog.Attr{
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("profile", profileOf(lc)),
	}
	if cfg != nil {
		attrs = append(attrs, slog.String("mode", cfg.App.Mode))
	}
	Info(context.Background(), "app", "startup", attrs...)
	return nil
}

// openSink writes to std plus, when dir and file are both set, an append-only
// file under dir.
func openSink(std io.Writer, dir, file string) (*sink, error) {
	s := &sink{std: std}
	dir, file = strings.TrimSpace(dir), strings.TrimSpace(file)
	if dir == "" || file == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, file), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", file, err)
	}
	s.file = f
	return s, nil
}

// Shutdown closes log files. Later events still reach stdout.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	var errs []error
	for _, s := range sinks {
		errs = append(errs, s.close())
	}
	return errors.Join(errs...)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// pickFormat honours logging.format and otherwise uses KV for dev profiles.
func pickFormat(lc coreconfig.LoggingConfig) lineFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "json":
		return formatJSON
	case "kv", "text", "pretty":
		return formatKV
	}
	switch profileOf(lc) {
	case "dev", "debug":
		return formatKV
	}
	return formatJSON
}

func profileOf(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

// Debug logs a debug event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelDebug, component, event, attrs)
}

// Info logs an info event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelInfo, component, event, attrs)
}

// Warn logs a warning event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelWarn, component, event, attrs)
}

// Error logs an error event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	emit(ctx, slog.LevelError, component, event, attrs)
}

func emit(ctx context.Context, lvl slog.Level, component, event string, attrs []slog.Attr) {
	l := L
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Enabled(ctx, lvl) {
		return
	}
	if component != "" {
		attrs = append([]slog.Attr{slog.String(keyComponent, component)}, attrs...)
	}
	l.LogAttrs(ctx, lvl, event, attrs...)
}
