// Package telemetry installs a process-wide structured logger and exposes
// printf-style convenience wrappers used throughout the gateway.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var logger *slog.Logger

// Init installs the package-level logger at the given level, writing to
// stderr. Call once at process start; safe to call again in tests to reset
// the level.
func Init(level slog.Level) {
	logger = slog.New(&prettyHandler{w: os.Stderr, level: level})
	slog.SetDefault(logger)
}

// InitWithTraceFile behaves like Init but additionally mirrors every line to
// traceFile when non-empty, appending across restarts. A file that cannot be
// opened falls back to stderr-only logging with a warning.
func InitWithTraceFile(level slog.Level, traceFile string) {
	w := io.Writer(os.Stderr)
	if traceFile != "" {
		f, err := os.OpenFile(traceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger = slog.New(&prettyHandler{w: os.Stderr, level: level})
			slog.SetDefault(logger)
			Warnf("telemetry: open trace file %s: %v", traceFile, err)
			return
		}
		w = io.MultiWriter(os.Stderr, f)
	}
	logger = slog.New(&prettyHandler{w: w, level: level})
	slog.SetDefault(logger)
}

// L returns the installed logger, defaulting to info level if Init was
// never called.
func L() *slog.Logger {
	if logger == nil {
		Init(slog.LevelInfo)
	}
	return logger
}

func Infof(format string, args ...any)  { L().Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { L().Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { L().Error(fmt.Sprintf(format, args...)) }
func Debugf(format string, args ...any) { L().Debug(fmt.Sprintf(format, args...)) }

// ParseLevel converts a string level name (as read from LOG_LEVEL) to a
// slog.Level, falling back to info on anything unrecognised.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// prettyHandler renders one compact timestamped line per record, e.g.
// "[2026-08-01 9:14:02 AM UTC] message".
type prettyHandler struct {
	w     io.Writer
	level slog.Level
	mu    sync.Mutex
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.Format("2006-01-02 3:04:05 PM MST")

	var prefix string
	switch {
	case r.Level >= slog.LevelError:
		prefix = "ERROR: "
	case r.Level >= slog.LevelWarn:
		prefix = "WARN: "
	case r.Level <= slog.LevelDebug:
		prefix = "DEBUG: "
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.w, "[%s] %s%s\n", ts, prefix, r.Message)
	return err
}

func (h *prettyHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *prettyHandler) WithGroup(_ string) slog.Handler      { return h }
