package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelCritical is used for errors that stop the process, typically bad
// startup configuration.
const LevelCritical = slog.LevelError + 4

var (
	defaultLogLevel slog.LevelVar
	defaultLogger   = slog.New(newJSONHandler(os.Stdout, &defaultLogLevel, true))
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
}

type contextKey struct{}

var loggerKey = contextKey{}

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}

// Critical logs at LevelCritical using the context logger.
func Critical(ctx context.Context, msg string, args ...any) {
	Ctx(ctx).Log(ctx, LevelCritical, msg, args...)
}

// NewHandler builds the handler used by the binaries. format is either "json"
// or "text".
func NewHandler(format string, w io.Writer, level slog.Leveler) (slog.Handler, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return newJSONHandler(w, level, false), nil
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceLevel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

func newJSONHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource:   addSource,
		Level:       level,
		ReplaceAttr: replaceLevel,
	})
}

// replaceLevel renders LevelCritical as CRITICAL instead of ERROR+4
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}
