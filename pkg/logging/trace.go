package logging

import (
	"context"
	"log/slog"
)

// LevelTrace sits below DEBUG and carries per-sample scan records.
// A configured level of TRACE enables it.
const LevelTrace = slog.LevelDebug - 4

// Trace logs msg at LevelTrace. A nil logger means slog.Default().
func Trace(logger *slog.Logger, msg string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}
	logger.Log(ctx, LevelTrace, msg, args...)
}

// ReplaceLevel prints LevelTrace as TRACE instead of DEBUG-4.
func ReplaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
