package wilc

import (
	"context"
	"log/slog"
)

const levelTrace slog.Level = slog.LevelDebug - 1

// logger holds the structured logger shared by the Device and the Watchdog.
// A nil logger discards all records.
type logger struct {
	log *slog.Logger
}

func (l logger) logerr(msg string, attrs ...slog.Attr) {
	l.logattrs(slog.LevelError, msg, attrs...)
}

func (l logger) warn(msg string, attrs ...slog.Attr) {
	l.logattrs(slog.LevelWarn, msg, attrs...)
}

func (l logger) info(msg string, attrs ...slog.Attr) {
	l.logattrs(slog.LevelInfo, msg, attrs...)
}

func (l logger) debug(msg string, attrs ...slog.Attr) {
	l.logattrs(slog.LevelDebug, msg, attrs...)
}

func (l logger) trace(msg string, attrs ...slog.Attr) {
	l.logattrs(levelTrace, msg, attrs...)
}

func (l logger) logenabled(level slog.Level) bool {
	return l.log != nil && l.log.Handler().Enabled(context.Background(), level)
}

func (l logger) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if l.log == nil {
		return
	}
	l.log.LogAttrs(context.Background(), level, msg, attrs...)
}
