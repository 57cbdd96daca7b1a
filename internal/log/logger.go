package log

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// LevelCritical sits above ERROR. It marks failures that leave the manager
// with nothing to run, such as a handler discovery that could not complete.
const LevelCritical = slog.Level(12)

// ParseLevel maps a config string to a slog level.
// logic: default to INFO. If level is invalid, fallback to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "CRITICAL":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. format is "json" (default) or "text".
// The returned logger is meant to be created once at startup and handed to
// every component that needs one.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: renameCritical,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used as the fallback when a
// component is constructed without one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// WithComponent returns a logger with the component field set.
func WithComponent(l *slog.Logger, name string) *slog.Logger {
	return OrDiscard(l).With(slog.String("component", name))
}

// WithAgent returns a logger with the agent_id field set.
func WithAgent(l *slog.Logger, agentID string) *slog.Logger {
	return OrDiscard(l).With(slog.String("agent_id", agentID))
}

// WithTask returns a logger with the task_id field set.
func WithTask(l *slog.Logger, taskID string) *slog.Logger {
	return OrDiscard(l).With(slog.String("task_id", taskID))
}

// Critical logs at LevelCritical.
func Critical(l *slog.Logger, msg string, args ...any) {
	OrDiscard(l).Log(context.Background(), LevelCritical, msg, args...)
}

func renameCritical(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}
