// Package log wraps log/slog with the attributes deckhand attaches to every
// record and with error-code aware helpers.
package log

import (
	stderrors "errors"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

// Logger provides structured logging with slog
type Logger struct {
	slog *slog.Logger
}

// New creates a new Logger with the given configuration
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if r := newRedactor(cfg.Secrets); r != nil {
		opts.ReplaceAttr = r.replaceAttr
	}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	base := slog.New(handler)
	if cfg.Service != "" {
		base = base.With("service.name", cfg.Service, "service.version", cfg.Version)
	}
	return &Logger{slog: base}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{slog: slog.New(slog.DiscardHandler)}
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// WithError adds the error message. For a DeckhandError it also adds
// error_code, the cause, and any suggestions.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(errorAttrs(err)...)
}

func errorAttrs(err error) []any {
	var de *errors.DeckhandError
	if !stderrors.As(err, &de) {
		return []any{"error", err.Error()}
	}

	args := []any{"error", de.Message, "error_code", string(de.Code)}
	if de.Cause != nil {
		args = append(args, "cause", de.Cause.Error())
	}
	if len(de.Suggestions) > 0 {
		args = append(args, "suggestions", de.Suggestions)
	}
	return args
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Slog exposes the underlying logger for libraries that take a *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}
