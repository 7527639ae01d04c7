package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/topi314/tint"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	RecordIDKey  ContextKey = "record_id"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Init installs the default slog logger. Text output goes through tint.
func Init(cfg Config) {
	slog.SetDefault(New(os.Stdout, cfg))
}

func New(w io.Writer, cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		})
	}
	return slog.New(handler)
}

func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// WithRecordID tags ctx so that FromContext loggers carry the record id.
func WithRecordID(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, RecordIDKey, recordID)
}

// FromContext returns the default logger enriched with request-scoped values.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		l = l.With("request_id", requestID)
	}
	if recordID, ok := ctx.Value(RecordIDKey).(string); ok && recordID != "" {
		l = l.With("record_id", recordID)
	}
	return l
}

func Err(err error) slog.Attr {
	return tint.Err(err)
}
