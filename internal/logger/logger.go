package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var log *slog.Logger

func Init() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// New wraps a handler into a logger. Used by tests to capture output.
func New(h slog.Handler) *slog.Logger {
	return slog.New(h)
}

func NewJSONHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, opts)
}

func get() *slog.Logger {
	if log == nil {
		Init()
	}
	return log
}

func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

func Infof(format string, v ...any) {
	get().Info(fmt.Sprintf(format, v...))
}

func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

func Errorf(format string, v ...any) {
	get().Error(fmt.Sprintf(format, v...))
}

func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

func Debugf(format string, v ...any) {
	get().Debug(fmt.Sprintf(format, v...))
}

func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

func Fatalf(format string, v ...any) {
	get().Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func WithError(err error) *slog.Logger {
	return get().With("error", err)
}

func WithFields(fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return get().With(args...)
}
