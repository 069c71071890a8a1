// Package log provides structured logging for go-daheng.
// It wraps slog and mirrors records into a process-local log file.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultFile is the log file written next to the working directory.
const DefaultFile = "camera_operation.log"

var (
	logger *slog.Logger
	closer io.Closer
	once   sync.Once
)

// Options configures the logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Default: "info".
	Level string

	// File is the log file path. Empty disables the file mirror.
	File string

	// Console receives a copy of every record when non-nil (usually os.Stderr
	// in debug mode). Console output for users is printed separately.
	Console io.Writer
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger for opts. The returned closer releases the log file
// and is never nil.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var writers []io.Writer
	var c io.Closer = nopCloser{}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		writers = append(writers, f)
		c = f
	}
	if opts.Console != nil {
		writers = append(writers, opts.Console)
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	// Use JSON in production, text in development
	var h slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h), c, nil
}

// Init initializes the global logger. Only the first call has an effect.
func Init(opts Options) error {
	var err error
	once.Do(func() {
		var l *slog.Logger
		l, closer, err = New(opts)
		if err != nil {
			return
		}
		logger = l
		slog.SetDefault(logger)
	})
	return err
}

// Close flushes and closes the global log file, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	return closer.Close()
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
