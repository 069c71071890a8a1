// Package camctl drives one camera through the demo workflow: enumerate,
// select, configure, acquire and clean up.
//
// Every step reports to a Console, which prints a plain line for the
// operator and records the same event in the operation log. Steps that
// fail are reported and the workflow continues, except where noted.
package camctl

import (
	"fmt"
	"io"
	"log/slog"
)

// Console prints operator messages and mirrors them to a logger.
type Console struct {
	out    io.Writer
	logger *slog.Logger
}

// NewConsole creates a console. A nil out discards printed lines; a nil
// logger uses slog.Default().
func NewConsole(out io.Writer, logger *slog.Logger) *Console {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{out: out, logger: logger}
}

// Logger returns the underlying logger.
func (c *Console) Logger() *slog.Logger {
	return c.logger
}

// Printf prints without logging.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Info prints msg and logs it at info with attrs.
func (c *Console) Info(msg string, attrs ...any) {
	fmt.Fprintln(c.out, msg)
	c.logger.Info(msg, attrs...)
}

// Warn prints msg and logs it at warn with attrs.
func (c *Console) Warn(msg string, attrs ...any) {
	fmt.Fprintln(c.out, msg)
	c.logger.Warn(msg, attrs...)
}

// Error prints msg with err appended and logs it at error.
func (c *Console) Error(msg string, err error, attrs ...any) {
	if err != nil {
		fmt.Fprintf(c.out, "%s: %v\n", msg, err)
		attrs = append(attrs, "error", err)
	} else {
		fmt.Fprintln(c.out, msg)
	}
	c.logger.Error(msg, attrs...)
}
