//go:build !gxiapi || !cgo

package gxi

import (
	"fmt"
	"log/slog"
)

const gxiapiAvailable = false

// openGxIAPI returns an error when the binding is not compiled in.
func openGxIAPI(logger *slog.Logger) (Library, error) {
	return nil, fmt.Errorf("gxiapi: rebuild with -tags gxiapi and cgo enabled: %w", ErrBackendUnavailable)
}
