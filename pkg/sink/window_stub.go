//go:build !gocv

package sink

import (
	"context"
)

// WindowAvailable reports whether this build can open display windows.
const WindowAvailable = false

// Window is unavailable in this build.
type Window struct{}

// NewWindow returns ErrNoWindow.
func NewWindow(name string) (*Window, error) {
	return nil, ErrNoWindow
}

func (w *Window) Name() string { return "window" }

func (w *Window) Show(ctx context.Context, f Frame) error { return ErrNoWindow }

func (w *Window) Close() error { return nil }
