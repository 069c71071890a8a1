// Package sink delivers converted camera frames to their consumers:
// disk, an on-screen window, the live preview or nowhere.
package sink

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/teslashibe/go-daheng/pkg/gxi"
	"github.com/teslashibe/go-daheng/pkg/imgproc"
)

// ErrNoWindow is returned by NewWindow when built without OpenCV.
var ErrNoWindow = errors.New("display window requires a build with -tags gocv")

// Frame is one converted frame. Raw is only valid during Show; sinks that
// keep it must Clone it.
type Frame struct {
	SessionID string
	Mode      string
	Device    gxi.DeviceInfo
	Raw       *gxi.RawImage
	Image     image.Image
	Pixels    imgproc.Pixels
}

// Sink consumes frames.
type Sink interface {
	Show(ctx context.Context, f Frame) error
	Close() error
}

// Counter counts frames and drops them.
type Counter struct {
	frames atomic.Int64
	last   atomic.Uint64
}

func (c *Counter) Show(ctx context.Context, f Frame) error {
	c.frames.Add(1)
	if f.Raw != nil {
		c.last.Store(f.Raw.FrameID)
	}
	return nil
}

func (c *Counter) Close() error { return nil }

// Frames returns the number of frames shown.
func (c *Counter) Frames() int64 { return c.frames.Load() }

// LastFrameID returns the ID of the most recent frame.
func (c *Counter) LastFrameID() uint64 { return c.last.Load() }

// Discard returns a sink that ignores every frame.
func Discard() Sink { return &Counter{} }

// Multi fans frames out to several sinks. A failing sink is logged and
// does not stop delivery to the others.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMulti combines sinks; nil entries are skipped.
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Show(ctx context.Context, f Frame) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Show(ctx, f); err != nil {
			m.logger.Warn("sink failed", "sink", sinkName(s), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type named interface{ Name() string }

func sinkName(s Sink) string {
	if n, ok := s.(named); ok {
		return n.Name()
	}
	return "sink"
}

// rgba returns f.Image, converting from the pixel array when needed.
func rgba(f Frame) (image.Image, error) {
	if f.Image != nil {
		return f.Image, nil
	}
	if f.Pixels.Data != nil {
		return f.Pixels.Image()
	}
	if f.Raw != nil {
		return imgproc.ToRGB(f.Raw)
	}
	return nil, errors.New("frame carries no image")
}
