package camctl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-daheng/pkg/gxi"
	"github.com/teslashibe/go-daheng/pkg/sink"
)

// ActiveMethod selects the polling call used by active acquisition.
type ActiveMethod string

const (
	// MethodDQBuf dequeues buffers from the stream's pool.
	MethodDQBuf ActiveMethod = "dqbuf"
	// MethodGetImage copies each frame into a PayloadSize buffer.
	MethodGetImage ActiveMethod = "getimage"
)

// Options tunes the acquisition timing.
type Options struct {
	// TriggerDelay is the pause between StreamOn and the software trigger.
	// Default: 100ms
	TriggerDelay time.Duration `yaml:"trigger_delay" json:"trigger_delay"`

	// CallbackWindow is how long callback mode waits for frames after the
	// trigger.
	// Default: 1s
	CallbackWindow time.Duration `yaml:"callback_window" json:"callback_window"`

	// FrameTimeout bounds each poll in active mode.
	// Default: 1s
	FrameTimeout time.Duration `yaml:"frame_timeout" json:"frame_timeout"`

	// Method is the active polling call.
	// Default: "dqbuf"
	Method ActiveMethod `yaml:"method" json:"method"`

	// MaxFrames stops active mode after that many frames; 0 runs until the
	// context is cancelled.
	MaxFrames int `yaml:"max_frames" json:"max_frames"`

	// SoftTrigger sends TriggerSoftware before each poll when the device is
	// in trigger mode, so active mode keeps producing frames.
	SoftTrigger bool `yaml:"soft_trigger" json:"soft_trigger"`
}

// DefaultOptions returns the standard demo timing.
func DefaultOptions() Options {
	return Options{
		TriggerDelay:   100 * time.Millisecond,
		CallbackWindow: time.Second,
		FrameTimeout:   time.Second,
		Method:         MethodDQBuf,
		SoftTrigger:    true,
	}
}

// Status is a snapshot of a session for status endpoints.
type Status struct {
	SessionID  string          `json:"session_id"`
	Device     gxi.DeviceInfo  `json:"device"`
	Mode       Mode            `json:"mode"`
	Streaming  bool            `json:"streaming"`
	Closed     bool            `json:"closed"`
	Frames     int64           `json:"frames"`
	Errors     int64           `json:"errors"`
	LastFrame  uint64          `json:"last_frame_id"`
	StartedAt  time.Time       `json:"started_at"`
	StreamInfo gxi.StreamStats `json:"stream"`
}

// Session owns an open device and its data stream for the lifetime of one
// acquisition run. Close must always be called; it is safe to call more
// than once.
type Session struct {
	id   string
	con  *Console
	sink sink.Sink
	opts Options

	dev    gxi.Device
	ds     gxi.DataStream
	info   gxi.DeviceInfo
	params *Params

	mu         sync.Mutex
	mode       Mode
	registered bool
	streaming  bool
	closed     bool
	ctx        context.Context
	started    time.Time

	frames    atomic.Int64
	errors    atomic.Int64
	lastFrame atomic.Uint64
}

// Open opens the device the operator selected by its 0-based number, which
// is SDK index number+1. devs is the list returned by Enumerate.
func Open(con *Console, lib gxi.Library, devs []gxi.DeviceInfo, number int, out sink.Sink, opts Options) (*Session, error) {
	if number < 0 || number >= len(devs) {
		return nil, fmt.Errorf("%w: %d (have %d devices)", gxi.ErrInvalidIndex, number, len(devs))
	}
	if out == nil {
		out = sink.Discard()
	}

	dev, err := lib.OpenByIndex(number + 1)
	if err != nil {
		con.Error("Error creating camera instance", err)
		return nil, fmt.Errorf("open device %d: %w", number+1, err)
	}

	ds, err := dev.DataStream(0)
	if err != nil {
		dev.Close()
		con.Error("Error creating camera instance", err)
		return nil, fmt.Errorf("open data stream: %w", err)
	}

	s := &Session{
		id:      uuid.NewString(),
		con:     con,
		sink:    out,
		opts:    opts,
		dev:     dev,
		ds:      ds,
		info:    devs[number],
		params:  NewParams(dev, con),
		ctx:     context.Background(),
		started: time.Now(),
	}
	con.Info("Camera instance created successfully.",
		"session", s.id, "index", number+1, "model", s.info.ModelName, "serial", s.info.SerialNumber)
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Info returns the enumeration record of the session's device.
func (s *Session) Info() gxi.DeviceInfo { return s.info }

// Device returns the open device.
func (s *Session) Device() gxi.Device { return s.dev }

// Params returns the feature accessor bound to the device.
func (s *Session) Params() *Params { return s.params }

// Snapshot reads every feature of the device.
func (s *Session) Snapshot() []FeatureValue { return s.params.Snapshot() }

// Configure applies settings in order, then the trigger setup when
// trigger is true. Individual failures are reported and skipped.
func (s *Session) Configure(settings []Setting, trigger bool) {
	for _, st := range settings {
		s.params.Apply(st)
	}
	if trigger {
		ConfigureTrigger(s.params, s.info)
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		SessionID: s.id,
		Device:    s.info,
		Mode:      s.mode,
		Streaming: s.streaming,
		Closed:    s.closed,
		Frames:    s.frames.Load(),
		Errors:    s.errors.Load(),
		LastFrame: s.lastFrame.Load(),
		StartedAt: s.started,
	}
	if !s.closed {
		st.StreamInfo = s.ds.Stats()
	}
	return st
}

// IsColor reports whether the sensor has a Bayer filter.
func (s *Session) IsColor() bool {
	f, ok := s.dev.Lookup(gxi.FeaturePixelColorFilter)
	if !ok || !f.Implemented {
		return false
	}
	v, err := s.dev.Read(gxi.FeaturePixelColorFilter)
	if err != nil {
		return false
	}
	return gxi.ColorFilter(v.Int) != gxi.ColorFilterNone
}

func (s *Session) streamOn() error {
	if err := s.dev.StreamOn(); err != nil {
		s.con.Error("Error starting image streaming", err)
		return fmt.Errorf("stream on: %w", err)
	}
	s.mu.Lock()
	s.streaming = true
	s.mu.Unlock()
	s.con.Logger().Info("image streaming started")
	return nil
}

// streamOff stops the stream if this session started it.
func (s *Session) streamOff() error {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return nil
	}
	s.streaming = false
	s.mu.Unlock()

	if err := s.dev.StreamOff(); err != nil {
		s.con.Error("Error stopping image streaming", err)
		return fmt.Errorf("stream off: %w", err)
	}
	return nil
}

func (s *Session) setMode(ctx context.Context, m Mode) {
	s.mu.Lock()
	s.mode = m
	s.ctx = ctx
	s.mu.Unlock()
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// RunCallback registers a capture callback, turns the stream on, sends one
// software trigger, waits for the callback window and turns the stream
// off. The stream is turned on and off exactly once.
func (s *Session) RunCallback(ctx context.Context) error {
	s.setMode(ctx, ModeCallback)

	color := s.IsColor()
	handler := s.handleMono
	if color {
		handler = s.handleColor
	}
	if err := s.ds.RegisterCaptureCallback(s.guard(handler)); err != nil {
		s.con.Error("Error registering callback", err)
		return fmt.Errorf("register callback: %w", err)
	}
	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()
	s.con.Logger().Info("callback registered", "color", color)

	if err := s.streamOn(); err != nil {
		return err
	}
	s.con.Info("<Start acquisition>")

	if sleep(ctx, s.opts.TriggerDelay) == nil {
		if err := s.dev.Execute(gxi.FeatureTriggerSoftware); err != nil {
			s.con.Error("Error sending software trigger", err)
		} else {
			s.con.Logger().Info("software trigger command sent")
		}
		sleep(ctx, s.opts.CallbackWindow)
	}
	if ctx.Err() != nil {
		s.con.Logger().Info("callback acquisition interrupted", "reason", ctx.Err())
	}

	err := s.streamOff()
	s.con.Info("<Stop acquisition>")
	return err
}

// RunActive turns the stream on and polls frames until ctx is cancelled,
// MaxFrames is reached or the device goes away. Per-frame errors are
// reported and polling continues.
func (s *Session) RunActive(ctx context.Context) error {
	s.setMode(ctx, ModeActive)

	if err := s.streamOn(); err != nil {
		return err
	}
	defer s.streamOff()

	poll := s.ds.GetImage
	if s.opts.Method == MethodGetImage {
		poll = s.ds.GetOneFrame
	}
	trigger := s.opts.SoftTrigger && s.triggerMode()

	var got int
	for {
		if ctx.Err() != nil {
			s.con.Info("Image acquisition stopped by user.")
			return nil
		}
		if s.opts.MaxFrames > 0 && got >= s.opts.MaxFrames {
			s.con.Logger().Info("frame limit reached", "frames", got)
			return nil
		}

		if trigger {
			if err := s.dev.Execute(gxi.FeatureTriggerSoftware); err != nil {
				s.con.Error("Error sending software trigger", err)
			}
		}

		raw, err := poll(ctx, s.opts.FrameTimeout)
		switch {
		case err == nil:
		case errors.Is(err, gxi.ErrTimeout):
			s.con.Warn("no data")
			continue
		case ctx.Err() != nil:
			continue
		case errors.Is(err, gxi.ErrNotOpen):
			s.errors.Add(1)
			s.con.Error("Error getting image", err)
			return fmt.Errorf("device lost: %w", err)
		default:
			s.errors.Add(1)
			s.con.Error("Error getting image", err)
			continue
		}

		if s.handleActive(raw) {
			got++
			s.con.Info("Got an image", "frame_id", raw.FrameID)
		}
	}
}

// triggerMode reports whether the device currently waits for triggers.
func (s *Session) triggerMode() bool {
	v, err := s.dev.Read(gxi.FeatureTriggerMode)
	return err == nil && v.Int == gxi.SwitchOn.Value
}

// Close unregisters the capture callback if one is registered, then closes
// the device. Later calls do nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	registered := s.registered
	s.registered = false
	s.mu.Unlock()

	var errs []error
	if err := s.streamOff(); err != nil {
		errs = append(errs, err)
	}
	if registered {
		if err := s.ds.UnregisterCaptureCallback(); err != nil {
			s.con.Error("Error unregistering callback", err)
			errs = append(errs, err)
		}
	}
	if err := s.dev.Close(); err != nil {
		s.con.Error("Error closing device", err)
		errs = append(errs, err)
	} else {
		s.con.Logger().Info("device closed successfully", "session", s.id,
			"frames", s.frames.Load(), "errors", s.errors.Load())
	}
	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
