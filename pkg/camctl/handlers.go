package camctl

import (
	"fmt"

	"github.com/teslashibe/go-daheng/pkg/gxi"
	"github.com/teslashibe/go-daheng/pkg/imgproc"
	"github.com/teslashibe/go-daheng/pkg/sink"
)

// guard wraps a frame handler so a panic inside it is logged instead of
// taking down the SDK's acquisition thread.
func (s *Session) guard(h func(raw *gxi.RawImage) bool) gxi.CaptureCallback {
	return func(raw *gxi.RawImage) {
		defer func() {
			if r := recover(); r != nil {
				s.errors.Add(1)
				s.con.Error("Error in capture callback", fmt.Errorf("panic: %v", r))
			}
		}()
		h(raw)
	}
}

// frameHeader reports a received frame. Incomplete frames are counted and
// skipped.
func (s *Session) frameHeader(raw *gxi.RawImage) bool {
	if raw == nil {
		return false
	}
	s.con.Printf("Frame ID: %d   Height: %d   Width: %d\n", raw.FrameID, raw.Height, raw.Width)
	s.con.Logger().Info("frame", "frame_id", raw.FrameID, "height", raw.Height, "width", raw.Width)

	if raw.Status != gxi.FrameSuccess {
		s.errors.Add(1)
		s.con.Warn("incomplete frame skipped", "frame_id", raw.FrameID, "status", raw.Status.String())
		return false
	}
	return true
}

// handleColor converts a Bayer or RGB frame to RGB.
func (s *Session) handleColor(raw *gxi.RawImage) bool {
	if !s.frameHeader(raw) {
		return false
	}
	rgb, err := imgproc.ToRGB(raw)
	if err != nil {
		s.errors.Add(1)
		s.con.Error("Failed to convert RawImage to RGBImage", err)
		return false
	}
	return s.deliver(raw, sink.Frame{Image: rgb, Pixels: imgproc.FromRGBA(rgb)})
}

// handleMono extracts the grey array and expands it to three channels.
func (s *Session) handleMono(raw *gxi.RawImage) bool {
	if !s.frameHeader(raw) {
		return false
	}
	px, err := imgproc.Array(raw)
	if err != nil {
		s.errors.Add(1)
		s.con.Error("Failed to get pixel array from RawImage", err)
		return false
	}
	return s.deliver(raw, sink.Frame{Pixels: px.Expand3()})
}

// handleActive converts a polled frame without printing the callback
// header.
func (s *Session) handleActive(raw *gxi.RawImage) bool {
	if raw == nil {
		return false
	}
	if raw.Status != gxi.FrameSuccess {
		s.errors.Add(1)
		s.con.Warn("incomplete frame skipped", "frame_id", raw.FrameID, "status", raw.Status.String())
		return false
	}
	px, err := imgproc.Array(raw)
	if err != nil {
		s.errors.Add(1)
		s.con.Error("Error getting image", err)
		return false
	}
	return s.deliver(raw, sink.Frame{Pixels: px.Expand3()})
}

func (s *Session) deliver(raw *gxi.RawImage, f sink.Frame) bool {
	f.SessionID = s.id
	f.Device = s.info
	f.Raw = raw
	s.mu.Lock()
	f.Mode = string(s.mode)
	s.mu.Unlock()

	s.frames.Add(1)
	s.lastFrame.Store(raw.FrameID)

	if err := s.sink.Show(s.context(), f); err != nil {
		s.errors.Add(1)
		s.con.Logger().Warn("frame delivery failed", "frame_id", raw.FrameID, "error", err)
	}
	return true
}
