package gxi

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// mockQueueDepth matches the SDK's default acquisition buffer count.
const mockQueueDepth = 5

type mockStream struct {
	dev *MockDevice

	mu      sync.Mutex
	cb      CaptureCallback
	queue   chan *RawImage
	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started time.Time

	frameID          atomic.Uint64
	framesDelivered  atomic.Int64
	framesDropped    atomic.Int64
	framesIncomplete atomic.Int64
}

func newMockStream(d *MockDevice) *mockStream {
	return &mockStream{
		dev:     d,
		queue:   make(chan *RawImage, mockQueueDepth),
		trigger: make(chan struct{}, 8),
	}
}

// start launches the acquisition goroutine. In trigger mode a frame is
// only produced per fire(); otherwise frames are paced by interval.
func (s *mockStream) start(triggered bool, interval time.Duration) {
	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.started = time.Now()
	stop := s.stopCh
	s.mu.Unlock()

	// Triggers sent before StreamOn are lost, as on hardware.
	s.drainTriggers()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if triggered {
			for {
				select {
				case <-stop:
					return
				case <-s.trigger:
					s.emit()
				}
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.emit()
			}
		}
	}()
}

func (s *mockStream) stop() {
	s.mu.Lock()
	stop := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	s.wg.Wait()
}

// reset drops queued frames and the callback when the device closes.
func (s *mockStream) reset() {
	s.mu.Lock()
	s.cb = nil
	s.mu.Unlock()
	for {
		select {
		case <-s.queue:
		default:
			return
		}
	}
}

func (s *mockStream) drainTriggers() {
	for {
		select {
		case <-s.trigger:
		default:
			return
		}
	}
}

func (s *mockStream) fire() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *mockStream) emit() {
	w, h, pf := s.dev.geometry()

	s.mu.Lock()
	cb := s.cb
	ts := uint64(time.Since(s.started).Nanoseconds())
	s.mu.Unlock()

	id := s.frameID.Add(1) - 1
	img := &RawImage{
		FrameID:     id,
		Timestamp:   ts,
		Width:       w,
		Height:      h,
		PixelFormat: pf,
		Status:      FrameSuccess,
		Data:        TestPattern(w, h, pf, id),
		Received:    time.Now(),
	}

	if cb != nil {
		s.framesDelivered.Add(1)
		cb(img)
		return
	}

	select {
	case s.queue <- img:
	default:
		s.framesDropped.Add(1)
	}
}

func (s *mockStream) RegisterCaptureCallback(fn CaptureCallback) error {
	lib := s.dev.lib
	lib.record(MockOpRegister)
	if err := lib.failure(MockOpRegister); err != nil {
		return err
	}
	if fn == nil {
		return statusErr("GXRegisterCaptureCallback", StatusInvalidParameter, "nil callback")
	}
	if !s.dev.IsOpen() {
		return statusErr("GXRegisterCaptureCallback", StatusInvalidHandle, "device closed")
	}
	if s.dev.isStreaming() {
		return statusErr("GXRegisterCaptureCallback", StatusInvalidCall, "stream is on")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cb != nil {
		return fmt.Errorf("GXRegisterCaptureCallback: %w", ErrCallbackRegistered)
	}
	s.cb = fn
	return nil
}

func (s *mockStream) UnregisterCaptureCallback() error {
	lib := s.dev.lib
	lib.record(MockOpUnregister)
	if err := lib.failure(MockOpUnregister); err != nil {
		return err
	}
	if s.dev.isStreaming() {
		return statusErr("GXUnregisterCaptureCallback", StatusInvalidCall, "stream is on")
	}

	s.mu.Lock()
	s.cb = nil
	s.mu.Unlock()
	return nil
}

func (s *mockStream) GetImage(ctx context.Context, timeout time.Duration) (*RawImage, error) {
	return s.dequeue(ctx, "GXDQBuf", timeout)
}

// GetOneFrame returns a copy sized to the current PayloadSize, as GXGetImage
// fills a caller buffer rather than lending a pool buffer.
func (s *mockStream) GetOneFrame(ctx context.Context, timeout time.Duration) (*RawImage, error) {
	img, err := s.dequeue(ctx, "GXGetImage", timeout)
	if err != nil {
		return nil, err
	}
	v, err := s.dev.Read(FeaturePayloadSize)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, v.Int)
	copy(buf, img.Data)
	img.Data = buf
	return img, nil
}

func (s *mockStream) dequeue(ctx context.Context, op string, timeout time.Duration) (*RawImage, error) {
	if err := s.dev.lib.failure(MockOpGetImage); err != nil {
		return nil, err
	}

	s.mu.Lock()
	registered := s.cb != nil
	s.mu.Unlock()
	if registered {
		return nil, fmt.Errorf("%s: %w", op, ErrCallbackRegistered)
	}
	if !s.dev.isStreaming() {
		return nil, fmt.Errorf("%s: %w", op, ErrNotStreaming)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case img := <-s.queue:
		s.framesDelivered.Add(1)
		if img.Status != FrameSuccess {
			s.framesIncomplete.Add(1)
		}
		return img, nil
	case <-timer.C:
		return nil, statusErr(op, StatusTimeout, "no frame within %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *mockStream) Stats() StreamStats {
	return StreamStats{
		FramesDelivered:  s.framesDelivered.Load(),
		FramesDropped:    s.framesDropped.Load(),
		FramesIncomplete: s.framesIncomplete.Load(),
		Running:          s.dev.isStreaming(),
		Backend:          "mock",
	}
}

var _ DataStream = (*mockStream)(nil)

// TestPattern renders a horizontal gradient that shifts with frameID.
// Bayer sites are tinted so a demosaiced frame shows red, green and blue
// bands; formats wider than 8 bits are written as little-endian uint16.
func TestPattern(w, h int, pf PixelFormat, frameID uint64) []byte {
	bpp := pf.BytesPerPixel()
	channels := 1
	if pf == PixelRGB8 || pf == PixelBGR8 {
		channels, bpp = 3, 1
	}
	data := make([]byte, w*h*channels*bpp)
	if w == 0 || h == 0 {
		return data
	}

	maxv := uint32(1)<<pf.SignificantBits() - 1
	filter := pf.ColorFilter()
	shift := uint32(frameID*4) % 256

	off := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := (uint32(x)*255/uint32(w) + shift) % 256
			samples := [3]uint32{base, base, base}
			if channels == 3 {
				samples = [3]uint32{base, uint32(y) * 255 / uint32(h), 255 - base}
				if pf == PixelBGR8 {
					samples[0], samples[2] = samples[2], samples[0]
				}
			} else if filter != ColorFilterNone {
				switch bayerSite(filter, x, y) {
				case 'R':
					samples[0] = base
				case 'G':
					samples[0] = 128
				case 'B':
					samples[0] = 255 - base
				}
			}

			for c := 0; c < channels; c++ {
				v := samples[c] * maxv / 255
				if bpp == 2 {
					binary.LittleEndian.PutUint16(data[off:], uint16(v))
					off += 2
				} else {
					data[off] = byte(v)
					off++
				}
			}
		}
	}
	return data
}

// bayerSite returns 'R', 'G' or 'B' for the colour sampled at (x, y).
func bayerSite(f ColorFilter, x, y int) byte {
	var pattern string
	switch f {
	case ColorFilterBayerRG:
		pattern = "RGGB"
	case ColorFilterBayerGB:
		pattern = "GBRG"
	case ColorFilterBayerGR:
		pattern = "GRBG"
	case ColorFilterBayerBG:
		pattern = "BGGR"
	default:
		return 'G'
	}
	return pattern[(y%2)*2+x%2]
}
