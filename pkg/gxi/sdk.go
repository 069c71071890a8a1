package gxi

import (
	"context"
	"io"
	"time"
)

// Library is an initialised SDK instance.
type Library interface {
	// UpdateDeviceList re-enumerates attached devices. The timeout bounds
	// the GigE discovery broadcast.
	UpdateDeviceList(ctx context.Context, timeout time.Duration) ([]DeviceInfo, error)

	// OpenByIndex opens the device at the 1-based SDK index returned by the
	// last UpdateDeviceList.
	OpenByIndex(index int) (Device, error)

	// Name returns the backend name (e.g., "gxiapi", "mock").
	Name() string

	// Close releases the SDK. Devices must be closed first.
	io.Closer
}

// Device is an open camera handle.
type Device interface {
	Info() DeviceInfo
	IsOpen() bool

	// Features lists every feature the device exposes.
	Features() []FeatureInfo

	// Lookup returns the descriptor of a feature by name.
	Lookup(name string) (FeatureInfo, bool)

	// Read returns the current value of a readable feature. The value's
	// Kind is the feature's Kind.
	Read(name string) (Value, error)

	// Write sets a writable feature. v.Kind must equal the feature's Kind,
	// otherwise ErrKindMismatch is returned and nothing is written.
	Write(name string, v Value) error

	// Execute sends a command feature such as TriggerSoftware.
	Execute(name string) error

	StreamOn() error
	StreamOff() error

	// DataStream returns stream i. Cameras expose a single stream, index 0.
	DataStream(i int) (DataStream, error)

	io.Closer
}

// CaptureCallback receives frames on the SDK's acquisition thread. The
// image is only valid until the callback returns.
type CaptureCallback func(img *RawImage)

// DataStream delivers frames from an open device.
type DataStream interface {
	// RegisterCaptureCallback installs fn. It must be called before
	// StreamOn; while registered, polling is not available.
	RegisterCaptureCallback(fn CaptureCallback) error

	// UnregisterCaptureCallback removes the callback. It must be called
	// after StreamOff. Unregistering with no callback is a no-op.
	UnregisterCaptureCallback() error

	// GetImage dequeues the next buffer from the stream's buffer pool.
	// It returns ErrTimeout (wrapped) when no frame arrives in time.
	GetImage(ctx context.Context, timeout time.Duration) (*RawImage, error)

	// GetOneFrame copies the next frame into a PayloadSize buffer.
	GetOneFrame(ctx context.Context, timeout time.Duration) (*RawImage, error)

	Stats() StreamStats
}

// StreamStats contains statistics about a data stream.
type StreamStats struct {
	// FramesDelivered counts frames handed to a callback or a poller.
	FramesDelivered int64 `json:"frames_delivered"`

	// FramesDropped counts frames lost because the buffer pool was full.
	FramesDropped int64 `json:"frames_dropped"`

	// FramesIncomplete counts frames delivered with a non-success status.
	FramesIncomplete int64 `json:"frames_incomplete"`

	// Running indicates if the stream is currently on.
	Running bool `json:"running"`

	// Backend is the name of the SDK backend.
	Backend string `json:"backend"`
}
