package gxi

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Mock operations that accept injected failures via WithFailure.
const (
	MockOpEnumerate  = "enumerate"
	MockOpOpen       = "open"
	MockOpWrite      = "write"
	MockOpStreamOn   = "stream_on"
	MockOpStreamOff  = "stream_off"
	MockOpTrigger    = "trigger"
	MockOpGetImage   = "get_image"
	MockOpRegister   = "register_callback"
	MockOpUnregister = "unregister_callback"
	MockOpClose      = "close"
)

// MockDeviceSpec describes one simulated camera.
type MockDeviceSpec struct {
	ModelName    string      `yaml:"model_name" json:"model_name"`
	SerialNumber string      `yaml:"serial_number" json:"serial_number"`
	DeviceClass  DeviceClass `yaml:"device_class" json:"device_class"`
	IPAddress    string      `yaml:"ip_address" json:"ip_address,omitempty"`
	MACAddress   string      `yaml:"mac_address" json:"mac_address,omitempty"`
	PixelFormat  PixelFormat `yaml:"pixel_format" json:"pixel_format"`
	Width        int         `yaml:"width" json:"width"`
	Height       int         `yaml:"height" json:"height"`

	// FrameInterval paces free-running acquisition (trigger mode off).
	// Default: 33ms
	FrameInterval time.Duration `yaml:"frame_interval" json:"frame_interval"`
}

// DefaultMockDevices returns a colour GigE camera and a mono USB3 camera.
func DefaultMockDevices() []MockDeviceSpec {
	return []MockDeviceSpec{
		{
			ModelName:    "MER2-503-23GC",
			SerialNumber: "KJ0230040001",
			DeviceClass:  DeviceClassGEV,
			IPAddress:    "192.168.1.20",
			MACAddress:   "00:21:49:03:ab:01",
			PixelFormat:  PixelBayerRG8,
			Width:        640,
			Height:       480,
		},
		{
			ModelName:    "MER2-160-227U3M",
			SerialNumber: "FDE22070123",
			DeviceClass:  DeviceClassU3V,
			PixelFormat:  PixelMono8,
			Width:        640,
			Height:       480,
		},
	}
}

// MockLibrary is a simulated SDK for testing.
// It records every state-changing call in a journal.
type MockLibrary struct {
	logger *slog.Logger

	mu         sync.Mutex
	specs      []MockDeviceSpec
	enumerated bool
	closed     bool
	open       map[int]*MockDevice
	failures   map[string]error
	journal    []string
}

// MockOption configures a MockLibrary.
type MockOption func(*MockLibrary)

// WithDevices replaces the simulated devices.
func WithDevices(specs ...MockDeviceSpec) MockOption {
	return func(l *MockLibrary) {
		l.specs = append([]MockDeviceSpec(nil), specs...)
	}
}

// WithFailure makes operation op (one of the MockOp constants) fail with err.
func WithFailure(op string, err error) MockOption {
	return func(l *MockLibrary) {
		l.failures[op] = err
	}
}

// NewMockLibrary creates a new mock SDK.
func NewMockLibrary(logger *slog.Logger, opts ...MockOption) *MockLibrary {
	if logger == nil {
		logger = slog.Default()
	}

	l := &MockLibrary{
		logger:   logger,
		specs:    DefaultMockDevices(),
		open:     make(map[int]*MockDevice),
		failures: make(map[string]error),
	}

	for _, opt := range opts {
		opt(l)
	}

	for i := range l.specs {
		if l.specs[i].FrameInterval <= 0 {
			l.specs[i].FrameInterval = 33 * time.Millisecond
		}
		if l.specs[i].PixelFormat == 0 {
			l.specs[i].PixelFormat = PixelMono8
		}
	}

	return l
}

// SetFailure injects or clears (err == nil) a failure after construction.
func (l *MockLibrary) SetFailure(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, op)
		return
	}
	l.failures[op] = err
}

// Journal returns a copy of the recorded calls, in order.
func (l *MockLibrary) Journal() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.journal...)
}

// Count returns how often entry appears in the journal.
func (l *MockLibrary) Count(entry string) int {
	n := 0
	for _, e := range l.Journal() {
		if e == entry {
			n++
		}
	}
	return n
}

func (l *MockLibrary) record(entry string) {
	l.mu.Lock()
	l.journal = append(l.journal, entry)
	l.mu.Unlock()
}

func (l *MockLibrary) failure(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures[op]
}

// UpdateDeviceList returns the simulated devices.
func (l *MockLibrary) UpdateDeviceList(ctx context.Context, timeout time.Duration) ([]DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.record(MockOpEnumerate)
	if err := l.failure(MockOpEnumerate); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, statusErr("GXUpdateDeviceList", StatusNotInitAPI, "library closed")
	}
	l.enumerated = true

	infos := make([]DeviceInfo, 0, len(l.specs))
	for i, spec := range l.specs {
		infos = append(infos, spec.info(i+1))
	}
	return infos, nil
}

// OpenByIndex opens simulated device index (1-based).
func (l *MockLibrary) OpenByIndex(index int) (Device, error) {
	l.record(fmt.Sprintf("%s %d", MockOpOpen, index))
	if err := l.failure(MockOpOpen); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, statusErr("GXOpenDeviceByIndex", StatusNotInitAPI, "library closed")
	}
	if !l.enumerated {
		return nil, statusErr("GXOpenDeviceByIndex", StatusInvalidCall, "update the device list first")
	}
	if index < 1 || index > len(l.specs) {
		return nil, fmt.Errorf("%w: %d (have %d devices)", ErrInvalidIndex, index, len(l.specs))
	}
	if _, busy := l.open[index]; busy {
		return nil, statusErr("GXOpenDeviceByIndex", StatusInvalidAccess, "device %d already open", index)
	}

	dev := newMockDevice(l, l.specs[index-1], index)
	l.open[index] = dev

	l.logger.Info("mock device opened",
		"index", index,
		"model", dev.info.ModelName,
		"pixel_format", l.specs[index-1].PixelFormat,
	)
	return dev, nil
}

func (l *MockLibrary) release(index int) {
	l.mu.Lock()
	delete(l.open, index)
	l.mu.Unlock()
}

// Name returns "mock".
func (l *MockLibrary) Name() string {
	return "mock"
}

// Close closes every device left open and shuts the library down.
func (l *MockLibrary) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	devs := make([]*MockDevice, 0, len(l.open))
	for _, d := range l.open {
		devs = append(devs, d)
	}
	l.mu.Unlock()

	for _, d := range devs {
		d.Close()
	}
	l.logger.Info("mock sdk closed")
	return nil
}

var _ Library = (*MockLibrary)(nil)

func (s MockDeviceSpec) info(index int) DeviceInfo {
	info := DeviceInfo{
		Index:         index,
		InterfaceType: s.DeviceClass.Interface(),
		DeviceClass:   s.DeviceClass,
		AccessStatus:  AccessReadWrite,
		VendorName:    "Daheng Imaging",
		ModelName:     s.ModelName,
		SerialNumber:  s.SerialNumber,
		DisplayName:   fmt.Sprintf("%s(%s)", s.ModelName, s.SerialNumber),
		DeviceID:      s.SerialNumber,
	}
	if s.DeviceClass == DeviceClassGEV {
		info.IPAddress = s.IPAddress
		info.MACAddress = s.MACAddress
	}
	return info
}

type mockFeature struct {
	info FeatureInfo
	val  Value
	// locked features are read-only while the stream is on.
	locked bool
}

// MockDevice is a simulated open camera.
type MockDevice struct {
	lib    *MockLibrary
	spec   MockDeviceSpec
	info   DeviceInfo
	logger *slog.Logger

	mu        sync.Mutex
	open      bool
	streaming bool
	features  map[string]*mockFeature
	stream    *mockStream
}

func newMockDevice(lib *MockLibrary, spec MockDeviceSpec, index int) *MockDevice {
	d := &MockDevice{
		lib:      lib,
		spec:     spec,
		info:     spec.info(index),
		logger:   lib.logger.With("device", spec.SerialNumber),
		open:     true,
		features: buildMockFeatures(spec),
	}
	d.stream = newMockStream(d)
	return d
}

func buildMockFeatures(spec MockDeviceSpec) map[string]*mockFeature {
	color := spec.PixelFormat.IsBayer() || spec.PixelFormat == PixelRGB8 || spec.PixelFormat == PixelBGR8
	ro := func(name string, k Kind, v Value) *mockFeature {
		return &mockFeature{info: FeatureInfo{Name: name, Kind: k, Implemented: true, Readable: true}, val: v}
	}
	rw := func(name string, k Kind, v Value) *mockFeature {
		f := ro(name, k, v)
		f.info.Writable = true
		return f
	}
	enum := func(name string, cur EnumEntry, entries ...EnumEntry) *mockFeature {
		f := rw(name, KindEnum, cur.Enum())
		f.info.Entries = entries
		return f
	}

	formats := []EnumEntry{{Value: int64(spec.PixelFormat), Symbolic: spec.PixelFormat.String()}}
	switch {
	case spec.PixelFormat.IsMono():
		if spec.PixelFormat != PixelMono8 {
			formats = append(formats, EnumEntry{Value: int64(PixelMono8), Symbolic: "Mono8"})
		}
	case spec.PixelFormat.IsBayer():
		if spec.PixelFormat.BitsPerPixel() == 8 {
			hi := bayer10(spec.PixelFormat.ColorFilter())
			formats = append(formats, EnumEntry{Value: int64(hi), Symbolic: hi.String()})
		}
	}

	fs := []*mockFeature{
		ro(FeatureDeviceVendorName, KindString, StringValue("Daheng Imaging")),
		ro(FeatureDeviceModelName, KindString, StringValue(spec.ModelName)),
		ro(FeatureDeviceSerialNumber, KindString, StringValue(spec.SerialNumber)),
		ro(FeatureDeviceVersion, KindString, StringValue("V1.0.0")),
		rw(FeatureDeviceUserID, KindString, StringValue("")),
		rw(FeatureWidth, KindInt, IntValue(int64(spec.Width))),
		rw(FeatureHeight, KindInt, IntValue(int64(spec.Height))),
		rw(FeatureOffsetX, KindInt, IntValue(0)),
		rw(FeatureOffsetY, KindInt, IntValue(0)),
		ro(FeaturePayloadSize, KindInt, IntValue(0)),
		enum(FeaturePixelFormat, formats[0], formats...),
		rw(FeatureReverseX, KindBool, BoolValue(false)),
		rw(FeatureReverseY, KindBool, BoolValue(false)),
		enum(FeatureAcquisitionMode, AcquisitionContinuous, AcquisitionSingleFrame, AcquisitionMultiFrame, AcquisitionContinuous),
		rw(FeatureAcquisitionFrameRate, KindFloat, FloatValue(float64(time.Second)/float64(spec.FrameInterval))),
		enum(FeatureTriggerMode, SwitchOff, SwitchOff, SwitchOn),
		enum(FeatureTriggerSource, TriggerSourceSoftware, TriggerSourceSoftware, TriggerSourceLine0, TriggerSourceLine1, TriggerSourceLine2, TriggerSourceLine3),
		enum(FeatureTriggerActivation, EnumEntry{Value: 1, Symbolic: "RisingEdge"}, EnumEntry{Value: 0, Symbolic: "FallingEdge"}, EnumEntry{Value: 1, Symbolic: "RisingEdge"}),
		{info: FeatureInfo{Name: FeatureTriggerSoftware, Kind: KindCommand, Implemented: true, Writable: true}},
		rw(FeatureExposureTime, KindFloat, FloatValue(10000)),
		enum(FeatureExposureAuto, AutoOff, AutoOff, AutoContinuous, AutoOnce),
		rw(FeatureGain, KindFloat, FloatValue(0)),
		enum(FeatureGainAuto, AutoOff, AutoOff, AutoContinuous, AutoOnce),
		rw(FeatureGammaEnable, KindBool, BoolValue(false)),
		rw(FeatureChunkModeActive, KindBool, BoolValue(false)),
	}

	filter := enum(FeaturePixelColorFilter, EnumEntry{Value: int64(spec.PixelFormat.ColorFilter()), Symbolic: spec.PixelFormat.ColorFilter().String()},
		EnumEntry{Value: 0, Symbolic: "None"}, EnumEntry{Value: 1, Symbolic: "BayerRG"}, EnumEntry{Value: 2, Symbolic: "BayerGB"},
		EnumEntry{Value: 3, Symbolic: "BayerGR"}, EnumEntry{Value: 4, Symbolic: "BayerBG"})
	filter.info.Writable = false
	balance := enum(FeatureBalanceWhiteAuto, AutoOff, AutoOff, AutoContinuous, AutoOnce)
	if !color {
		// Mono sensors expose the nodes but report them unimplemented.
		filter.info.Implemented, filter.info.Readable = false, false
		balance.info.Implemented, balance.info.Readable, balance.info.Writable = false, false, false
	}
	fs = append(fs, filter, balance)

	bound := func(name string, min, max, inc float64, unit string) {
		for _, f := range fs {
			if f.info.Name == name {
				f.info.Min, f.info.Max, f.info.Inc, f.info.Unit = min, max, inc, unit
			}
		}
	}
	bound(FeatureWidth, 16, float64(spec.Width), 0, "px")
	bound(FeatureHeight, 2, float64(spec.Height), 0, "px")
	bound(FeatureOffsetX, 0, float64(spec.Width), 0, "px")
	bound(FeatureOffsetY, 0, float64(spec.Height), 0, "px")
	bound(FeatureExposureTime, 20, 1000000, 0, "us")
	bound(FeatureGain, 0, 24, 0, "dB")
	bound(FeatureAcquisitionFrameRate, 0.1, 1000, 0, "fps")

	m := make(map[string]*mockFeature, len(fs))
	for _, f := range fs {
		switch f.info.Name {
		case FeatureWidth, FeatureHeight, FeaturePixelFormat, FeatureTriggerMode, FeatureOffsetX, FeatureOffsetY:
			f.locked = true
		}
		m[f.info.Name] = f
	}
	return m
}

func bayer10(c ColorFilter) PixelFormat {
	switch c {
	case ColorFilterBayerGB:
		return PixelBayerGB10
	case ColorFilterBayerGR:
		return PixelBayerGR10
	case ColorFilterBayerBG:
		return PixelBayerBG10
	default:
		return PixelBayerRG10
	}
}

// Info returns the enumeration record of the device.
func (d *MockDevice) Info() DeviceInfo {
	return d.info
}

// IsOpen reports whether the device handle is still valid.
func (d *MockDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Features lists the simulated features sorted by name.
func (d *MockDevice) Features() []FeatureInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FeatureInfo, 0, len(d.features))
	for _, f := range d.features {
		out = append(out, f.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns a feature descriptor.
func (d *MockDevice) Lookup(name string) (FeatureInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.features[name]
	if !ok {
		return FeatureInfo{}, false
	}
	return f.info, true
}

// Read returns the current value of a feature.
func (d *MockDevice) Read(name string) (Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := d.usable("GXGet", name)
	if err != nil {
		return Value{}, err
	}
	if f.info.Kind == KindCommand {
		return Value{}, statusErr("GXGet", StatusErrorType, "%s is a command", name)
	}
	if !f.info.Readable {
		return Value{}, statusErr("GXGet", StatusInvalidAccess, "%s is not readable", name)
	}
	if name == FeaturePayloadSize {
		return IntValue(int64(d.payloadSizeLocked())), nil
	}
	return f.val, nil
}

// Write sets a feature after kind, access and range checks.
func (d *MockDevice) Write(name string, v Value) error {
	d.lib.record(fmt.Sprintf("%s %s=%s", MockOpWrite, name, v))
	if err := d.lib.failure(MockOpWrite); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := d.usable("GXSet", name)
	if err != nil {
		return err
	}
	if v.Kind != f.info.Kind {
		return &StatusError{
			Op:     "GXSet",
			Status: StatusErrorType,
			Text:   fmt.Sprintf("%s is %s, got %s", name, f.info.Kind, v.Kind),
		}
	}
	if !f.info.Writable {
		return statusErr("GXSet", StatusInvalidAccess, "%s is not writable", name)
	}
	if f.locked && d.streaming {
		return statusErr("GXSet", StatusInvalidAccess, "%s is locked while streaming", name)
	}

	switch v.Kind {
	case KindInt:
		if err := checkRange(f.info, float64(v.Int)); err != nil {
			return err
		}
	case KindFloat:
		if err := checkRange(f.info, v.Float); err != nil {
			return err
		}
	case KindEnum:
		e, ok := f.info.Entry(v)
		if !ok {
			return statusErr("GXSetEnum", StatusOutOfRange, "%s has no entry %s", name, v)
		}
		v = e.Enum()
	}

	f.val = v
	d.logger.Debug("mock feature written", "feature", name, "value", v.String())
	return nil
}

func checkRange(info FeatureInfo, x float64) error {
	if info.Min == 0 && info.Max == 0 {
		return nil
	}
	if x < info.Min || x > info.Max {
		return statusErr("GXSet", StatusOutOfRange, "%s=%g outside [%g, %g]", info.Name, x, info.Min, info.Max)
	}
	return nil
}

// Execute runs a command feature.
func (d *MockDevice) Execute(name string) error {
	d.lib.record(name)

	d.mu.Lock()
	f, err := d.usable("GXSendCommand", name)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if f.info.Kind != KindCommand {
		d.mu.Unlock()
		return statusErr("GXSendCommand", StatusErrorType, "%s is %s, not a command", name, f.info.Kind)
	}
	streaming := d.streaming
	triggered := d.features[FeatureTriggerMode].val.Int == SwitchOn.Value
	d.mu.Unlock()

	if name != FeatureTriggerSoftware {
		return nil
	}
	if err := d.lib.failure(MockOpTrigger); err != nil {
		return err
	}
	if !streaming || !triggered {
		d.logger.Debug("software trigger ignored", "streaming", streaming, "trigger_mode", triggered)
		return nil
	}
	d.stream.fire()
	return nil
}

// usable returns the feature after open and implemented checks. d.mu must be held.
func (d *MockDevice) usable(op, name string) (*mockFeature, error) {
	if !d.open {
		return nil, statusErr(op, StatusInvalidHandle, "device closed")
	}
	f, ok := d.features[name]
	if !ok || !f.info.Implemented {
		return nil, statusErr(op, StatusNotImplemented, "%s", name)
	}
	return f, nil
}

func (d *MockDevice) payloadSizeLocked() int {
	w := int(d.features[FeatureWidth].val.Int)
	h := int(d.features[FeatureHeight].val.Int)
	pf := PixelFormat(d.features[FeaturePixelFormat].val.Int)
	return w * h * pf.BytesPerPixel()
}

// geometry returns the current frame layout.
func (d *MockDevice) geometry() (w, h int, pf PixelFormat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.features[FeatureWidth].val.Int), int(d.features[FeatureHeight].val.Int),
		PixelFormat(d.features[FeaturePixelFormat].val.Int)
}

// StreamOn starts the simulated acquisition thread.
func (d *MockDevice) StreamOn() error {
	d.lib.record(MockOpStreamOn)
	if err := d.lib.failure(MockOpStreamOn); err != nil {
		return err
	}

	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return statusErr("GXStreamOn", StatusInvalidHandle, "device closed")
	}
	if d.streaming {
		d.mu.Unlock()
		return statusErr("GXStreamOn", StatusInvalidCall, "stream already on")
	}
	d.streaming = true
	triggered := d.features[FeatureTriggerMode].val.Int == SwitchOn.Value
	d.mu.Unlock()

	d.stream.start(triggered, d.spec.FrameInterval)
	d.logger.Info("mock stream on", "trigger_mode", triggered)
	return nil
}

// StreamOff stops acquisition and waits for the acquisition thread.
func (d *MockDevice) StreamOff() error {
	d.lib.record(MockOpStreamOff)
	if err := d.lib.failure(MockOpStreamOff); err != nil {
		return err
	}
	return d.streamOff()
}

func (d *MockDevice) streamOff() error {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return statusErr("GXStreamOff", StatusInvalidCall, "stream not on")
	}
	d.streaming = false
	d.mu.Unlock()

	d.stream.stop()
	d.logger.Info("mock stream off")
	return nil
}

func (d *MockDevice) isStreaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// DataStream returns stream 0.
func (d *MockDevice) DataStream(i int) (DataStream, error) {
	if i != 0 {
		return nil, fmt.Errorf("%w: data stream %d", ErrInvalidIndex, i)
	}
	if !d.IsOpen() {
		return nil, ErrNotOpen
	}
	return d.stream, nil
}

// Close releases the device, stopping the stream first if needed.
func (d *MockDevice) Close() error {
	d.lib.record(MockOpClose)
	if err := d.lib.failure(MockOpClose); err != nil {
		return err
	}

	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return statusErr("GXCloseDevice", StatusInvalidHandle, "device already closed")
	}
	streaming := d.streaming
	d.mu.Unlock()

	if streaming {
		d.streamOff()
	}

	d.mu.Lock()
	d.open = false
	d.mu.Unlock()

	d.stream.reset()
	d.lib.release(d.info.Index)
	d.logger.Info("mock device closed")
	return nil
}

var _ Device = (*MockDevice)(nil)
