package camctl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-daheng/pkg/gxi"
	"github.com/teslashibe/go-daheng/pkg/sink"
)

func testConsole() (*Console, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewConsole(&buf, slog.New(slog.NewTextHandler(io.Discard, nil))), &buf
}

func smallDevices() []gxi.MockDeviceSpec {
	return []gxi.MockDeviceSpec{
		{
			ModelName:    "MER2-503-23GC",
			SerialNumber: "KJ0230040001",
			DeviceClass:  gxi.DeviceClassGEV,
			IPAddress:    "192.168.1.20",
			PixelFormat:  gxi.PixelBayerRG8,
			Width:        32,
			Height:       16,
		},
		{
			ModelName:    "MER2-160-227U3M",
			SerialNumber: "FDE22070123",
			DeviceClass:  gxi.DeviceClassU3V,
			PixelFormat:  gxi.PixelMono8,
			Width:        32,
			Height:       16,
		},
		{
			ModelName:    "MER-131-75GM",
			SerialNumber: "LT0150030002",
			DeviceClass:  gxi.DeviceClassUSB2,
			PixelFormat:  gxi.PixelMono8,
			Width:        32,
			Height:       16,
		},
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.TriggerDelay = 5 * time.Millisecond
	opts.CallbackWindow = 150 * time.Millisecond
	opts.FrameTimeout = 50 * time.Millisecond
	return opts
}

// acquisition keeps the journal entries that describe the capture flow.
func acquisition(journal []string) []string {
	keep := map[string]bool{
		gxi.MockOpRegister:         true,
		gxi.MockOpStreamOn:         true,
		gxi.FeatureTriggerSoftware: true,
		gxi.MockOpStreamOff:        true,
		gxi.MockOpUnregister:       true,
		gxi.MockOpClose:            true,
	}
	var out []string
	for _, e := range journal {
		if keep[e] {
			out = append(out, e)
		}
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func openSession(t *testing.T, lib *gxi.MockLibrary, number int, out sink.Sink, opts Options) (*Session, *bytes.Buffer) {
	t.Helper()
	con, buf := testConsole()
	devs, err := Enumerate(context.Background(), con, lib, time.Second)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	s, err := Open(con, lib, devs, number, out, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, buf
}

func TestEnumerate_NoDevice(t *testing.T) {
	con, buf := testConsole()
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices())

	_, err := Enumerate(context.Background(), con, lib, time.Second)
	if !errors.Is(err, gxi.ErrNoDevice) {
		t.Fatalf("Expected ErrNoDevice, got %v", err)
	}
	if !strings.Contains(buf.String(), "find no device!") {
		t.Errorf("Missing diagnostic in output: %q", buf.String())
	}
}

func TestEnumerate_Failure(t *testing.T) {
	con, buf := testConsole()
	lib := gxi.NewMockLibrary(nil, gxi.WithFailure(gxi.MockOpEnumerate, errors.New("no transport layer")))

	if _, err := Enumerate(context.Background(), con, lib, time.Second); err == nil {
		t.Fatal("Expected enumeration error")
	}
	if !strings.Contains(buf.String(), "Error enumerating devices") {
		t.Errorf("Missing error report: %q", buf.String())
	}
}

func TestEnumerateAndDescribe(t *testing.T) {
	con, buf := testConsole()
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))

	devs, err := Enumerate(context.Background(), con, lib, time.Second)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	Describe(con, devs)

	out := buf.String()
	for _, want := range []string{
		"Find 3 devices!",
		"GigE device: [0]",
		"ip address: 192.168.1.20",
		"U3V device: [1]",
		"serial number: FDE22070123",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestSelectDevice_Reprompts(t *testing.T) {
	con, buf := testConsole()
	p := NewPrompter(strings.NewReader("abc\n5\n-1\n1\n"), con)

	n, err := p.SelectDevice(2)
	if err != nil {
		t.Fatalf("SelectDevice failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected device 1, got %d", n)
	}

	out := buf.String()
	if strings.Count(out, "input error! Please try again.") != 2 {
		t.Errorf("Expected two range errors:\n%s", out)
	}
	if strings.Count(out, "Invalid input! Please enter a valid integer.") != 1 {
		t.Errorf("Expected one parse error:\n%s", out)
	}
}

func TestSelectDevice_EOF(t *testing.T) {
	con, _ := testConsole()
	p := NewPrompter(strings.NewReader("7\n"), con)

	if _, err := p.SelectDevice(2); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"0\n", ModeCallback},
		{"1\n", ModeActive},
		{" active \n", ModeActive},
		{"2\n", ModeInvalid},
	}

	for _, tt := range tests {
		con, buf := testConsole()
		got, err := NewPrompter(strings.NewReader(tt.input), con).SelectMode()
		if err != nil {
			t.Fatalf("SelectMode(%q) failed: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("SelectMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if tt.want == ModeInvalid && !strings.Contains(buf.String(), "Invalid input!") {
			t.Errorf("SelectMode(%q) did not warn", tt.input)
		}
	}
}

func TestParams_MismatchIsNoop(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	s, buf := openSession(t, lib, 0, nil, testOptions())
	defer s.Close()
	p := s.Params()

	if p.Set(gxi.FeatureGain, gxi.IntValue(3)) {
		t.Error("Integer set on float feature should fail")
	}
	if !strings.Contains(buf.String(), "Gain is not a integer parameter") {
		t.Errorf("Missing mismatch message:\n%s", buf.String())
	}
	for _, e := range lib.Journal() {
		if strings.HasPrefix(e, "write Gain") {
			t.Errorf("Mismatched set reached the device: %q", e)
		}
	}

	v, ok := p.Get(gxi.FeatureGain, gxi.KindFloat)
	if !ok || v.Float != 0 {
		t.Errorf("Gain changed: %v, %v", v, ok)
	}
}

func TestParams_Reports(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	s, buf := openSession(t, lib, 1, nil, testOptions())
	defer s.Close()
	p := s.Params()

	tests := []struct {
		name string
		run  func() bool
		want string
	}{
		{"unsupported kind", func() bool { _, ok := p.Get(gxi.FeatureTriggerSoftware, gxi.KindCommand); return ok }, "unsupported parameter type"},
		{"missing feature", func() bool { return p.Set("LightSourcePreset", gxi.IntValue(1)) }, "device does not support LightSourcePreset"},
		{"unimplemented on mono", func() bool { _, ok := p.Get(gxi.FeaturePixelColorFilter, gxi.KindEnum); return ok }, "device does not support PixelColorFilter"},
		{"out of range", func() bool { return p.Set(gxi.FeatureGain, gxi.FloatValue(99)) }, "set Gain to 99 failed"},
		{"bad text value", func() bool { return p.Apply(Setting{Name: "Gain", Type: "float", Value: "loud"}) }, "set Gain failed"},
		{"bad text type", func() bool { return p.Apply(Setting{Name: "Gain", Type: "decimal", Value: "1"}) }, "unsupported parameter type: decimal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			if tt.run() {
				t.Error("Expected the operation to be refused")
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("Output %q missing %q", buf.String(), tt.want)
			}
		})
	}

	buf.Reset()
	if !p.Apply(Setting{Name: "ExposureTime", Type: "float", Value: "15000"}) {
		t.Fatalf("Apply failed:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "set ExposureTime to 15000 succeeded") {
		t.Errorf("Missing success message: %q", buf.String())
	}
}

func TestParams_Accessors(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	s, buf := openSession(t, lib, 0, nil, testOptions())
	defer s.Close()
	p := s.Params()

	writes := func(feature string) []string {
		var out []string
		for _, e := range lib.Journal() {
			if strings.HasPrefix(e, "write "+feature+"=") {
				out = append(out, e)
			}
		}
		return out
	}

	if !p.Set(gxi.FeatureTriggerMode, gxi.EnumSymbol("on")) {
		t.Fatalf("Symbolic enum set failed:\n%s", buf.String())
	}
	if got := writes(gxi.FeatureTriggerMode); len(got) != 1 || got[0] != "write TriggerMode=1 (On)" {
		t.Errorf("Enum not resolved to its entry: %v", got)
	}

	buf.Reset()
	if p.Set(gxi.FeatureTriggerMode, gxi.EnumSymbol("Sideways")) {
		t.Error("Unknown enum entry should be refused")
	}
	if !strings.Contains(buf.String(), "have Off, On") {
		t.Errorf("Missing entry list: %q", buf.String())
	}
	if p.Set(gxi.FeatureGain, gxi.FloatValue(99)) {
		t.Error("Out of range gain should be refused")
	}
	if len(writes(gxi.FeatureTriggerMode)) != 1 || len(writes(gxi.FeatureGain)) != 0 {
		t.Errorf("Refused values reached the device: %v", lib.Journal())
	}

	buf.Reset()
	if _, ok := p.Get(gxi.FeatureExposureTime, gxi.KindFloat); !ok {
		t.Fatal("Get ExposureTime failed")
	}
	if !strings.Contains(buf.String(), "get ExposureTime succeeded, value 10000 us") {
		t.Errorf("Float not formatted with unit: %q", buf.String())
	}
}

func TestParams_Dump(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	s, _ := openSession(t, lib, 0, nil, testOptions())
	defer s.Close()

	var out bytes.Buffer
	if err := s.Params().Dump(&out); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	for _, want := range []string{"FEATURE", "ExposureTime", "10000 us", "TriggerSoftware", "RO"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Dump missing %q:\n%s", want, out.String())
		}
	}
}

func TestConfigureTrigger(t *testing.T) {
	tests := []struct {
		number     int
		wantSource int
	}{
		{0, 1}, // GigE
		{2, 0}, // USB2 has no source selector
	}

	for _, tt := range tests {
		lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
		s, _ := openSession(t, lib, tt.number, nil, testOptions())

		if !ConfigureTrigger(s.Params(), s.Info()) {
			t.Errorf("device %d: ConfigureTrigger failed", tt.number)
		}

		sources := 0
		for _, e := range lib.Journal() {
			if strings.HasPrefix(e, "write TriggerSource=") {
				sources++
			}
		}
		if sources != tt.wantSource {
			t.Errorf("device %d: %d TriggerSource writes, want %d", tt.number, sources, tt.wantSource)
		}
		if !s.triggerMode() {
			t.Errorf("device %d: trigger mode not on", tt.number)
		}
		s.Close()
	}
}

func TestCheckOnline(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	s, buf := openSession(t, lib, 0, nil, testOptions())

	if !CheckOnline(s.con, s.Device()) {
		t.Error("Open device reported offline")
	}
	s.Close()
	if CheckOnline(s.con, s.Device()) {
		t.Error("Closed device reported online")
	}
	if !strings.Contains(buf.String(), "device offline") {
		t.Errorf("Missing offline warning:\n%s", buf.String())
	}
}

func TestOpen_Errors(t *testing.T) {
	con, _ := testConsole()
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	devs, _ := lib.UpdateDeviceList(context.Background(), time.Second)

	if _, err := Open(con, lib, devs, len(devs), nil, testOptions()); !errors.Is(err, gxi.ErrInvalidIndex) {
		t.Errorf("Expected ErrInvalidIndex, got %v", err)
	}

	lib.SetFailure(gxi.MockOpOpen, errors.New("device busy"))
	if _, err := Open(con, lib, devs, 0, nil, testOptions()); err == nil {
		t.Error("Expected open failure")
	}
}

func TestOpen_UsesNextSDKIndex(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	s, _ := openSession(t, lib, 1, nil, testOptions())
	defer s.Close()

	if lib.Count("open 2") != 1 {
		t.Errorf("Expected SDK index 2 to be opened, journal %v", lib.Journal())
	}
	if s.Info().SerialNumber != "FDE22070123" {
		t.Errorf("Unexpected device %v", s.Info())
	}
	if s.ID() == "" {
		t.Error("Session has no ID")
	}
}

type recordingSink struct {
	frames []sink.Frame
}

func (r *recordingSink) Show(ctx context.Context, f sink.Frame) error {
	f.Raw = f.Raw.Clone()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordingSink) Close() error { return nil }

// countingLibrary opens devices that count reads per feature.
type countingLibrary struct {
	gxi.Library
	reads map[string]*atomic.Int64
}

type countingDevice struct {
	gxi.Device
	reads map[string]*atomic.Int64
}

func (l *countingLibrary) OpenByIndex(index int) (gxi.Device, error) {
	dev, err := l.Library.OpenByIndex(index)
	if err != nil {
		return nil, err
	}
	return &countingDevice{Device: dev, reads: l.reads}, nil
}

func (d *countingDevice) Read(name string) (gxi.Value, error) {
	if n, ok := d.reads[name]; ok {
		n.Add(1)
	}
	return d.Device.Read(name)
}

func TestRunCallback_ReadsColorFilterOnce(t *testing.T) {
	mock := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	filterReads := &atomic.Int64{}
	lib := &countingLibrary{Library: mock, reads: map[string]*atomic.Int64{gxi.FeaturePixelColorFilter: filterReads}}

	con, _ := testConsole()
	devs, err := Enumerate(context.Background(), con, lib, time.Second)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	s, err := Open(con, lib, devs, 0, nil, testOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := s.RunCallback(context.Background()); err != nil {
		t.Fatalf("RunCallback failed: %v", err)
	}
	if got := filterReads.Load(); got != 1 {
		t.Errorf("Expected 1 PixelColorFilter read, got %d", got)
	}
}

func TestRunCallback_StreamOrder(t *testing.T) {
	tests := []struct {
		name     string
		number   int
		channels int
		color    bool
	}{
		{"color", 0, 3, true},
		{"mono", 1, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
			rec := &recordingSink{}
			s, buf := openSession(t, lib, tt.number, rec, testOptions())
			s.Configure([]Setting{{Name: "ExposureTime", Type: "float", Value: "15000"}}, true)

			if s.IsColor() != tt.color {
				t.Errorf("IsColor() = %v, want %v", s.IsColor(), tt.color)
			}
			if err := s.RunCallback(context.Background()); err != nil {
				t.Fatalf("RunCallback failed: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			want := []string{"register_callback", "stream_on", "TriggerSoftware", "stream_off", "unregister_callback", "close"}
			if got := acquisition(lib.Journal()); !equal(got, want) {
				t.Errorf("Journal %v, want %v", got, want)
			}

			if len(rec.frames) != 1 {
				t.Fatalf("Expected 1 frame, got %d", len(rec.frames))
			}
			f := rec.frames[0]
			if f.Pixels.Channels != tt.channels || f.Pixels.Width != 32 || f.Pixels.Height != 16 {
				t.Errorf("Unexpected pixels %dx%dx%d", f.Pixels.Width, f.Pixels.Height, f.Pixels.Channels)
			}
			if f.Mode != string(ModeCallback) || f.SessionID != s.ID() {
				t.Errorf("Frame not tagged: mode %q session %q", f.Mode, f.SessionID)
			}

			out := buf.String()
			for _, want := range []string{"<Start acquisition>", "Frame ID: 0   Height: 16   Width: 32", "<Stop acquisition>"} {
				if !strings.Contains(out, want) {
					t.Errorf("Output missing %q:\n%s", want, out)
				}
			}
			if st := s.Status(); st.Frames != 1 || !st.Closed || st.Mode != ModeCallback {
				t.Errorf("Unexpected status %+v", st)
			}
		})
	}
}

func TestRunCallback_Cancelled(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	opts := testOptions()
	opts.CallbackWindow = time.Minute
	s, _ := openSession(t, lib, 0, nil, opts)
	s.Configure(nil, true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.RunCallback(ctx); err != nil {
		t.Fatalf("RunCallback failed: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Cancellation did not end the callback window")
	}
	if lib.Count(gxi.MockOpStreamOff) != 1 {
		t.Errorf("Expected one stream_off, journal %v", lib.Journal())
	}
	s.Close()
}

type panicSink struct{}

func (panicSink) Show(ctx context.Context, f sink.Frame) error { panic("display gone") }

func (panicSink) Close() error { return nil }

func TestRunCallback_HandlerPanic(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	s, buf := openSession(t, lib, 1, panicSink{}, testOptions())
	s.Configure(nil, true)

	if err := s.RunCallback(context.Background()); err != nil {
		t.Fatalf("RunCallback failed: %v", err)
	}
	s.Close()

	if !strings.Contains(buf.String(), "Error in capture callback") {
		t.Errorf("Panic not reported:\n%s", buf.String())
	}
	if s.Status().Errors == 0 {
		t.Error("Panic not counted")
	}
}

func TestCleanup_AfterFailure(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		op   string
		err  error
		want []string
	}{
		{
			name: "callback stream on fails",
			mode: ModeCallback,
			op:   gxi.MockOpStreamOn,
			err:  errors.New("bandwidth exceeded"),
			want: []string{"register_callback", "stream_on", "unregister_callback", "close"},
		},
		{
			name: "active device lost",
			mode: ModeActive,
			op:   gxi.MockOpGetImage,
			err:  gxi.ErrNotOpen,
			want: []string{"stream_on", "stream_off", "close"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...), gxi.WithFailure(tt.op, tt.err))
			s, _ := openSession(t, lib, 0, nil, testOptions())

			var err error
			func() {
				defer s.Close()
				if tt.mode == ModeCallback {
					err = s.RunCallback(context.Background())
				} else {
					err = s.RunActive(context.Background())
				}
			}()

			if !errors.Is(err, tt.err) {
				t.Errorf("Expected %v, got %v", tt.err, err)
			}
			if got := acquisition(lib.Journal()); !equal(got, tt.want) {
				t.Errorf("Journal %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunActive_MaxFrames(t *testing.T) {
	for _, method := range []ActiveMethod{MethodDQBuf, MethodGetImage} {
		t.Run(string(method), func(t *testing.T) {
			lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
			opts := testOptions()
			opts.Method = method
			opts.MaxFrames = 3
			counter := &sink.Counter{}
			s, buf := openSession(t, lib, 0, counter, opts)
			defer s.Close()
			s.Configure(nil, true)

			if err := s.RunActive(context.Background()); err != nil {
				t.Fatalf("RunActive failed: %v", err)
			}
			if counter.Frames() != 3 {
				t.Errorf("Expected 3 frames, got %d", counter.Frames())
			}
			if strings.Count(buf.String(), "Got an image") != 3 {
				t.Errorf("Expected 3 reports:\n%s", buf.String())
			}
			if lib.Count(gxi.MockOpStreamOn) != 1 || lib.Count(gxi.MockOpStreamOff) != 1 {
				t.Errorf("Unbalanced streaming, journal %v", lib.Journal())
			}
		})
	}
}

func TestRunActive_NoDataUntilCancelled(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	opts := testOptions()
	opts.SoftTrigger = false
	opts.FrameTimeout = 10 * time.Millisecond
	s, buf := openSession(t, lib, 1, nil, opts)
	defer s.Close()
	s.Configure(nil, true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.RunActive(ctx); err != nil {
		t.Fatalf("RunActive failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "no data") {
		t.Errorf("Expected timeouts to be reported:\n%s", out)
	}
	if !strings.Contains(out, "Image acquisition stopped by user.") {
		t.Errorf("Missing stop message:\n%s", out)
	}
}

func TestRunActive_ContinuesAfterError(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	opts := testOptions()
	opts.MaxFrames = 1
	counter := &sink.Counter{}
	s, buf := openSession(t, lib, 0, counter, opts)
	defer s.Close()
	s.Configure(nil, true)

	lib.SetFailure(gxi.MockOpGetImage, errors.New("packet resend failed"))
	go func() {
		time.Sleep(10 * time.Millisecond)
		lib.SetFailure(gxi.MockOpGetImage, nil)
	}()

	if err := s.RunActive(context.Background()); err != nil {
		t.Fatalf("RunActive failed: %v", err)
	}
	if counter.Frames() != 1 {
		t.Errorf("Expected 1 frame, got %d", counter.Frames())
	}
	if !strings.Contains(buf.String(), "Error getting image") {
		t.Errorf("Transient error not reported:\n%s", buf.String())
	}
}

func TestClose_Idempotent(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	s, _ := openSession(t, lib, 0, nil, testOptions())

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if lib.Count(gxi.MockOpClose) != 1 {
		t.Errorf("Device closed %d times", lib.Count(gxi.MockOpClose))
	}
	if lib.Count(gxi.MockOpUnregister) != 0 {
		t.Error("Unregister called without a registered callback")
	}
}

func TestHandlers_IncompleteFrame(t *testing.T) {
	lib := gxi.NewMockLibrary(nil, gxi.WithDevices(smallDevices()...))
	counter := &sink.Counter{}
	s, buf := openSession(t, lib, 1, counter, testOptions())
	defer s.Close()

	raw := &gxi.RawImage{FrameID: 9, Width: 4, Height: 2, PixelFormat: gxi.PixelMono8, Status: gxi.FrameIncomplete, Data: make([]byte, 8)}
	if s.handleMono(raw) {
		t.Error("Incomplete frame delivered")
	}
	if counter.Frames() != 0 {
		t.Error("Sink received an incomplete frame")
	}
	if !strings.Contains(buf.String(), "incomplete frame skipped") {
		t.Errorf("Missing warning:\n%s", buf.String())
	}

	short := &gxi.RawImage{FrameID: 10, Width: 4, Height: 2, PixelFormat: gxi.PixelBayerRG8, Data: make([]byte, 3)}
	if s.handleColor(short) {
		t.Error("Short frame delivered")
	}
	if !strings.Contains(buf.String(), "Failed to convert RawImage to RGBImage") {
		t.Errorf("Missing conversion error:\n%s", buf.String())
	}
}
