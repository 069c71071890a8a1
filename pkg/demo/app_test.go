package demo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-daheng/internal/config"
	"github.com/teslashibe/go-daheng/pkg/camctl"
	"github.com/teslashibe/go-daheng/pkg/gxi"
	"github.com/teslashibe/go-daheng/pkg/sink"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testDevices() []gxi.MockDeviceSpec {
	return []gxi.MockDeviceSpec{
		{ModelName: "MER2-503-23GC", SerialNumber: "KJ0230040001", DeviceClass: gxi.DeviceClassGEV,
			IPAddress: "192.168.1.20", PixelFormat: gxi.PixelBayerRG8, Width: 32, Height: 16},
		{ModelName: "MER2-160-227U3M", SerialNumber: "FDE22070123", DeviceClass: gxi.DeviceClassU3V,
			PixelFormat: gxi.PixelMono8, Width: 32, Height: 16},
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.SDK.Backend = gxi.BackendMock
	cfg.Acquisition.TriggerDelay = 5 * time.Millisecond
	cfg.Acquisition.CallbackWindow = 150 * time.Millisecond
	cfg.Acquisition.FrameTimeout = 50 * time.Millisecond
	return cfg
}

func run(t *testing.T, cfg *config.Config, lib *gxi.MockLibrary, input string, opts ...Option) (int, string) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithLibrary(lib)}, opts...)
	code := New(cfg, quiet, opts...).Run(context.Background(), strings.NewReader(input), &out)
	return code, out.String()
}

// capture keeps the journal entries of the acquisition flow.
func capture(journal []string) string {
	var out []string
	for _, e := range journal {
		switch e {
		case gxi.MockOpRegister, gxi.MockOpStreamOn, gxi.FeatureTriggerSoftware,
			gxi.MockOpStreamOff, gxi.MockOpUnregister, gxi.MockOpClose:
			out = append(out, e)
		}
	}
	return strings.Join(out, ",")
}

func TestRun_NoDevice(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices())
	code, out := run(t, testConfig(), lib, "")

	if code != ExitError {
		t.Errorf("Expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(out, "find no device!") {
		t.Errorf("Missing diagnostic:\n%s", out)
	}
}

func TestRun_Callback(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices(testDevices()...))
	counter := &sink.Counter{}

	code, out := run(t, testConfig(), lib, "5\nzero\n0\n0\n", WithSink(counter))
	if code != ExitOK {
		t.Fatalf("Expected exit 0, got %d:\n%s", code, out)
	}

	for _, want := range []string{
		"Find 2 devices!",
		"GigE device: [0]",
		"input error! Please try again.",
		"Invalid input! Please enter a valid integer.",
		"set ExposureTime to 15000 succeeded",
		"set Gain to 12 succeeded",
		"FEATURE",
		"<Start acquisition>",
		"Frame ID: 0",
		"<Stop acquisition>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q", want)
		}
	}

	want := "register_callback,stream_on,TriggerSoftware,stream_off,unregister_callback,close"
	if got := capture(lib.Journal()); got != want {
		t.Errorf("Journal %s, want %s", got, want)
	}
	if counter.Frames() != 1 {
		t.Errorf("Expected 1 frame, got %d", counter.Frames())
	}
	if lib.Count("open 1") != 1 {
		t.Errorf("Device 0 should open SDK index 1: %v", lib.Journal())
	}
}

func TestRun_ActiveFromConfig(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices(testDevices()...))
	cfg := testConfig()
	cfg.DeviceIndex = 1
	cfg.Mode = camctl.ModeActive
	cfg.Acquisition.MaxFrames = 2
	cfg.Output.SaveDir = t.TempDir()

	code, out := run(t, cfg, lib, "")
	if code != ExitOK {
		t.Fatalf("Expected exit 0, got %d:\n%s", code, out)
	}
	if strings.Count(out, "Got an image") != 2 {
		t.Errorf("Expected 2 frames:\n%s", out)
	}
	if lib.Count("open 2") != 1 {
		t.Errorf("Expected SDK index 2, journal %v", lib.Journal())
	}

	files, _ := filepath.Glob(filepath.Join(cfg.Output.SaveDir, "frame_*.png"))
	if len(files) != 2 {
		t.Errorf("Expected 2 saved frames, got %v", files)
	}
	want := "stream_on,TriggerSoftware,TriggerSoftware,stream_off,close"
	if got := capture(lib.Journal()); got != want {
		t.Errorf("Journal %s, want %s", got, want)
	}
}

func TestRun_InvalidMode(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices(testDevices()...))
	code, out := run(t, testConfig(), lib, "0\n7\n")

	if code != ExitOK {
		t.Errorf("Expected exit 0, got %d", code)
	}
	if !strings.Contains(out, "Invalid input!") {
		t.Errorf("Missing warning:\n%s", out)
	}
	if got := capture(lib.Journal()); got != "close" {
		t.Errorf("Expected only close, got %s", got)
	}
}

func TestRun_SelectionEOF(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices(testDevices()...))
	code, _ := run(t, testConfig(), lib, "9\n")

	if code != ExitError {
		t.Errorf("Expected exit %d, got %d", ExitError, code)
	}
	if lib.Count(gxi.MockOpClose) != 0 {
		t.Error("No device should have been opened")
	}
}

func TestRun_OpenFailure(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices(testDevices()...),
		gxi.WithFailure(gxi.MockOpOpen, errors.New("device busy")))
	code, out := run(t, testConfig(), lib, "0\n0\n")

	if code != ExitError {
		t.Errorf("Expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(out, "Error creating camera instance") {
		t.Errorf("Missing open error:\n%s", out)
	}
}

func TestRun_CleanupAfterStreamFailure(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices(testDevices()...),
		gxi.WithFailure(gxi.MockOpStreamOn, errors.New("bandwidth exceeded")))
	code, out := run(t, testConfig(), lib, "0\n0\n")

	if code != ExitError {
		t.Errorf("Expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(out, "An error occurred") {
		t.Errorf("Missing error report:\n%s", out)
	}
	if got := capture(lib.Journal()); got != "register_callback,stream_on,unregister_callback,close" {
		t.Errorf("Unexpected cleanup %s", got)
	}
}

func TestRun_Cancelled(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices(testDevices()...))
	cfg := testConfig()
	cfg.Trigger = false

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	code := New(cfg, quiet, WithLibrary(lib)).Run(ctx, strings.NewReader("1\n1\n"), &out)
	if code != ExitOK {
		t.Fatalf("Expected exit 0, got %d:\n%s", code, out.String())
	}
	if !strings.Contains(out.String(), "Image acquisition stopped by user.") {
		t.Errorf("Missing stop message:\n%s", out.String())
	}
	if !strings.HasSuffix(capture(lib.Journal()), "stream_off,close") {
		t.Errorf("Cleanup did not run: %v", lib.Journal())
	}
}

func TestRun_BackendUnavailable(t *testing.T) {
	for _, b := range gxi.AvailableBackends() {
		if b == gxi.BackendGxIAPI {
			t.Skip("built with the gxiapi backend")
		}
	}
	cfg := testConfig()
	cfg.SDK.Backend = gxi.BackendGxIAPI

	var out bytes.Buffer
	code := New(cfg, quiet).Run(context.Background(), strings.NewReader(""), &out)
	if code != ExitError {
		t.Errorf("Expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(out.String(), "Error initialising camera SDK") {
		t.Errorf("Missing init error:\n%s", out.String())
	}
}

func TestRun_BadSaveDir(t *testing.T) {
	lib := gxi.NewMockLibrary(quiet, gxi.WithDevices(testDevices()...))
	cfg := testConfig()
	blocker := filepath.Join(t.TempDir(), "file")
	os.WriteFile(blocker, nil, 0o644)
	cfg.Output.SaveDir = filepath.Join(blocker, "frames")

	code, out := run(t, cfg, lib, "0\n0\n")
	if code != ExitOK {
		t.Errorf("A broken sink should not stop the demo, got exit %d", code)
	}
	if !strings.Contains(out, "Error creating frame directory") {
		t.Errorf("Missing sink error:\n%s", out)
	}
}
