// gxdemo - interactive Daheng camera acquisition demo
// Enumerates cameras, opens the chosen one and acquires frames by callback
// or by polling.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-daheng/internal/config"
	"github.com/teslashibe/go-daheng/internal/log"
	"github.com/teslashibe/go-daheng/pkg/camctl"
	"github.com/teslashibe/go-daheng/pkg/demo"
	"github.com/teslashibe/go-daheng/pkg/gxi"
)

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(demo.ExitError)
	}

	opts := log.Options{Level: cfg.Log.Level, File: cfg.Log.File}
	if cfg.Log.Debug {
		opts.Level = "debug"
		opts.Console = os.Stderr
	}
	if err := log.Init(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(demo.ExitError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := demo.New(cfg, log.L()).Run(ctx, os.Stdin, os.Stdout)

	cancel()
	log.Close()
	os.Exit(code)
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() (*config.Config, error) {
	path := flag.String("config", "", "YAML config file")
	backend := flag.String("backend", "", "SDK backend: auto, gxiapi, mock")
	device := flag.Int("device", -1, "Device number to open (skips the prompt)")
	mode := flag.String("mode", "", "Acquisition mode: callback (0) or active (1)")
	method := flag.String("method", "", "Active acquisition call: dqbuf or getimage")
	frames := flag.Int("frames", 0, "Stop active acquisition after N frames")
	saveDir := flag.String("save-dir", "", "Write every frame to this directory")
	window := flag.Bool("window", false, "Show frames in a window (gocv builds)")
	previewPort := flag.Int("preview", 0, "Serve a live preview on this port")
	broker := flag.String("mqtt", "", "Publish frame events to this MQTT broker")
	logFile := flag.String("log-file", "", "Operation log file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["backend"] {
		cfg.SDK.Backend = gxi.Backend(*backend)
	}
	if set["device"] {
		cfg.DeviceIndex = *device
	}
	if set["mode"] {
		cfg.Mode = camctl.Mode(*mode)
	}
	if set["method"] {
		cfg.Acquisition.Method = camctl.ActiveMethod(*method)
	}
	if set["frames"] {
		cfg.Acquisition.MaxFrames = *frames
	}
	if set["save-dir"] {
		cfg.Output.SaveDir = *saveDir
	}
	if set["window"] {
		cfg.Output.Window = *window
	}
	if set["preview"] {
		cfg.Preview.Enabled = *previewPort > 0
		cfg.Preview.Port = *previewPort
	}
	if set["mqtt"] {
		cfg.MQTT.Broker = *broker
	}
	if set["log-file"] {
		cfg.Log.File = *logFile
	}
	if *debug {
		cfg.Log.Debug = true
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
