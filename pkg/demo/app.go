// Package demo wires the configuration, SDK backend, capture session and
// frame sinks into the interactive gxdemo workflow.
package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-daheng/internal/config"
	"github.com/teslashibe/go-daheng/pkg/camctl"
	"github.com/teslashibe/go-daheng/pkg/events"
	"github.com/teslashibe/go-daheng/pkg/gxi"
	"github.com/teslashibe/go-daheng/pkg/preview"
	"github.com/teslashibe/go-daheng/pkg/sink"
)

// Exit codes returned by Run.
const (
	ExitOK    = 0
	ExitError = 1
)

// App runs one demo session.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	lib     gxi.Library
	preview *preview.Server
	extra   []sink.Sink
}

// Option configures an App.
type Option func(*App)

// WithLibrary uses lib instead of opening the configured backend. The
// app still closes it.
func WithLibrary(lib gxi.Library) Option {
	return func(a *App) { a.lib = lib }
}

// WithSink adds a sink that receives every frame.
func WithSink(s sink.Sink) Option {
	return func(a *App) { a.extra = append(a.extra, s) }
}

// WithPreview reports to srv instead of starting a server from the config.
// The caller owns srv.
func WithPreview(srv *preview.Server) Option {
	return func(a *App) { a.preview = srv }
}

// New creates an app. A nil cfg uses config.Default().
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the workflow: enumerate, select, open, configure, acquire
// and clean up. Operator prompts are read from in and all console output
// goes to out. Cleanup runs on every path.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) int {
	con := camctl.NewConsole(out, a.logger)

	lib := a.lib
	if lib == nil {
		var err error
		lib, err = gxi.Open(a.cfg.SDK, a.logger)
		if err != nil {
			con.Error("Error initialising camera SDK", err)
			return ExitError
		}
	}
	defer lib.Close()

	devs, err := camctl.Enumerate(ctx, con, lib, a.cfg.SDK.EnumTimeout)
	if err != nil {
		return ExitError
	}
	camctl.Describe(con, devs)

	prompter := camctl.NewPrompter(in, con)
	number, err := a.selectDevice(con, prompter, len(devs))
	if err != nil {
		con.Error("no device selected", err)
		return ExitError
	}

	frames, cleanup := a.buildSinks(ctx, con)
	defer cleanup()

	session, err := camctl.Open(con, lib, devs, number, frames, a.cfg.Acquisition)
	if err != nil {
		return ExitError
	}
	defer session.Close()

	if a.preview != nil {
		a.preview.SetSource(session)
	}

	camctl.CheckOnline(con, session.Device())
	if err := session.Params().Dump(out); err != nil {
		con.Error("Error listing features", err)
	}
	session.Configure(a.cfg.Features, a.cfg.Trigger)

	mode := a.cfg.Mode
	if mode == camctl.ModeInvalid {
		mode, err = prompter.SelectMode()
		if err != nil {
			con.Warn("Invalid input!", "error", err)
			mode = camctl.ModeInvalid
		}
	}

	start := time.Now()
	switch mode {
	case camctl.ModeCallback:
		err = session.RunCallback(ctx)
	case camctl.ModeActive:
		err = session.RunActive(ctx)
	default:
		a.logger.Warn("no acquisition mode selected")
		return ExitOK
	}

	st := session.Status()
	a.logger.Info("acquisition finished",
		"mode", mode,
		"frames", st.Frames,
		"errors", st.Errors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	if err != nil {
		con.Error("An error occurred", err)
		return ExitError
	}
	return ExitOK
}

// selectDevice uses the configured index when it is valid and prompts
// otherwise.
func (a *App) selectDevice(con *camctl.Console, p *camctl.Prompter, n int) (int, error) {
	idx := a.cfg.DeviceIndex
	if idx >= 0 && idx < n {
		con.Logger().Info("device selected from config", "number", idx)
		return idx, nil
	}
	if idx >= n {
		con.Warn(fmt.Sprintf("configured device %d not found", idx), "devices", n)
	}
	return p.SelectDevice(n)
}

// buildSinks assembles the frame sinks named by the config. The returned
// cleanup closes them and stops anything they started.
func (a *App) buildSinks(ctx context.Context, con *camctl.Console) (sink.Sink, func()) {
	multi := sink.NewMulti(a.logger)
	var stops []func()

	out := a.cfg.Output
	if out.SaveDir != "" {
		fs, err := sink.NewFileSink(out.SaveDir, out.Format, out.Quality)
		if err != nil {
			con.Error("Error creating frame directory", err)
		} else {
			multi.Add(fs)
		}
	}
	if out.Window {
		w, err := sink.NewWindow("gxdemo")
		if errors.Is(err, sink.ErrNoWindow) {
			con.Warn("display window not available in this build")
		} else if err != nil {
			con.Error("Error opening display window", err)
		} else {
			multi.Add(w)
		}
	}

	if a.preview == nil && a.cfg.Preview.Enabled {
		srv := preview.NewServer(a.cfg.Preview.Port, a.logger)
		srv.StartAsync()
		a.preview = srv
		stops = append(stops, func() { srv.Shutdown() })
		con.Info(fmt.Sprintf("preview: http://localhost:%d", a.cfg.Preview.Port))
	}

	var pub events.Publisher
	if m := a.cfg.MQTT; m.Broker != "" {
		codec, err := events.CodecByName(m.Codec)
		if err != nil {
			con.Error("Error selecting event codec", err)
			codec = events.JSON
		}
		p := events.NewMQTTPublisher(events.MQTTConfig{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Topic:    m.Topic,
			QoS:      m.QoS,
		}, codec, a.logger)
		if err := p.Connect(ctx); err != nil {
			con.Warn("mqtt broker unreachable, events will be sent after reconnect", "error", err)
		}
		pub = p
	}

	if a.preview != nil {
		multi.Add(sink.NewPreview(a.preview.Frames(), a.cfg.Preview.Quality, a.cfg.Preview.MinInterval))
		multi.Add(events.NewSink(pub, a.preview.Events(), a.logger))
	} else if pub != nil {
		multi.Add(events.NewSink(pub, nil, a.logger))
	}

	for _, s := range a.extra {
		multi.Add(s)
	}

	return multi, func() {
		if a.preview != nil {
			a.preview.SetSource(nil)
		}
		if err := multi.Close(); err != nil {
			a.logger.Warn("closing sinks", "error", err)
		}
		for _, stop := range stops {
			stop()
		}
	}
}
