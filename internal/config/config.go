// Package config loads the gxdemo configuration: a YAML file, then
// GX_* environment overrides, then command-line flags applied by the
// caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-daheng/internal/log"
	"github.com/teslashibe/go-daheng/pkg/camctl"
	"github.com/teslashibe/go-daheng/pkg/gxi"
)

// Config is the complete demo configuration.
type Config struct {
	SDK gxi.Config `yaml:"sdk"`

	// DeviceIndex is the 0-based device number; -1 prompts the operator.
	DeviceIndex int `yaml:"device_index"`

	// Mode is "callback", "active" (or "0", "1"); empty prompts.
	Mode camctl.Mode `yaml:"mode"`

	// Trigger puts the camera in software trigger mode before acquisition.
	Trigger bool `yaml:"trigger"`

	// Features are applied in order after the device is opened.
	Features []camctl.Setting `yaml:"features"`

	Acquisition camctl.Options `yaml:"acquisition"`
	Log         LogConfig      `yaml:"log"`
	Output      OutputConfig   `yaml:"output"`
	Preview     PreviewConfig  `yaml:"preview"`
	MQTT        MQTTConfig     `yaml:"mqtt"`
}

// LogConfig controls the operation log.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
	// Debug mirrors log records to stderr.
	Debug bool `yaml:"debug"`
}

// OutputConfig selects the local frame sinks.
type OutputConfig struct {
	// SaveDir writes every frame to a numbered image file when set.
	SaveDir string `yaml:"save_dir"`
	Format  string `yaml:"format"`  // png, jpeg
	Quality int    `yaml:"quality"` // jpeg only
	Window  bool   `yaml:"window"`  // requires -tags gocv
}

// PreviewConfig controls the HTTP/websocket live preview.
type PreviewConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Port        int           `yaml:"port"`
	Quality     int           `yaml:"quality"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// MQTTConfig controls frame event publishing. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	// Topic may contain {serial}.
	Topic string `yaml:"topic"`
	QoS   byte   `yaml:"qos"`
	Codec string `yaml:"codec"` // json, msgpack
}

// Default returns the standard demo configuration.
func Default() *Config {
	return &Config{
		SDK:         gxi.DefaultConfig(),
		DeviceIndex: -1,
		Trigger:     true,
		Features: []camctl.Setting{
			{Name: gxi.FeatureExposureTime, Type: "float", Value: "15000"},
			{Name: gxi.FeatureGain, Type: "float", Value: "12"},
		},
		Acquisition: camctl.DefaultOptions(),
		Log: LogConfig{
			File:  log.DefaultFile,
			Level: "info",
		},
		Output: OutputConfig{
			Format:  "png",
			Quality: 90,
		},
		Preview: PreviewConfig{
			Port:        8080,
			Quality:     80,
			MinInterval: 100 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			ClientID: "gxdemo",
			Topic:    "gxdemo/{serial}/frames",
			QoS:      0,
			Codec:    "json",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GX_* environment variables.
func (c *Config) ApplyEnv() error {
	c.SDK.Backend = gxi.Backend(envOr(EnvBackend, string(c.SDK.Backend)))
	c.Mode = camctl.Mode(envOr(EnvMode, string(c.Mode)))
	c.Log.File = envOr(EnvLogFile, c.Log.File)
	c.Log.Level = envOr(EnvLogLevel, c.Log.Level)
	c.MQTT.Broker = envOr(EnvMQTTBroker, c.MQTT.Broker)

	var errs []error
	idx, err := envInt(EnvDeviceIndex, c.DeviceIndex)
	errs = append(errs, err)
	c.DeviceIndex = idx

	port, err := envInt(EnvPreviewPort, 0)
	errs = append(errs, err)
	if port != 0 {
		c.Preview.Port = port
		c.Preview.Enabled = true
	}
	return errors.Join(errs...)
}

// Normalize maps mode aliases to their names and lower-cases enum-like
// strings. Unknown values are left for Validate to report.
func (c *Config) Normalize() {
	if c.Mode != "" {
		if m := camctl.ParseMode(string(c.Mode)); m != camctl.ModeInvalid {
			c.Mode = m
		}
	}
	c.SDK.Backend = gxi.Backend(strings.ToLower(string(c.SDK.Backend)))
	c.Acquisition.Method = camctl.ActiveMethod(strings.ToLower(string(c.Acquisition.Method)))
	c.Output.Format = strings.ToLower(c.Output.Format)
	c.MQTT.Codec = strings.ToLower(c.MQTT.Codec)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.SDK.Validate(); err != nil {
		return fmt.Errorf("sdk: %w", err)
	}
	if c.DeviceIndex < -1 {
		return fmt.Errorf("device_index must be -1 or a device number, got %d", c.DeviceIndex)
	}
	switch c.Mode {
	case "", camctl.ModeCallback, camctl.ModeActive:
	default:
		return fmt.Errorf("mode must be callback or active, got %q", c.Mode)
	}

	for i, f := range c.Features {
		if f.Name == "" {
			return fmt.Errorf("features[%d]: name is required", i)
		}
		kind, ok := gxi.ParseKind(f.Type)
		if !ok || kind == gxi.KindCommand {
			return fmt.Errorf("features[%d] %s: unknown type %q", i, f.Name, f.Type)
		}
		if _, err := gxi.ParseValue(kind, f.Value); err != nil {
			return fmt.Errorf("features[%d] %s: %w", i, f.Name, err)
		}
	}

	a := c.Acquisition
	switch a.Method {
	case camctl.MethodDQBuf, camctl.MethodGetImage:
	default:
		return fmt.Errorf("acquisition.method must be dqbuf or getimage, got %q", a.Method)
	}
	if a.TriggerDelay < 0 || a.CallbackWindow < 0 {
		return fmt.Errorf("acquisition delays must not be negative")
	}
	if a.FrameTimeout <= 0 {
		return fmt.Errorf("acquisition.frame_timeout must be positive, got %v", a.FrameTimeout)
	}
	if a.MaxFrames < 0 {
		return fmt.Errorf("acquisition.max_frames must not be negative, got %d", a.MaxFrames)
	}

	switch c.Output.Format {
	case "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("output.format must be png or jpeg, got %q", c.Output.Format)
	}

	if c.Preview.Enabled && (c.Preview.Port <= 0 || c.Preview.Port > 65535) {
		return fmt.Errorf("preview.port out of range: %d", c.Preview.Port)
	}
	if c.Preview.MinInterval < 0 {
		return fmt.Errorf("preview.min_interval must not be negative")
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
		switch c.MQTT.Codec {
		case "json", "msgpack":
		default:
			return fmt.Errorf("mqtt.codec must be json or msgpack, got %q", c.MQTT.Codec)
		}
		if c.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required")
		}
	}
	return nil
}
