package gxi

import (
	"fmt"
	"time"
)

// Backend represents the SDK backend type.
type Backend string

const (
	// BackendAuto selects gxiapi when it is compiled in, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendGxIAPI uses the vendor's libgxiapi through cgo.
	BackendGxIAPI Backend = "gxiapi"
	// BackendMock uses a simulated camera for testing and demos.
	BackendMock Backend = "mock"
)

// Config holds SDK configuration.
type Config struct {
	// Backend specifies which SDK backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// EnumTimeout bounds device discovery.
	// Default: 1s
	EnumTimeout time.Duration `yaml:"enum_timeout" json:"enum_timeout"`

	// MockDevices lists the simulated devices for the mock backend.
	// Empty uses DefaultMockDevices.
	MockDevices []MockDeviceSpec `yaml:"mock_devices" json:"mock_devices,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendAuto,
		EnumTimeout: time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendGxIAPI, BackendMock:
	default:
		return fmt.Errorf("backend must be auto, gxiapi or mock, got %q", c.Backend)
	}
	if c.EnumTimeout <= 0 {
		return fmt.Errorf("enum_timeout must be positive, got %v", c.EnumTimeout)
	}
	for i, d := range c.MockDevices {
		if d.Width <= 0 || d.Height <= 0 {
			return fmt.Errorf("mock_devices[%d]: width and height must be positive", i)
		}
	}
	return nil
}
