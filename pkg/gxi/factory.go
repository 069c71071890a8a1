package gxi

import (
	"fmt"
	"log/slog"
)

// Open initialises the SDK with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func Open(cfg Config, logger *slog.Logger) (Library, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("initialising camera sdk",
		"backend", backend,
		"enum_timeout_ms", cfg.EnumTimeout.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		specs := cfg.MockDevices
		if len(specs) == 0 {
			specs = DefaultMockDevices()
		}
		return NewMockLibrary(logger, WithDevices(specs...)), nil
	case BackendGxIAPI:
		return openGxIAPI(logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns gxiapi when the binding is compiled in.
func detectBestBackend() Backend {
	if gxiapiAvailable {
		return BackendGxIAPI
	}
	return BackendMock
}

// AvailableBackends returns the list of backends available in this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if gxiapiAvailable {
		backends = append(backends, BackendGxIAPI)
	}
	return backends
}
