package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables read by ApplyEnv.
const (
	EnvBackend     = "GX_BACKEND"
	EnvDeviceIndex = "GX_DEVICE_INDEX"
	EnvMode        = "GX_MODE"
	EnvLogFile     = "GX_LOG_FILE"
	EnvLogLevel    = "GX_LOG_LEVEL"
	EnvMQTTBroker  = "GX_MQTT_BROKER"
	EnvPreviewPort = "GX_PREVIEW_PORT"
)

// envOr returns the value of key, or def when it is unset or empty.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt returns key parsed as an integer, or def when it is unset.
func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}
