package camctl

import (
	"github.com/teslashibe/go-daheng/pkg/gxi"
)

// ConfigureTrigger switches the device to software-triggered acquisition.
// USB2 devices have no trigger source selector, so only the mode is set.
func ConfigureTrigger(p *Params, info gxi.DeviceInfo) bool {
	ok := p.Set(gxi.FeatureTriggerMode, gxi.SwitchOn.Enum())
	if info.DeviceClass == gxi.DeviceClassUSB2 {
		return ok
	}
	return p.Set(gxi.FeatureTriggerSource, gxi.TriggerSourceSoftware.Enum()) && ok
}

// CheckOnline reports whether the device handle is still open.
func CheckOnline(con *Console, dev gxi.Device) bool {
	if dev.IsOpen() {
		con.Info("device online", "serial", dev.Info().SerialNumber)
		return true
	}
	con.Warn("device offline", "serial", dev.Info().SerialNumber)
	return false
}
