package camctl

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/go-daheng/pkg/gxi"
)

// Enumerate refreshes the device list. An empty list is reported as
// "find no device!" and returned as gxi.ErrNoDevice.
func Enumerate(ctx context.Context, con *Console, lib gxi.Library, timeout time.Duration) ([]gxi.DeviceInfo, error) {
	con.Logger().Info("enumerating devices", "backend", lib.Name(), "timeout", timeout)

	devs, err := lib.UpdateDeviceList(ctx, timeout)
	if err != nil {
		con.Error("Error enumerating devices", err)
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	if len(devs) == 0 {
		con.Error("find no device!", nil)
		return nil, gxi.ErrNoDevice
	}

	con.Info(fmt.Sprintf("Find %d devices!", len(devs)), "count", len(devs))
	return devs, nil
}

// Describe prints one block per device, keyed by the 0-based selection
// number the operator types. The fields shown depend on the interface.
func Describe(con *Console, devs []gxi.DeviceInfo) {
	for i, d := range devs {
		switch d.InterfaceType {
		case gxi.InterfaceEthernet:
			con.Printf("\nGigE device: [%d]\n", i)
			con.Printf("model name: %s\n", d.ModelName)
			con.Printf("ip address: %s\n", d.IPAddress)
		case gxi.InterfaceUSB:
			con.Printf("\nU3V device: [%d]\n", i)
			con.Printf("model name: %s\n", d.ModelName)
			con.Printf("serial number: %s\n", d.SerialNumber)
		case gxi.Interface1394:
			con.Printf("\n1394-a/b device: [%d]\n", i)
		case gxi.InterfaceCameraLink:
			con.Printf("\ncameralink device: [%d]\n", i)
			con.Printf("model name: %s\n", d.ModelName)
			con.Printf("serial number: %s\n", d.SerialNumber)
		default:
			con.Printf("\nunknown device: [%d]\n", i)
		}

		con.Logger().Info("device found",
			"number", i,
			"interface", d.InterfaceType,
			"class", d.DeviceClass,
			"model", d.ModelName,
			"serial", d.SerialNumber,
			"ip", d.IPAddress,
		)
	}
}
