// Package gxi models the Daheng Galaxy (GxIAPI) camera SDK as Go interfaces.
//
// This package supports multiple backends:
//   - gxiapi - cgo binding to libgxiapi, built with `-tags gxiapi`
//   - Mock - CI/Testing without hardware
//
// Callers enumerate devices through a Library, open a Device by its 1-based
// SDK index, read and write typed features by name and acquire frames from a
// DataStream either by registering a capture callback or by polling.
package gxi

import (
	"fmt"
	"strings"
	"time"
)

// InterfaceType is the transport a device is attached through.
type InterfaceType int

const (
	InterfaceUnknown InterfaceType = iota
	InterfaceEthernet
	InterfaceUSB
	Interface1394
	InterfaceCameraLink
)

func (t InterfaceType) String() string {
	switch t {
	case InterfaceEthernet:
		return "ethernet"
	case InterfaceUSB:
		return "usb"
	case Interface1394:
		return "1394"
	case InterfaceCameraLink:
		return "cameralink"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t InterfaceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *InterfaceType) UnmarshalText(b []byte) error {
	for _, cand := range []InterfaceType{InterfaceUnknown, InterfaceEthernet, InterfaceUSB, Interface1394, InterfaceCameraLink} {
		if cand.String() == strings.ToLower(string(b)) {
			*t = cand
			return nil
		}
	}
	return fmt.Errorf("unknown interface type %q", string(b))
}

// DeviceClass mirrors GX_DEVICE_CLASS_LIST.
type DeviceClass int

const (
	DeviceClassUnknown DeviceClass = 0
	DeviceClassUSB2    DeviceClass = 1
	DeviceClassGEV     DeviceClass = 2
	DeviceClassU3V     DeviceClass = 3
	DeviceClassSmart   DeviceClass = 4
)

func (c DeviceClass) String() string {
	switch c {
	case DeviceClassUSB2:
		return "usb2"
	case DeviceClassGEV:
		return "gev"
	case DeviceClassU3V:
		return "u3v"
	case DeviceClassSmart:
		return "smart"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c DeviceClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *DeviceClass) UnmarshalText(b []byte) error {
	for _, cand := range []DeviceClass{DeviceClassUnknown, DeviceClassUSB2, DeviceClassGEV, DeviceClassU3V, DeviceClassSmart} {
		if cand.String() == strings.ToLower(string(b)) {
			*c = cand
			return nil
		}
	}
	return fmt.Errorf("unknown device class %q", string(b))
}

// Interface returns the transport implied by the device class.
func (c DeviceClass) Interface() InterfaceType {
	switch c {
	case DeviceClassGEV:
		return InterfaceEthernet
	case DeviceClassUSB2, DeviceClassU3V:
		return InterfaceUSB
	default:
		return InterfaceUnknown
	}
}

// AccessStatus mirrors GX_ACCESS_STATUS.
type AccessStatus int

const (
	AccessUnknown   AccessStatus = 0
	AccessReadWrite AccessStatus = 1
	AccessReadOnly  AccessStatus = 2
	AccessNoAccess  AccessStatus = 3
)

func (a AccessStatus) String() string {
	switch a {
	case AccessReadWrite:
		return "read-write"
	case AccessReadOnly:
		return "read-only"
	case AccessNoAccess:
		return "no-access"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a AccessStatus) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccessStatus) UnmarshalText(b []byte) error {
	for _, cand := range []AccessStatus{AccessUnknown, AccessReadWrite, AccessReadOnly, AccessNoAccess} {
		if cand.String() == strings.ToLower(string(b)) {
			*a = cand
			return nil
		}
	}
	return fmt.Errorf("unknown access status %q", string(b))
}

// DeviceInfo describes one enumerated device.
type DeviceInfo struct {
	// Index is the 1-based SDK index used by OpenByIndex.
	Index int `json:"index"`

	InterfaceType InterfaceType `json:"interface_type"`
	DeviceClass   DeviceClass   `json:"device_class"`
	AccessStatus  AccessStatus  `json:"access_status"`

	VendorName   string `json:"vendor_name,omitempty"`
	ModelName    string `json:"model_name"`
	SerialNumber string `json:"serial_number,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`

	// IPAddress and MACAddress are only set for GigE devices.
	IPAddress  string `json:"ip_address,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
}

func (d DeviceInfo) String() string {
	if d.IPAddress != "" {
		return fmt.Sprintf("%s (%s)", d.ModelName, d.IPAddress)
	}
	return fmt.Sprintf("%s (%s)", d.ModelName, d.SerialNumber)
}

// PixelFormat is a GenICam PFNC pixel format code as reported by the SDK.
type PixelFormat uint32

const (
	PixelMono8     PixelFormat = 0x01080001
	PixelMono10    PixelFormat = 0x01100003
	PixelMono12    PixelFormat = 0x01100005
	PixelMono16    PixelFormat = 0x01100007
	PixelBayerGR8  PixelFormat = 0x01080008
	PixelBayerRG8  PixelFormat = 0x01080009
	PixelBayerGB8  PixelFormat = 0x0108000A
	PixelBayerBG8  PixelFormat = 0x0108000B
	PixelBayerGR10 PixelFormat = 0x0110000C
	PixelBayerRG10 PixelFormat = 0x0110000D
	PixelBayerGB10 PixelFormat = 0x0110000E
	PixelBayerBG10 PixelFormat = 0x0110000F
	PixelBayerGR12 PixelFormat = 0x01100010
	PixelBayerRG12 PixelFormat = 0x01100011
	PixelBayerGB12 PixelFormat = 0x01100012
	PixelBayerBG12 PixelFormat = 0x01100013
	PixelRGB8      PixelFormat = 0x02180014
	PixelBGR8      PixelFormat = 0x02180015
)

var pixelFormatNames = map[PixelFormat]string{
	PixelMono8:     "Mono8",
	PixelMono10:    "Mono10",
	PixelMono12:    "Mono12",
	PixelMono16:    "Mono16",
	PixelBayerGR8:  "BayerGR8",
	PixelBayerRG8:  "BayerRG8",
	PixelBayerGB8:  "BayerGB8",
	PixelBayerBG8:  "BayerBG8",
	PixelBayerGR10: "BayerGR10",
	PixelBayerRG10: "BayerRG10",
	PixelBayerGB10: "BayerGB10",
	PixelBayerBG10: "BayerBG10",
	PixelBayerGR12: "BayerGR12",
	PixelBayerRG12: "BayerRG12",
	PixelBayerGB12: "BayerGB12",
	PixelBayerBG12: "BayerBG12",
	PixelRGB8:      "RGB8",
	PixelBGR8:      "BGR8",
}

func (p PixelFormat) String() string {
	if name, ok := pixelFormatNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(0x%08x)", uint32(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p PixelFormat) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PixelFormat) UnmarshalText(b []byte) error {
	parsed, ok := ParsePixelFormat(string(b))
	if !ok {
		return fmt.Errorf("unknown pixel format %q", string(b))
	}
	*p = parsed
	return nil
}

// ParsePixelFormat looks up a format by its PFNC name.
func ParsePixelFormat(name string) (PixelFormat, bool) {
	for p, n := range pixelFormatNames {
		if n == name {
			return p, true
		}
	}
	return 0, false
}

// BitsPerPixel returns the storage size of one pixel, taken from bits 16-23
// of the PFNC code.
func (p PixelFormat) BitsPerPixel() int {
	return int((uint32(p) >> 16) & 0xff)
}

// BytesPerPixel returns the storage size of one pixel rounded up to bytes.
func (p PixelFormat) BytesPerPixel() int {
	return (p.BitsPerPixel() + 7) / 8
}

// IsMono reports whether p is a single-channel grey format.
func (p PixelFormat) IsMono() bool {
	switch p {
	case PixelMono8, PixelMono10, PixelMono12, PixelMono16:
		return true
	}
	return false
}

// IsBayer reports whether p is a raw Bayer mosaic.
func (p PixelFormat) IsBayer() bool {
	return p.ColorFilter() != ColorFilterNone
}

// SignificantBits returns the number of meaningful bits per sample.
func (p PixelFormat) SignificantBits() int {
	switch p {
	case PixelMono10, PixelBayerGR10, PixelBayerRG10, PixelBayerGB10, PixelBayerBG10:
		return 10
	case PixelMono12, PixelBayerGR12, PixelBayerRG12, PixelBayerGB12, PixelBayerBG12:
		return 12
	case PixelMono16:
		return 16
	default:
		return 8
	}
}

// ColorFilter returns the Bayer arrangement of p, or ColorFilterNone.
func (p PixelFormat) ColorFilter() ColorFilter {
	switch p {
	case PixelBayerRG8, PixelBayerRG10, PixelBayerRG12:
		return ColorFilterBayerRG
	case PixelBayerGB8, PixelBayerGB10, PixelBayerGB12:
		return ColorFilterBayerGB
	case PixelBayerGR8, PixelBayerGR10, PixelBayerGR12:
		return ColorFilterBayerGR
	case PixelBayerBG8, PixelBayerBG10, PixelBayerBG12:
		return ColorFilterBayerBG
	default:
		return ColorFilterNone
	}
}

// ColorFilter mirrors GX_PIXEL_COLOR_FILTER_ENTRY.
type ColorFilter int64

const (
	ColorFilterNone    ColorFilter = 0
	ColorFilterBayerRG ColorFilter = 1
	ColorFilterBayerGB ColorFilter = 2
	ColorFilterBayerGR ColorFilter = 3
	ColorFilterBayerBG ColorFilter = 4
)

func (c ColorFilter) String() string {
	switch c {
	case ColorFilterBayerRG:
		return "BayerRG"
	case ColorFilterBayerGB:
		return "BayerGB"
	case ColorFilterBayerGR:
		return "BayerGR"
	case ColorFilterBayerBG:
		return "BayerBG"
	default:
		return "None"
	}
}

// FrameStatus mirrors GX_FRAME_STATUS.
type FrameStatus int

const (
	FrameSuccess    FrameStatus = 0
	FrameIncomplete FrameStatus = -1
	FrameInvalid    FrameStatus = -2
)

func (s FrameStatus) String() string {
	switch s {
	case FrameSuccess:
		return "success"
	case FrameIncomplete:
		return "incomplete"
	default:
		return "invalid"
	}
}

// RawImage is an uncompressed frame as delivered by the camera, before
// any colour conversion.
type RawImage struct {
	FrameID     uint64
	Timestamp   uint64
	Width       int
	Height      int
	PixelFormat PixelFormat
	Status      FrameStatus
	Data        []byte

	// Received is the host time the frame reached the application.
	Received time.Time
}

// Bytes returns the expected payload size for the frame geometry.
func (r *RawImage) Bytes() int {
	return r.Width * r.Height * r.PixelFormat.BytesPerPixel()
}

// Clone returns a deep copy. Frames handed to capture callbacks are only
// valid for the duration of the callback; Clone them to keep them.
func (r *RawImage) Clone() *RawImage {
	c := *r
	c.Data = make([]byte, len(r.Data))
	copy(c.Data, r.Data)
	return &c
}
