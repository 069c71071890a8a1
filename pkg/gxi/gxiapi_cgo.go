//go:build gxiapi && cgo

package gxi

/*
#cgo CFLAGS: -I/opt/Galaxy_camera/inc -I/usr/include/GxIAPI
#cgo LDFLAGS: -L/opt/Galaxy_camera/lib -lgxiapi
#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>
#include "GxIAPI.h"

extern void gxiCaptureTrampoline(GX_FRAME_CALLBACK_PARAM *frame);

static GX_STATUS gx_register_callback(GX_DEV_HANDLE h, uintptr_t user) {
	return GXRegisterCaptureCallback(h, (void *)user, (GXCaptureCallBack)gxiCaptureTrampoline);
}
*/
import "C"

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/cgo"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"
)

const gxiapiAvailable = true

// GX_FEATURE_TYPE lives in the top nibble of every feature ID.
const (
	gxFeatureTypeMask    = 0xF0000000
	gxFeatureTypeInt     = 0x10000000
	gxFeatureTypeFloat   = 0x20000000
	gxFeatureTypeEnum    = 0x30000000
	gxFeatureTypeBool    = 0x40000000
	gxFeatureTypeString  = 0x50000000
	gxFeatureTypeCommand = 0x70000000
)

var gxFeatureIDs = map[string]int64{
	FeatureDeviceVendorName:     int64(C.GX_STRING_DEVICE_VENDOR_NAME),
	FeatureDeviceModelName:      int64(C.GX_STRING_DEVICE_MODEL_NAME),
	FeatureDeviceSerialNumber:   int64(C.GX_STRING_DEVICE_SERIAL_NUMBER),
	FeatureDeviceVersion:        int64(C.GX_STRING_DEVICE_VERSION),
	FeatureDeviceUserID:         int64(C.GX_STRING_DEVICE_USERID),
	FeatureWidth:                int64(C.GX_INT_WIDTH),
	FeatureHeight:               int64(C.GX_INT_HEIGHT),
	FeatureOffsetX:              int64(C.GX_INT_OFFSET_X),
	FeatureOffsetY:              int64(C.GX_INT_OFFSET_Y),
	FeaturePayloadSize:          int64(C.GX_INT_PAYLOAD_SIZE),
	FeaturePixelFormat:          int64(C.GX_ENUM_PIXEL_FORMAT),
	FeaturePixelColorFilter:     int64(C.GX_ENUM_PIXEL_COLOR_FILTER),
	FeatureReverseX:             int64(C.GX_BOOL_REVERSE_X),
	FeatureReverseY:             int64(C.GX_BOOL_REVERSE_Y),
	FeatureAcquisitionMode:      int64(C.GX_ENUM_ACQUISITION_MODE),
	FeatureAcquisitionFrameRate: int64(C.GX_FLOAT_ACQUISITION_FRAME_RATE),
	FeatureTriggerMode:          int64(C.GX_ENUM_TRIGGER_MODE),
	FeatureTriggerSource:        int64(C.GX_ENUM_TRIGGER_SOURCE),
	FeatureTriggerActivation:    int64(C.GX_ENUM_TRIGGER_ACTIVATION),
	FeatureTriggerSoftware:      int64(C.GX_COMMAND_TRIGGER_SOFTWARE),
	FeatureExposureTime:         int64(C.GX_FLOAT_EXPOSURE_TIME),
	FeatureExposureAuto:         int64(C.GX_ENUM_EXPOSURE_AUTO),
	FeatureGain:                 int64(C.GX_FLOAT_GAIN),
	FeatureGainAuto:             int64(C.GX_ENUM_GAIN_AUTO),
	FeatureBalanceWhiteAuto:     int64(C.GX_ENUM_BALANCE_WHITE_AUTO),
	FeatureGammaEnable:          int64(C.GX_BOOL_GAMMA_ENABLE),
	FeatureChunkModeActive:      int64(C.GX_BOOL_CHUNKMODE_ACTIVE),
}

func gxKind(id int64) Kind {
	switch id & gxFeatureTypeMask {
	case gxFeatureTypeInt:
		return KindInt
	case gxFeatureTypeFloat:
		return KindFloat
	case gxFeatureTypeEnum:
		return KindEnum
	case gxFeatureTypeBool:
		return KindBool
	case gxFeatureTypeString:
		return KindString
	case gxFeatureTypeCommand:
		return KindCommand
	}
	return KindInvalid
}

func fid(id int64) C.GX_FEATURE_ID_CMD {
	return C.GX_FEATURE_ID_CMD(id)
}

// gxCheck turns a GX_STATUS into a *StatusError carrying GXGetLastError text.
func gxCheck(op string, st C.GX_STATUS) error {
	if st == C.GX_STATUS_SUCCESS {
		return nil
	}
	var (
		code C.GX_STATUS
		buf  [512]C.char
		size = C.size_t(len(buf))
	)
	text := ""
	if C.GXGetLastError(&code, &buf[0], &size) == C.GX_STATUS_SUCCESS {
		text = C.GoString(&buf[0])
	}
	return &StatusError{Op: op, Status: Status(st), Text: text}
}

type gxLibrary struct {
	logger *slog.Logger

	mu     sync.Mutex
	devs   []DeviceInfo
	closed bool
}

func openGxIAPI(logger *slog.Logger) (Library, error) {
	if err := gxCheck("GXInitLib", C.GXInitLib()); err != nil {
		return nil, err
	}
	logger.Info("gxiapi initialised")
	return &gxLibrary{logger: logger}, nil
}

func (l *gxLibrary) UpdateDeviceList(ctx context.Context, timeout time.Duration) ([]DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var n C.uint32_t
	if err := gxCheck("GXUpdateDeviceList", C.GXUpdateDeviceList(&n, C.uint32_t(timeout.Milliseconds()))); err != nil {
		return nil, err
	}

	infos := make([]DeviceInfo, 0, int(n))
	if n > 0 {
		base := make([]C.GX_DEVICE_BASE_INFO, int(n))
		size := C.size_t(int(n) * int(unsafe.Sizeof(base[0])))
		if err := gxCheck("GXGetAllDeviceBaseInfo", C.GXGetAllDeviceBaseInfo(&base[0], &size)); err != nil {
			return nil, err
		}

		for i := range base {
			b := &base[i]
			info := DeviceInfo{
				Index:        i + 1,
				DeviceClass:  DeviceClass(b.deviceClass),
				AccessStatus: AccessStatus(b.accessStatus),
				VendorName:   C.GoString(&b.szVendorName[0]),
				ModelName:    C.GoString(&b.szModelName[0]),
				SerialNumber: C.GoString(&b.szSN[0]),
				DisplayName:  C.GoString(&b.szDisplayName[0]),
				DeviceID:     C.GoString(&b.szDeviceID[0]),
				UserID:       C.GoString(&b.szUserID[0]),
			}
			info.InterfaceType = info.DeviceClass.Interface()

			if info.DeviceClass == DeviceClassGEV {
				var ip C.GX_DEVICE_IP_INFO
				if err := gxCheck("GXGetDeviceIPInfo", C.GXGetDeviceIPInfo(C.uint32_t(i+1), &ip)); err != nil {
					l.logger.Warn("read device ip info", "index", i+1, "error", err)
				} else {
					info.IPAddress = C.GoString(&ip.szIP[0])
					info.MACAddress = C.GoString(&ip.szMAC[0])
				}
			}
			infos = append(infos, info)
		}
	}

	l.mu.Lock()
	l.devs = infos
	l.mu.Unlock()
	return infos, nil
}

func (l *gxLibrary) OpenByIndex(index int) (Device, error) {
	l.mu.Lock()
	var info DeviceInfo
	if index >= 1 && index <= len(l.devs) {
		info = l.devs[index-1]
	}
	count := len(l.devs)
	l.mu.Unlock()

	if index < 1 || index > count {
		return nil, fmt.Errorf("%w: %d (have %d devices)", ErrInvalidIndex, index, count)
	}

	var h C.GX_DEV_HANDLE
	if err := gxCheck("GXOpenDeviceByIndex", C.GXOpenDeviceByIndex(C.uint32_t(index), &h)); err != nil {
		return nil, err
	}

	d := &gxDevice{h: h, info: info, open: true, logger: l.logger.With("device", info.SerialNumber)}
	d.stream = &gxStream{dev: d}
	l.logger.Info("device opened", "index", index, "model", info.ModelName)
	return d, nil
}

func (l *gxLibrary) Name() string {
	return "gxiapi"
}

func (l *gxLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return gxCheck("GXCloseLib", C.GXCloseLib())
}

type gxDevice struct {
	h      C.GX_DEV_HANDLE
	info   DeviceInfo
	logger *slog.Logger
	stream *gxStream

	mu        sync.Mutex
	open      bool
	streaming bool
}

func (d *gxDevice) Info() DeviceInfo {
	return d.info
}

func (d *gxDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *gxDevice) Features() []FeatureInfo {
	names := make([]string, 0, len(gxFeatureIDs))
	for name := range gxFeatureIDs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]FeatureInfo, 0, len(names))
	for _, name := range names {
		if f, ok := d.Lookup(name); ok {
			out = append(out, f)
		}
	}
	return out
}

func (d *gxDevice) Lookup(name string) (FeatureInfo, bool) {
	id, ok := gxFeatureIDs[name]
	if !ok {
		return FeatureInfo{}, false
	}
	f := FeatureInfo{Name: name, Kind: gxKind(id)}

	var b C.bool
	if C.GXIsImplemented(d.h, fid(id), &b) != C.GX_STATUS_SUCCESS {
		return f, true
	}
	f.Implemented = bool(b)
	if !f.Implemented {
		return f, true
	}
	if C.GXIsReadable(d.h, fid(id), &b) == C.GX_STATUS_SUCCESS {
		f.Readable = bool(b)
	}
	if C.GXIsWritable(d.h, fid(id), &b) == C.GX_STATUS_SUCCESS {
		f.Writable = bool(b)
	}

	switch f.Kind {
	case KindInt:
		var r C.GX_INT_RANGE
		if C.GXGetIntRange(d.h, fid(id), &r) == C.GX_STATUS_SUCCESS {
			f.Min, f.Max, f.Inc = float64(r.nMin), float64(r.nMax), float64(r.nInc)
		}
	case KindFloat:
		var r C.GX_FLOAT_RANGE
		if C.GXGetFloatRange(d.h, fid(id), &r) == C.GX_STATUS_SUCCESS {
			f.Min, f.Max = float64(r.dMin), float64(r.dMax)
			if r.bIncIsValid {
				f.Inc = float64(r.dInc)
			}
			f.Unit = C.GoString(&r.szUnit[0])
		}
	case KindEnum:
		f.Entries, _ = d.enumEntries(id)
	}
	return f, true
}

func (d *gxDevice) enumEntries(id int64) ([]EnumEntry, error) {
	var n C.uint32_t
	if err := gxCheck("GXGetEnumEntryNums", C.GXGetEnumEntryNums(d.h, fid(id), &n)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	desc := make([]C.GX_ENUM_DESCRIPTION, int(n))
	size := C.size_t(int(n) * int(unsafe.Sizeof(desc[0])))
	if err := gxCheck("GXGetEnumDescription", C.GXGetEnumDescription(d.h, fid(id), &desc[0], &size)); err != nil {
		return nil, err
	}
	entries := make([]EnumEntry, 0, len(desc))
	for i := range desc {
		entries = append(entries, EnumEntry{
			Value:    int64(desc[i].nValue),
			Symbolic: C.GoString(&desc[i].szSymbolic[0]),
		})
	}
	return entries, nil
}

// feature resolves a name and checks it is implemented.
func (d *gxDevice) feature(op, name string) (int64, error) {
	if !d.IsOpen() {
		return 0, statusErr(op, StatusInvalidHandle, "device closed")
	}
	id, ok := gxFeatureIDs[name]
	if !ok {
		return 0, statusErr(op, StatusNotImplemented, "%s", name)
	}
	var b C.bool
	if err := gxCheck("GXIsImplemented", C.GXIsImplemented(d.h, fid(id), &b)); err != nil {
		return 0, err
	}
	if !bool(b) {
		return 0, statusErr(op, StatusNotImplemented, "%s", name)
	}
	return id, nil
}

func (d *gxDevice) Read(name string) (Value, error) {
	id, err := d.feature("GXGet", name)
	if err != nil {
		return Value{}, err
	}

	switch gxKind(id) {
	case KindInt:
		var v C.int64_t
		if err := gxCheck("GXGetInt", C.GXGetInt(d.h, fid(id), &v)); err != nil {
			return Value{}, err
		}
		return IntValue(int64(v)), nil
	case KindFloat:
		var v C.double
		if err := gxCheck("GXGetFloat", C.GXGetFloat(d.h, fid(id), &v)); err != nil {
			return Value{}, err
		}
		return FloatValue(float64(v)), nil
	case KindEnum:
		var v C.int64_t
		if err := gxCheck("GXGetEnum", C.GXGetEnum(d.h, fid(id), &v)); err != nil {
			return Value{}, err
		}
		entries, _ := d.enumEntries(id)
		for _, e := range entries {
			if e.Value == int64(v) {
				return e.Enum(), nil
			}
		}
		return EnumValue(int64(v), ""), nil
	case KindBool:
		var v C.bool
		if err := gxCheck("GXGetBool", C.GXGetBool(d.h, fid(id), &v)); err != nil {
			return Value{}, err
		}
		return BoolValue(bool(v)), nil
	case KindString:
		var n C.size_t
		if err := gxCheck("GXGetStringLength", C.GXGetStringLength(d.h, fid(id), &n)); err != nil {
			return Value{}, err
		}
		buf := (*C.char)(C.malloc(n + 1))
		defer C.free(unsafe.Pointer(buf))
		size := n + 1
		if err := gxCheck("GXGetString", C.GXGetString(d.h, fid(id), buf, &size)); err != nil {
			return Value{}, err
		}
		return StringValue(C.GoString(buf)), nil
	}
	return Value{}, statusErr("GXGet", StatusErrorType, "%s is a command", name)
}

func (d *gxDevice) Write(name string, v Value) error {
	id, err := d.feature("GXSet", name)
	if err != nil {
		return err
	}
	kind := gxKind(id)
	if v.Kind != kind {
		return &StatusError{Op: "GXSet", Status: StatusErrorType, Text: fmt.Sprintf("%s is %s, got %s", name, kind, v.Kind)}
	}

	switch kind {
	case KindInt:
		return gxCheck("GXSetInt", C.GXSetInt(d.h, fid(id), C.int64_t(v.Int)))
	case KindFloat:
		return gxCheck("GXSetFloat", C.GXSetFloat(d.h, fid(id), C.double(v.Float)))
	case KindEnum:
		entries, err := d.enumEntries(id)
		if err != nil {
			return err
		}
		e, ok := FeatureInfo{Entries: entries}.Entry(v)
		if !ok {
			return statusErr("GXSetEnum", StatusOutOfRange, "%s has no entry %s", name, v)
		}
		return gxCheck("GXSetEnum", C.GXSetEnum(d.h, fid(id), C.int64_t(e.Value)))
	case KindBool:
		return gxCheck("GXSetBool", C.GXSetBool(d.h, fid(id), C.bool(v.Bool)))
	case KindString:
		cs := C.CString(v.Str)
		defer C.free(unsafe.Pointer(cs))
		return gxCheck("GXSetString", C.GXSetString(d.h, fid(id), cs))
	}
	return statusErr("GXSet", StatusErrorType, "%s is a command", name)
}

func (d *gxDevice) Execute(name string) error {
	id, err := d.feature("GXSendCommand", name)
	if err != nil {
		return err
	}
	if gxKind(id) != KindCommand {
		return statusErr("GXSendCommand", StatusErrorType, "%s is %s, not a command", name, gxKind(id))
	}
	return gxCheck("GXSendCommand", C.GXSendCommand(d.h, fid(id)))
}

func (d *gxDevice) StreamOn() error {
	if err := gxCheck("GXStreamOn", C.GXStreamOn(d.h)); err != nil {
		return err
	}
	d.mu.Lock()
	d.streaming = true
	d.mu.Unlock()
	return nil
}

func (d *gxDevice) StreamOff() error {
	if err := gxCheck("GXStreamOff", C.GXStreamOff(d.h)); err != nil {
		return err
	}
	d.mu.Lock()
	d.streaming = false
	d.mu.Unlock()
	return nil
}

func (d *gxDevice) isStreaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

func (d *gxDevice) DataStream(i int) (DataStream, error) {
	if i != 0 {
		return nil, fmt.Errorf("%w: data stream %d", ErrInvalidIndex, i)
	}
	if !d.IsOpen() {
		return nil, ErrNotOpen
	}
	return d.stream, nil
}

func (d *gxDevice) Close() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return statusErr("GXCloseDevice", StatusInvalidHandle, "device already closed")
	}
	streaming := d.streaming
	d.mu.Unlock()

	if streaming {
		if err := d.StreamOff(); err != nil {
			d.logger.Warn("stream off before close", "error", err)
		}
	}
	d.stream.release()

	if err := gxCheck("GXCloseDevice", C.GXCloseDevice(d.h)); err != nil {
		return err
	}
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
	return nil
}

type gxStream struct {
	dev *gxDevice

	mu     sync.Mutex
	cb     CaptureCallback
	handle cgo.Handle

	framesDelivered  atomic.Int64
	framesIncomplete atomic.Int64
}

func (s *gxStream) RegisterCaptureCallback(fn CaptureCallback) error {
	if fn == nil {
		return statusErr("GXRegisterCaptureCallback", StatusInvalidParameter, "nil callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cb != nil {
		return fmt.Errorf("GXRegisterCaptureCallback: %w", ErrCallbackRegistered)
	}

	h := cgo.NewHandle(s)
	if err := gxCheck("GXRegisterCaptureCallback", C.gx_register_callback(s.dev.h, C.uintptr_t(h))); err != nil {
		h.Delete()
		return err
	}
	s.cb, s.handle = fn, h
	return nil
}

func (s *gxStream) UnregisterCaptureCallback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cb == nil {
		return nil
	}
	if err := gxCheck("GXUnregisterCaptureCallback", C.GXUnregisterCaptureCallback(s.dev.h)); err != nil {
		return err
	}
	s.handle.Delete()
	s.cb, s.handle = nil, 0
	return nil
}

// release drops a callback left registered when the device is closed.
func (s *gxStream) release() {
	if err := s.UnregisterCaptureCallback(); err != nil {
		s.dev.logger.Warn("unregister callback on close", "error", err)
	}
}

func (s *gxStream) deliver(frame *C.GX_FRAME_CALLBACK_PARAM) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb == nil {
		return
	}

	img := &RawImage{
		FrameID:     uint64(frame.nFrameID),
		Timestamp:   uint64(frame.nTimestamp),
		Width:       int(frame.nWidth),
		Height:      int(frame.nHeight),
		PixelFormat: PixelFormat(frame.nPixelFormat),
		Status:      FrameStatus(frame.status),
		Received:    time.Now(),
	}
	if frame.pImgBuf != nil && frame.nImgSize > 0 {
		img.Data = unsafe.Slice((*byte)(frame.pImgBuf), int(frame.nImgSize))
	}

	s.framesDelivered.Add(1)
	if img.Status != FrameSuccess {
		s.framesIncomplete.Add(1)
	}
	cb(img)
}

func (s *gxStream) ready(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	registered := s.cb != nil
	s.mu.Unlock()
	if registered {
		return fmt.Errorf("%s: %w", op, ErrCallbackRegistered)
	}
	if !s.dev.isStreaming() {
		return fmt.Errorf("%s: %w", op, ErrNotStreaming)
	}
	return nil
}

func (s *gxStream) GetImage(ctx context.Context, timeout time.Duration) (*RawImage, error) {
	if err := s.ready(ctx, "GXDQBuf"); err != nil {
		return nil, err
	}

	var buf C.PGX_FRAME_BUFFER
	if err := gxCheck("GXDQBuf", C.GXDQBuf(s.dev.h, &buf, C.uint32_t(timeout.Milliseconds()))); err != nil {
		return nil, err
	}
	defer C.GXQBuf(s.dev.h, buf)

	img := &RawImage{
		FrameID:     uint64(buf.nFrameID),
		Timestamp:   uint64(buf.nTimestamp),
		Width:       int(buf.nWidth),
		Height:      int(buf.nHeight),
		PixelFormat: PixelFormat(buf.nPixelFormat),
		Status:      FrameStatus(buf.nStatus),
		Data:        C.GoBytes(buf.pImgBuf, C.int(buf.nImgSize)),
		Received:    time.Now(),
	}
	s.framesDelivered.Add(1)
	if img.Status != FrameSuccess {
		s.framesIncomplete.Add(1)
	}
	return img, nil
}

func (s *gxStream) GetOneFrame(ctx context.Context, timeout time.Duration) (*RawImage, error) {
	if err := s.ready(ctx, "GXGetImage"); err != nil {
		return nil, err
	}

	payload, err := s.dev.Read(FeaturePayloadSize)
	if err != nil {
		return nil, err
	}

	var frame C.GX_FRAME_DATA
	frame.pImgBuf = C.malloc(C.size_t(payload.Int))
	defer C.free(frame.pImgBuf)

	if err := gxCheck("GXGetImage", C.GXGetImage(s.dev.h, &frame, C.uint32_t(timeout.Milliseconds()))); err != nil {
		return nil, err
	}

	img := &RawImage{
		FrameID:     uint64(frame.nFrameID),
		Timestamp:   uint64(frame.nTimestamp),
		Width:       int(frame.nWidth),
		Height:      int(frame.nHeight),
		PixelFormat: PixelFormat(frame.nPixelFormat),
		Status:      FrameStatus(frame.nStatus),
		Data:        C.GoBytes(frame.pImgBuf, C.int(frame.nImgSize)),
		Received:    time.Now(),
	}
	s.framesDelivered.Add(1)
	if img.Status != FrameSuccess {
		s.framesIncomplete.Add(1)
	}
	return img, nil
}

func (s *gxStream) Stats() StreamStats {
	return StreamStats{
		FramesDelivered:  s.framesDelivered.Load(),
		FramesIncomplete: s.framesIncomplete.Load(),
		Running:          s.dev.isStreaming(),
		Backend:          "gxiapi",
	}
}
