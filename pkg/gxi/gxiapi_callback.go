//go:build gxiapi && cgo

package gxi

/*
#include <stdbool.h>
#include <stdint.h>
#include "GxIAPI.h"
*/
import "C"

import "runtime/cgo"

// gxiCaptureTrampoline runs on the SDK's acquisition thread.
//
//export gxiCaptureTrampoline
func gxiCaptureTrampoline(frame *C.GX_FRAME_CALLBACK_PARAM) {
	if frame == nil || frame.pUserParam == nil {
		return
	}
	h := cgo.Handle(uintptr(frame.pUserParam))
	s, ok := h.Value().(*gxStream)
	if !ok {
		return
	}
	s.deliver(frame)
}
