package gxi

import (
	"errors"
	"fmt"
)

var (
	ErrNoDevice           = errors.New("find no device")
	ErrInvalidIndex       = errors.New("invalid device index")
	ErrNotImplemented     = errors.New("feature not implemented")
	ErrKindMismatch       = errors.New("feature kind mismatch")
	ErrNotOpen            = errors.New("device not open")
	ErrTimeout            = errors.New("timeout")
	ErrNotStreaming       = errors.New("stream is not on")
	ErrCallbackRegistered = errors.New("capture callback registered")
	ErrBackendUnavailable = errors.New("backend not available in this build")
	ErrAccessDenied       = errors.New("feature access denied")
	ErrOutOfRange         = errors.New("value out of range")
)

// Status is a GX_STATUS code.
type Status int32

const (
	StatusSuccess          Status = 0
	StatusErr              Status = -1
	StatusNotFoundTL       Status = -2
	StatusNotFoundDevice   Status = -3
	StatusOffline          Status = -4
	StatusInvalidParameter Status = -5
	StatusInvalidHandle    Status = -6
	StatusInvalidCall      Status = -7
	StatusInvalidAccess    Status = -8
	StatusNeedMoreBuffer   Status = -9
	StatusErrorType        Status = -10
	StatusOutOfRange       Status = -11
	StatusNotImplemented   Status = -12
	StatusNotInitAPI       Status = -13
	StatusTimeout          Status = -14
)

var statusNames = map[Status]string{
	StatusSuccess:          "GX_STATUS_SUCCESS",
	StatusErr:              "GX_STATUS_ERROR",
	StatusNotFoundTL:       "GX_STATUS_NOT_FOUND_TL",
	StatusNotFoundDevice:   "GX_STATUS_NOT_FOUND_DEVICE",
	StatusOffline:          "GX_STATUS_OFFLINE",
	StatusInvalidParameter: "GX_STATUS_INVALID_PARAMETER",
	StatusInvalidHandle:    "GX_STATUS_INVALID_HANDLE",
	StatusInvalidCall:      "GX_STATUS_INVALID_CALL",
	StatusInvalidAccess:    "GX_STATUS_INVALID_ACCESS",
	StatusNeedMoreBuffer:   "GX_STATUS_NEED_MORE_BUFFER",
	StatusErrorType:        "GX_STATUS_ERROR_TYPE",
	StatusOutOfRange:       "GX_STATUS_OUT_OF_RANGE",
	StatusNotImplemented:   "GX_STATUS_NOT_IMPLEMENTED",
	StatusNotInitAPI:       "GX_STATUS_NOT_INIT_API",
	StatusTimeout:          "GX_STATUS_TIMEOUT",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("GX_STATUS(%d)", int32(s))
}

// StatusError is a failed SDK call.
type StatusError struct {
	Op     string
	Status Status
	Text   string
}

func (e *StatusError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Status, e.Text)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

// Unwrap maps the status code onto the package sentinels so errors.Is
// behaves the same for every backend.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case StatusNotFoundDevice:
		return ErrNoDevice
	case StatusOffline:
		return ErrNotOpen
	case StatusInvalidHandle:
		return ErrNotOpen
	case StatusInvalidAccess:
		return ErrAccessDenied
	case StatusErrorType:
		return ErrKindMismatch
	case StatusOutOfRange:
		return ErrOutOfRange
	case StatusNotImplemented:
		return ErrNotImplemented
	case StatusTimeout:
		return ErrTimeout
	}
	return nil
}

func statusErr(op string, s Status, format string, args ...any) error {
	return &StatusError{Op: op, Status: s, Text: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the SDK status from err, or StatusErr when err is
// not a *StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusErr
}
