package media

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed capture.
type ErrorKind string

const (
	ErrPermissionDenied       ErrorKind = "permission-denied"
	ErrDeviceNotFound         ErrorKind = "device-not-found"
	ErrDeviceBusy             ErrorKind = "device-busy"
	ErrConstraintsUnsupported ErrorKind = "constraints-unsupported"
	ErrTimeout                ErrorKind = "timeout"
	ErrUnknown                ErrorKind = "unknown"
)

var errorKinds = map[string]ErrorKind{
	"NotAllowedError":       ErrPermissionDenied,
	"PermissionDeniedError": ErrPermissionDenied,
	"NotFoundError":         ErrDeviceNotFound,
	"DevicesNotFoundError":  ErrDeviceNotFound,
	"NotReadableError":      ErrDeviceBusy,
	"TrackStartError":       ErrDeviceBusy,
	"OverconstrainedError":  ErrConstraintsUnsupported,
	"TypeError":             ErrConstraintsUnsupported,
	"AbortError":            ErrTimeout,
}

// ClassifyError maps an acquisition failure name to its kind. Unrecognized
// names are ErrUnknown.
func ClassifyError(name string) ErrorKind {
	if k, ok := errorKinds[name]; ok {
		return k
	}
	return ErrUnknown
}

// DeviceError is what a Device returns when acquisition fails. Name uses the
// same vocabulary as ClassifyError.
type DeviceError struct {
	Name    string
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// CaptureError is the typed error a Capture exposes.
type CaptureError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CaptureError) Unwrap() error { return e.Err }

var messages = map[Kind]map[ErrorKind]string{
	KindVideo: {
		ErrPermissionDenied:       "camera access was denied",
		ErrDeviceNotFound:         "no camera found",
		ErrDeviceBusy:             "camera is already in use by another application",
		ErrConstraintsUnsupported: "camera does not support the requested settings",
		ErrTimeout:                "camera access request timed out",
	},
	KindAudio: {
		ErrPermissionDenied:       "microphone access was denied",
		ErrDeviceNotFound:         "no microphone found",
		ErrDeviceBusy:             "microphone is already in use by another application",
		ErrConstraintsUnsupported: "microphone does not support the requested settings",
		ErrTimeout:                "microphone access request timed out",
	},
}

// Classify wraps any acquisition error for kind into a CaptureError.
func Classify(kind Kind, err error) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	k := ErrUnknown
	var de *DeviceError
	switch {
	case errors.As(err, &de):
		k = ClassifyError(de.Name)
	case errors.Is(err, context.DeadlineExceeded):
		k = ErrTimeout
	}
	msg, ok := messages[kind][k]
	if !ok {
		msg = err.Error()
	}
	return &CaptureError{Kind: k, Message: msg, Err: err}
}
