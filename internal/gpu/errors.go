//go:build !nogpu

package gpu

import "errors"

// Session and dispatch errors. Every failure returned by this package wraps
// exactly one of the class errors below.
var (
	// ErrNoAdapter is returned when no HAL backend or adapter is available.
	ErrNoAdapter = errors.New("gpu: no compute adapter available")

	// ErrNoDevice is returned when the adapter refuses to open a device.
	ErrNoDevice = errors.New("gpu: device request failed")

	// ErrResource is returned when a shader, pipeline, buffer, bind group or
	// command buffer cannot be created or submitted.
	ErrResource = errors.New("gpu: resource creation failed")

	// ErrReadback is returned when an async buffer map fails.
	ErrReadback = errors.New("gpu: buffer readback failed")

	// ErrSessionClosed is returned when using a closed session.
	ErrSessionClosed = errors.New("gpu: session is closed")
)
