package native

import "errors"

// Package errors for the wgpu device.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("wgpu: no GPU adapter available")

	// ErrInvalidProvider is returned when a device provider does not expose
	// HAL device and queue handles.
	ErrInvalidProvider = errors.New("wgpu: provider does not expose HAL types")

	// ErrReleased is returned when a session is used after Release.
	ErrReleased = errors.New("wgpu: session released")

	// ErrNotDispatched is returned by ReadBuffer before Dispatch.
	ErrNotDispatched = errors.New("wgpu: session not dispatched")

	// ErrUnknownBuffer is returned when a buffer name was never bound.
	ErrUnknownBuffer = errors.New("wgpu: unknown buffer")

	// ErrReadOnlyBuffer is returned when reading back a read-only buffer.
	ErrReadOnlyBuffer = errors.New("wgpu: buffer is read-only")

	// ErrTimeout is returned when the GPU does not finish in time.
	ErrTimeout = errors.New("wgpu: dispatch timed out")
)
