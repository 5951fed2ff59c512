//go:build !nogpu

// Package gpu runs the DSSIM kernels on a wgpu HAL device.
//
// A Session owns one instance, adapter, device and queue, or borrows a
// device and queue from a gpucontext.DeviceProvider. Backend builds the
// three compute pipelines from the WGSL templates in package kernel and
// implements pyramid.Backend:
//
//	upload RGBA -> preprocess x2 -> stats -> copy -> map read -> host
//	upload RGBA -> downsample    -> copy -> map read -> host
//
// Each call allocates its buffers and bind groups, submits one command
// buffer, waits on a fence and releases everything before returning.
// Buffer reproduces the WebGPU map protocol (Unmapped, Pending, Mapped)
// on top of hal.Queue.ReadBuffer so readbacks follow the same state rules
// as a browser or Dawn client.
//
// Errors wrap one of ErrNoAdapter, ErrNoDevice, ErrResource or
// ErrReadback. Logging goes through SetLogger; the package is silent by
// default.
package gpu
