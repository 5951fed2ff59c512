// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// dispatchResources tracks the resources of one kernel invocation. Nothing
// is pooled: every invocation allocates its own set and releases it in
// cleanup, after the submission has completed.
type dispatchResources struct {
	sess       *Session
	buffers    []*Buffer
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
	submitted  bool
}

func newDispatchResources(sess *Session) *dispatchResources {
	return &dispatchResources{sess: sess}
}

// buffer allocates a tracked buffer.
func (r *dispatchResources) buffer(label string, size uint64, usage gputypes.BufferUsage) (*Buffer, error) {
	buf, err := r.sess.CreateBuffer(&BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		return nil, err
	}
	r.buffers = append(r.buffers, buf)
	return buf, nil
}

// upload allocates a tracked buffer and writes data into it.
func (r *dispatchResources) upload(label string, data []byte, usage gputypes.BufferUsage) (*Buffer, error) {
	buf, err := r.buffer(label, uint64(len(data)), usage|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	if err := r.sess.WriteBuffer(buf, data); err != nil {
		return nil, err
	}
	return buf, nil
}

// bindGroup binds bufs to p's layout in binding order.
func (r *dispatchResources) bindGroup(p *Pipeline, bufs ...*Buffer) (hal.BindGroup, error) {
	if len(bufs) != len(p.entries) {
		return nil, fmt.Errorf("%w: %s expects %d bindings, got %d", ErrResource, p.label, len(p.entries), len(bufs))
	}
	entries := make([]gputypes.BindGroupEntry, len(bufs))
	for i, b := range bufs {
		entries[i] = gputypes.BindGroupEntry{
			Binding: uint32(i), //nolint:gosec // binding index is small
			Resource: gputypes.BufferBinding{
				Buffer: b.Raw().NativeHandle(),
				Offset: 0,
				Size:   b.Size(),
			},
		}
	}
	bg, err := r.sess.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_bind",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create %s bind group: %w", ErrResource, p.label, err)
	}
	r.bindGroups = append(r.bindGroups, bg)
	return bg, nil
}

// copyPair is one storage-to-readback copy.
type copyPair struct {
	src, dst *Buffer
}

// dispatchStep is one SetBindGroup + Dispatch inside a compute pass.
type dispatchStep struct {
	bindGroup hal.BindGroup
	x, y      uint32
}

// computePass is one compute pass running a single pipeline.
type computePass struct {
	label    string
	pipeline *Pipeline
	steps    []dispatchStep
}

// encodeAndSubmit records passes followed by copies in one command buffer
// and submits it. Readback destinations are tied to the submission fence;
// mapping them waits for it.
func (r *dispatchResources) encodeAndSubmit(label string, passes []computePass, copies []copyPair) error {
	dev := r.sess.device
	encoder, err := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_encoder"})
	if err != nil {
		return fmt.Errorf("%w: create command encoder: %w", ErrResource, err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("%w: begin encoding: %w", ErrResource, err)
	}

	for _, p := range passes {
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: p.label})
		pass.SetPipeline(p.pipeline.pipeline)
		for _, st := range p.steps {
			pass.SetBindGroup(0, st.bindGroup, nil)
			pass.Dispatch(st.x, st.y, 1)
		}
		pass.End()
	}
	for _, c := range copies {
		encoder.CopyBufferToBuffer(c.src.Raw(), c.dst.Raw(), []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: c.src.Size()},
		})
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("%w: end encoding: %w", ErrResource, err)
	}
	r.cmdBuf = cmdBuf

	fence, err := dev.CreateFence()
	if err != nil {
		return fmt.Errorf("%w: create fence: %w", ErrResource, err)
	}
	r.fence = fence
	if err := r.sess.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("%w: submit: %w", ErrResource, err)
	}
	r.submitted = true
	for _, c := range copies {
		c.dst.trackSubmission(fence, 1)
	}
	slogger().Debug("gpu: submitted", "label", label, "passes", len(passes), "copies", len(copies))
	return nil
}

// cleanup waits for in-flight work and destroys all tracked resources.
func (r *dispatchResources) cleanup() {
	dev := r.sess.device
	if r.submitted {
		if ok, err := dev.Wait(r.fence, 1, submitTimeout); err != nil || !ok {
			slogger().Warn("gpu: releasing resources of unfinished submission", "ok", ok, "err", err)
		}
	}
	if r.fence != nil {
		dev.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		dev.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		dev.DestroyBindGroup(g)
	}
	for _, b := range r.buffers {
		b.Destroy()
	}
}

func float32Bytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func bytesUint32(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}
