// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Pipeline is a compute pipeline with a single bind group layout.
type Pipeline struct {
	label      string
	entries    []gputypes.BindGroupLayoutEntry
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	// ShaderTime and PipelineTime record creation cost.
	ShaderTime   time.Duration
	PipelineTime time.Duration
}

// Label returns the pipeline label.
func (p *Pipeline) Label() string { return p.label }

// Bindings returns the number of bindings in the layout.
func (p *Pipeline) Bindings() int { return len(p.entries) }

// computeLayout builds compute-visible buffer bindings numbered from 0.
func computeLayout(types ...gputypes.BufferBindingType) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, len(types))
	for i, t := range types {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i), //nolint:gosec // binding index is small
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: t},
		}
	}
	return entries
}

// CreatePipeline compiles wgsl and builds a compute pipeline whose single
// bind group follows layout. Entry point is "main". On failure every
// partially created object is released.
func (s *Session) CreatePipeline(label, wgsl string, layout []gputypes.BindGroupLayoutEntry) (*Pipeline, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.validate {
		if err := kernel.Validate(wgsl); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrResource, label, err)
		}
	}

	p := &Pipeline{label: label, entries: layout}
	start := time.Now()
	shader, err := s.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: wgsl},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s shader: %w", ErrResource, label, err)
	}
	p.shader = shader
	p.ShaderTime = time.Since(start)

	start = time.Now()
	p.bindLayout, err = s.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bind_layout",
		Entries: layout,
	})
	if err != nil {
		s.DestroyPipeline(p)
		return nil, fmt.Errorf("%w: create %s bind group layout: %w", ErrResource, label, err)
	}
	p.pipeLayout, err = s.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		s.DestroyPipeline(p)
		return nil, fmt.Errorf("%w: create %s pipeline layout: %w", ErrResource, label, err)
	}
	p.pipeline, err = s.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   label + "_pipeline",
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: "main"},
	})
	if err != nil {
		s.DestroyPipeline(p)
		return nil, fmt.Errorf("%w: create %s compute pipeline: %w", ErrResource, label, err)
	}
	p.PipelineTime = time.Since(start)

	slogger().Debug("gpu: pipeline created", "label", label,
		"bindings", len(layout), "shader", p.ShaderTime, "pipeline", p.PipelineTime)
	return p, nil
}

// DestroyPipeline releases p's device objects. It is safe on a partially
// built pipeline.
func (s *Session) DestroyPipeline(p *Pipeline) {
	if p == nil || s.device == nil {
		return
	}
	if p.pipeline != nil {
		s.device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		s.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		s.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		s.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}
