// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/dssim/internal/pyramid"
	"github.com/gogpu/gputypes"
)

// BackendGPU is the identifier for the GPU backend.
const BackendGPU = "gpu"

// Buffer usage sets shared by the kernels.
const (
	usageInput    = gputypes.BufferUsageStorage
	usageScratch  = gputypes.BufferUsageStorage
	usageOutput   = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc
	usageReadback = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	usageParams   = gputypes.BufferUsageUniform
)

// statNames are the float statistic buffers in binding order (3..7).
var statNames = [5]string{"mu1", "mu2", "var1", "var2", "cov12"}

// Timings records pipeline creation cost.
type Timings struct {
	ShaderModules time.Duration
	Pipelines     time.Duration
}

// Backend runs the preprocess, statistics and downsample kernels on a
// Session. It implements pyramid.Backend.
type Backend struct {
	sess *Session
	cfg  kernel.Config

	preprocess *Pipeline
	stats      *Pipeline
	downsample *Pipeline

	timings Timings
}

var _ pyramid.Backend = (*Backend)(nil)

// NewBackend builds the three kernel pipelines for cfg.
func NewBackend(sess *Session, cfg kernel.Config) (*Backend, error) {
	b := &Backend{sess: sess, cfg: cfg}

	preSrc, err := kernel.PreprocessSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	statsSrc, err := kernel.StatsSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}
	downSrc, err := kernel.DownsampleSource()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResource, err)
	}

	ro := gputypes.BufferBindingTypeReadOnlyStorage
	rw := gputypes.BufferBindingTypeStorage
	uni := gputypes.BufferBindingTypeUniform

	if b.preprocess, err = sess.CreatePipeline("dssim_preprocess", preSrc, computeLayout(ro, rw, uni)); err != nil {
		b.Close()
		return nil, err
	}
	if b.stats, err = sess.CreatePipeline("dssim_stats", statsSrc, computeLayout(ro, ro, rw, rw, rw, rw, rw, rw, uni)); err != nil {
		b.Close()
		return nil, err
	}
	if b.downsample, err = sess.CreatePipeline("dssim_downsample", downSrc, computeLayout(ro, rw, uni)); err != nil {
		b.Close()
		return nil, err
	}
	for _, p := range []*Pipeline{b.preprocess, b.stats, b.downsample} {
		b.timings.ShaderModules += p.ShaderTime
		b.timings.Pipelines += p.PipelineTime
	}
	slogger().Info("gpu: kernels ready", "window", cfg.Window, "color", cfg.ColorSpace,
		"shader_modules", b.timings.ShaderModules, "pipelines", b.timings.Pipelines)
	return b, nil
}

// Name returns "gpu".
func (b *Backend) Name() string { return BackendGPU }

// Timings returns the pipeline creation cost.
func (b *Backend) Timings() Timings { return b.timings }

// Close destroys the pipelines. The session is left open.
func (b *Backend) Close() {
	for _, p := range []*Pipeline{b.preprocess, b.stats, b.downsample} {
		b.sess.DestroyPipeline(p)
	}
	b.preprocess, b.stats, b.downsample = nil, nil, nil
}

// Stats implements pyramid.Backend: it uploads both level images, runs the
// preprocess pass (one dispatch per image) and the statistics pass in one
// submission, and reads back the quantized map and optionally the five
// float statistics.
func (b *Backend) Stats(ctx context.Context, a, c *kernel.Image, readStats bool) (*kernel.StatsResult, error) {
	if err := pyramid.CheckPair(a, c); err != nil {
		return nil, err
	}
	n := a.Len()
	colorSize := uint64(n) * 16
	scalarSize := uint64(n) * 4
	params := kernel.NewScaleParams(a.Width, a.Height, b.cfg.QScale).Bytes()
	gx, gy := kernel.Workgroups(n)

	res := newDispatchResources(b.sess)
	defer res.cleanup()

	in1, err := res.upload("dssim_image1", float32Bytes(a.Pix), usageInput)
	if err != nil {
		return nil, err
	}
	in2, err := res.upload("dssim_image2", float32Bytes(c.Pix), usageInput)
	if err != nil {
		return nil, err
	}
	lab1, err := res.buffer("dssim_lab1", colorSize, usageScratch)
	if err != nil {
		return nil, err
	}
	lab2, err := res.buffer("dssim_lab2", colorSize, usageScratch)
	if err != nil {
		return nil, err
	}
	dssimQ, err := res.buffer("dssim_q", scalarSize, usageOutput)
	if err != nil {
		return nil, err
	}
	var statBufs [5]*Buffer
	for i, name := range statNames {
		if statBufs[i], err = res.buffer("dssim_"+name, scalarSize, usageOutput); err != nil {
			return nil, err
		}
	}
	paramsBuf, err := res.upload("dssim_params", params, usageParams)
	if err != nil {
		return nil, err
	}

	pre1, err := res.bindGroup(b.preprocess, in1, lab1, paramsBuf)
	if err != nil {
		return nil, err
	}
	pre2, err := res.bindGroup(b.preprocess, in2, lab2, paramsBuf)
	if err != nil {
		return nil, err
	}
	statsBG, err := res.bindGroup(b.stats, lab1, lab2, dssimQ,
		statBufs[0], statBufs[1], statBufs[2], statBufs[3], statBufs[4], paramsBuf)
	if err != nil {
		return nil, err
	}

	rbQ, err := res.buffer("dssim_q_readback", scalarSize, usageReadback)
	if err != nil {
		return nil, err
	}
	copies := []copyPair{{src: dssimQ, dst: rbQ}}
	var rbStats [5]*Buffer
	if readStats {
		for i, name := range statNames {
			if rbStats[i], err = res.buffer("dssim_"+name+"_readback", scalarSize, usageReadback); err != nil {
				return nil, err
			}
			copies = append(copies, copyPair{src: statBufs[i], dst: rbStats[i]})
		}
	}

	passes := []computePass{
		{label: "dssim_preprocess_pass", pipeline: b.preprocess, steps: []dispatchStep{
			{bindGroup: pre1, x: gx, y: gy},
			{bindGroup: pre2, x: gx, y: gy},
		}},
		{label: "dssim_stats_pass", pipeline: b.stats, steps: []dispatchStep{
			{bindGroup: statsBG, x: gx, y: gy},
		}},
	}
	slogger().Debug("gpu: stats dispatch", "width", a.Width, "height", a.Height,
		"workgroups_x", gx, "workgroups_y", gy, "read_stats", readStats)
	if err := res.encodeAndSubmit("dssim_stats", passes, copies); err != nil {
		return nil, err
	}

	raw, err := b.sess.ReadBufferBlocking(ctx, rbQ, scalarSize)
	if err != nil {
		return nil, err
	}
	out := &kernel.StatsResult{Width: a.Width, Height: a.Height, DssimQ: bytesUint32(raw)}
	if readStats {
		dst := [5]*[]float32{&out.Mu1, &out.Mu2, &out.Var1, &out.Var2, &out.Cov12}
		for i, rb := range rbStats {
			raw, err := b.sess.ReadBufferBlocking(ctx, rb, scalarSize)
			if err != nil {
				return nil, err
			}
			*dst[i] = bytesFloat32(raw)
		}
	}
	return out, nil
}

// Downsample implements pyramid.Backend with the 2×2 box kernel.
func (b *Backend) Downsample(ctx context.Context, im *kernel.Image) (*kernel.Image, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	ow, oh, err := kernel.HalfSize(im.Width, im.Height)
	if err != nil {
		return nil, err
	}
	outSize := uint64(ow*oh) * 16
	params := kernel.NewDownsampleParams(im.Width, im.Height, ow, oh).Bytes()
	gx, gy := kernel.Workgroups(ow * oh)

	res := newDispatchResources(b.sess)
	defer res.cleanup()

	src, err := res.upload("dssim_down_src", float32Bytes(im.Pix), usageInput)
	if err != nil {
		return nil, err
	}
	dst, err := res.buffer("dssim_down_dst", outSize, usageOutput)
	if err != nil {
		return nil, err
	}
	paramsBuf, err := res.upload("dssim_down_params", params, usageParams)
	if err != nil {
		return nil, err
	}
	bg, err := res.bindGroup(b.downsample, src, dst, paramsBuf)
	if err != nil {
		return nil, err
	}
	rb, err := res.buffer("dssim_down_readback", outSize, usageReadback)
	if err != nil {
		return nil, err
	}

	passes := []computePass{{label: "dssim_downsample_pass", pipeline: b.downsample, steps: []dispatchStep{
		{bindGroup: bg, x: gx, y: gy},
	}}}
	slogger().Debug("gpu: downsample dispatch", "in_width", im.Width, "in_height", im.Height,
		"out_width", ow, "out_height", oh)
	if err := res.encodeAndSubmit("dssim_downsample", passes, []copyPair{{src: dst, dst: rb}}); err != nil {
		return nil, err
	}

	raw, err := b.sess.ReadBufferBlocking(ctx, rb, outSize)
	if err != nil {
		return nil, err
	}
	return &kernel.Image{Width: ow, Height: oh, Pix: bytesFloat32(raw)}, nil
}
