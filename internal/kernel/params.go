// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import "encoding/binary"

const (
	// QScale is the default quantization scale for per-pixel dissimilarity.
	QScale uint32 = 100000000

	// C1 and C2 are the SSIM stabilizers (0.01² and 0.03²).
	C1 float32 = 0.01 * 0.01
	C2 float32 = 0.03 * 0.03

	// WorkgroupSize is the invocation count of every kernel's workgroup.
	WorkgroupSize = 64

	// maxWorkgroupsPerDim is the WebGPU default limit per dispatch dimension.
	maxWorkgroupsPerDim = 65535

	// ParamsSize is the byte size of every kernel's uniform block.
	ParamsSize = 16
)

// ScaleParams is the uniform block of the preprocess and stats kernels.
// Preprocess ignores QScale.
type ScaleParams struct {
	Len    uint32
	Width  uint32
	Height uint32
	QScale uint32
}

// NewScaleParams builds the uniform block for a width×height level.
func NewScaleParams(width, height int, qscale uint32) ScaleParams {
	return ScaleParams{
		Len:    uint32(width * height), //nolint:gosec // image dimensions fit uint32
		Width:  uint32(width),          //nolint:gosec // image dimensions fit uint32
		Height: uint32(height),         //nolint:gosec // image dimensions fit uint32
		QScale: qscale,
	}
}

// Bytes returns the little-endian std140 layout.
func (p ScaleParams) Bytes() []byte {
	return packU32(p.Len, p.Width, p.Height, p.QScale)
}

// DownsampleParams is the uniform block of the downsample kernel.
type DownsampleParams struct {
	InWidth   uint32
	InHeight  uint32
	OutWidth  uint32
	OutHeight uint32
}

// NewDownsampleParams builds the uniform block for halving a level.
func NewDownsampleParams(inW, inH, outW, outH int) DownsampleParams {
	return DownsampleParams{
		InWidth:   uint32(inW),  //nolint:gosec // image dimensions fit uint32
		InHeight:  uint32(inH),  //nolint:gosec // image dimensions fit uint32
		OutWidth:  uint32(outW), //nolint:gosec // image dimensions fit uint32
		OutHeight: uint32(outH), //nolint:gosec // image dimensions fit uint32
	}
}

// Bytes returns the little-endian std140 layout.
func (p DownsampleParams) Bytes() []byte {
	return packU32(p.InWidth, p.InHeight, p.OutWidth, p.OutHeight)
}

func packU32(vals ...uint32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// Workgroups returns the dispatch size covering n invocations. Counts above
// the per-dimension limit spill into the y dimension; kernels flatten the
// index as gid.y·(groups.x·WorkgroupSize) + gid.x.
func Workgroups(n int) (x, y uint32) {
	groups := (n + WorkgroupSize - 1) / WorkgroupSize
	if groups < 1 {
		groups = 1
	}
	if groups <= maxWorkgroupsPerDim {
		return uint32(groups), 1 //nolint:gosec // bounded above
	}
	rows := (groups + maxWorkgroupsPerDim - 1) / maxWorkgroupsPerDim
	return maxWorkgroupsPerDim, uint32(rows) //nolint:gosec // bounded by pixel count
}

// Config is the swappable kernel configuration.
type Config struct {
	Window     Window
	ColorSpace ColorSpace
	QScale     uint32
}

// DefaultConfig returns the 5×5 Gaussian, linear-luma configuration.
func DefaultConfig() Config {
	return Config{Window: Window5x5Gaussian, ColorSpace: ColorLinearLuma, QScale: QScale}
}
