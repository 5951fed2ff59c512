// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel defines the compute kernels of the multi-scale DSSIM
// pipeline: window tables, uniform layouts, WGSL source generation and a
// float32 CPU reference that mirrors the shaders operation for operation.
//
// Three kernels make up one pyramid level:
//
//	preprocess  sRGB RGBA -> perceptual color, blurred once with the window
//	stats       windowed mean/variance/covariance and quantized DSSIM
//	downsample  2x2 box average producing the next level
//
// All per-pixel buffers are flat arrays indexed y*width+x. Color buffers
// hold four float32 components per pixel; statistic buffers hold one
// float32, and the quantized dissimilarity buffer holds one uint32.
//
// Window weights and normalizers are rendered into the shader source as
// constants and the sampling loops are unrolled at generation time, so the
// GPU kernels never loop over the window.
package kernel
