// Package dssim computes a multi-scale structural dissimilarity (DSSIM)
// score between two same-sized RGBA images on the GPU.
//
// # Overview
//
// Each pyramid level runs two compute kernels through gogpu/wgpu: a
// preprocess pass that converts sRGB pixels to a linear-light perceptual
// channel and blurs it, and a statistics pass that computes windowed means,
// variances and covariance and writes a quantized per-pixel dissimilarity
// map. The host scores every map, halves both images with a 2×2 box kernel
// and repeats for up to five levels. The weighted level scores are mapped
// to the final metric, where 0 means identical.
//
// # Quick Start
//
//	import "github.com/gogpu/dssim"
//
//	res, err := dssim.CompareFiles(ctx, "reference.png", "candidate.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%.8f\n", res.Score)
//
// # Backends
//
// The GPU backend acquires a Vulkan device by default (see WithHALBackend)
// or runs on a host application's device (WithDeviceProvider). The CPU
// backend runs the same kernels in float32 on the host and is used to
// cross-check the GPU. Build with -tags nogpu to exclude the GPU backend.
//
// # Errors
//
// Failures are terminal and returned as *StageError naming the stage and
// one of the error classes (ErrPrecondition, ErrNoAdapter, ErrNoDevice,
// ErrResource, ErrReadback).
package dssim

// Version is the engine version reported in result documents.
const Version = "0.1.0"
