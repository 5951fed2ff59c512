// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/dssim/internal/pyramid"
)

func newNoopBackend(t *testing.T) (*Session, *Backend) {
	t.Helper()
	sess := newNoopSession(t)
	be, err := NewBackend(sess, kernel.DefaultConfig())
	if err != nil {
		t.Fatalf("NewBackend failed: %v", err)
	}
	t.Cleanup(be.Close)
	return sess, be
}

func grayImage(w, h int, v float32) *kernel.Image {
	im := kernel.NewImage(w, h)
	for i := range im.Pix {
		im.Pix[i] = v
	}
	return im
}

func TestNewBackendPipelines(t *testing.T) {
	_, be := newNoopBackend(t)

	if be.Name() != BackendGPU {
		t.Errorf("Name = %q, want %q", be.Name(), BackendGPU)
	}
	tests := []struct {
		p        *Pipeline
		label    string
		bindings int
	}{
		{be.preprocess, "dssim_preprocess", 3},
		{be.stats, "dssim_stats", 9},
		{be.downsample, "dssim_downsample", 3},
	}
	for _, tt := range tests {
		if tt.p == nil {
			t.Fatalf("%s: pipeline not created", tt.label)
		}
		if tt.p.Label() != tt.label || tt.p.Bindings() != tt.bindings {
			t.Errorf("got %s with %d bindings, want %s with %d", tt.p.Label(), tt.p.Bindings(), tt.label, tt.bindings)
		}
	}
	if be.Timings().ShaderModules < 0 || be.Timings().Pipelines < 0 {
		t.Error("negative timings")
	}
}

func TestNewBackendInvalidConfig(t *testing.T) {
	sess := newNoopSession(t)
	cfg := kernel.DefaultConfig()
	cfg.Window = kernel.Window(99)
	if _, err := NewBackend(sess, cfg); !errors.Is(err, ErrResource) {
		t.Errorf("got %v, want ErrResource", err)
	}
}

func TestBackendClose(t *testing.T) {
	_, be := newNoopBackend(t)
	be.Close()
	be.Close()
	if be.preprocess != nil || be.stats != nil || be.downsample != nil {
		t.Error("pipelines not released")
	}
}

func TestBackendStatsShape(t *testing.T) {
	_, be := newNoopBackend(t)
	a := grayImage(7, 5, 0.5)
	b := grayImage(7, 5, 0.25)

	tests := []struct {
		name      string
		readStats bool
	}{
		{"map only", false},
		{"with stats", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := be.Stats(context.Background(), a, b, tt.readStats)
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			if res.Width != 7 || res.Height != 5 {
				t.Errorf("dims = %dx%d, want 7x5", res.Width, res.Height)
			}
			if len(res.DssimQ) != 35 {
				t.Errorf("len(DssimQ) = %d, want 35", len(res.DssimQ))
			}
			if res.HasStats() != tt.readStats {
				t.Errorf("HasStats = %v, want %v", res.HasStats(), tt.readStats)
			}
			if tt.readStats {
				for i, s := range [][]float32{res.Mu1, res.Mu2, res.Var1, res.Var2, res.Cov12} {
					if len(s) != 35 {
						t.Errorf("%s: len = %d, want 35", statNames[i], len(s))
					}
				}
			}
		})
	}
}

func TestBackendUploadFailureAborts(t *testing.T) {
	sess, be := newNoopBackend(t)
	withFailingUploads(t, sess)

	if _, err := be.Stats(context.Background(), grayImage(4, 4, 0.5), grayImage(4, 4, 0.5), false); !errors.Is(err, ErrResource) {
		t.Errorf("Stats: got %v, want ErrResource", err)
	}
	if _, err := be.Downsample(context.Background(), grayImage(4, 4, 0.5)); !errors.Is(err, ErrResource) {
		t.Errorf("Downsample: got %v, want ErrResource", err)
	}
}

func TestBackendStatsDimensionMismatch(t *testing.T) {
	_, be := newNoopBackend(t)
	_, err := be.Stats(context.Background(), grayImage(4, 4, 0), grayImage(4, 5, 0), false)
	if !errors.Is(err, pyramid.ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestBackendDownsampleShape(t *testing.T) {
	_, be := newNoopBackend(t)

	tests := []struct {
		w, h, ow, oh int
	}{
		{8, 8, 4, 4},
		{9, 5, 4, 2},
		{3, 2, 1, 1},
	}
	for _, tt := range tests {
		out, err := be.Downsample(context.Background(), grayImage(tt.w, tt.h, 1))
		if err != nil {
			t.Fatalf("Downsample(%dx%d) failed: %v", tt.w, tt.h, err)
		}
		if out.Width != tt.ow || out.Height != tt.oh || len(out.Pix) != tt.ow*tt.oh*4 {
			t.Errorf("Downsample(%dx%d) = %dx%d (%d floats), want %dx%d",
				tt.w, tt.h, out.Width, out.Height, len(out.Pix), tt.ow, tt.oh)
		}
	}

	if _, err := be.Downsample(context.Background(), grayImage(1, 4, 0)); !errors.Is(err, kernel.ErrDegenerateLevel) {
		t.Errorf("1x4: got %v, want ErrDegenerateLevel", err)
	}
}

func TestBackendStatsCanceled(t *testing.T) {
	_, be := newNoopBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The submission itself is not cancelable; the readback wait is.
	_, err := be.Stats(ctx, grayImage(4, 4, 0), grayImage(4, 4, 0), false)
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want nil or context.Canceled", err)
	}
}

func TestBackendRunsPyramid(t *testing.T) {
	_, be := newNoopBackend(t)
	out, err := pyramid.Run(context.Background(), be, grayImage(16, 16, 0.5), grayImage(16, 16, 0.5), pyramid.Config{MaxLevels: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Scales) != 2 || out.Backend != BackendGPU {
		t.Errorf("got %d scales on %q", len(out.Scales), out.Backend)
	}
	if out.Scales[1].Width != 8 || out.Scales[1].Height != 8 {
		t.Errorf("level 1 = %dx%d, want 8x8", out.Scales[1].Width, out.Scales[1].Height)
	}
}
