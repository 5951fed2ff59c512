// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"strings"
	"testing"
)

func TestShaderSourcesRender(t *testing.T) {
	for _, cfg := range allConfigs() {
		pre, err := PreprocessSource(cfg)
		if err != nil {
			t.Fatalf("PreprocessSource(%v/%v): %v", cfg.Window, cfg.ColorSpace, err)
		}
		stats, err := StatsSource(cfg)
		if err != nil {
			t.Fatalf("StatsSource(%v/%v): %v", cfg.Window, cfg.ColorSpace, err)
		}
		taps := cfg.Window.Size() * cfg.Window.Size()
		for name, src := range map[string]string{"preprocess": pre, "stats": stats} {
			if got := strings.Count(src, "acc = accumulate("); got != taps {
				t.Errorf("%s %v: %d unrolled taps, want %d", name, cfg.Window, got, taps)
			}
			if strings.Contains(src, "{{") || strings.Contains(src, "<no value>") {
				t.Errorf("%s %v: unrendered template text", name, cfg.Window)
			}
			if !strings.Contains(src, "@workgroup_size(64)") {
				t.Errorf("%s: missing workgroup size", name)
			}
		}
		if cfg.ColorSpace == ColorLab && !strings.Contains(pre, "fn lab_f") {
			t.Error("lab preprocess missing lab_f")
		}
		if cfg.ColorSpace == ColorLinearLuma && strings.Contains(pre, "fn lab_f") {
			t.Error("luma preprocess contains lab_f")
		}
		if !strings.Contains(stats, "@binding(8) var<uniform> params") {
			t.Error("stats kernel params not at binding 8")
		}
	}
}

func TestShaderInvalidConfig(t *testing.T) {
	if _, err := StatsSource(Config{Window: Window(42)}); err == nil {
		t.Error("invalid window should fail")
	}
	if _, err := PreprocessSource(Config{ColorSpace: ColorSpace(9)}); err == nil {
		t.Error("invalid color space should fail")
	}
}

func TestWGSLFloat(t *testing.T) {
	tests := []struct {
		in   float32
		want string
	}{
		{1, "1.0"},
		{9, "9.0"},
		{0.5, "0.5"},
		{0.0009, "0.0009"},
	}
	for _, tt := range tests {
		if got := wgslFloat(tt.in); got != tt.want {
			t.Errorf("wgslFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestShaderCompilation compiles every kernel variant to SPIR-V with naga.
func TestShaderCompilation(t *testing.T) {
	sources := map[string]func() (string, error){
		"downsample": DownsampleSource,
	}
	for _, cfg := range allConfigs() {
		cfg := cfg
		sources["preprocess_"+cfg.Window.String()+"_"+cfg.ColorSpace.String()] = func() (string, error) { return PreprocessSource(cfg) }
		sources["stats_"+cfg.Window.String()+"_"+cfg.ColorSpace.String()] = func() (string, error) { return StatsSource(cfg) }
	}
	for name, gen := range sources {
		t.Run(name, func(t *testing.T) {
			src, err := gen()
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if err := Validate(src); err != nil {
				msg := err.Error()
				if strings.Contains(msg, "not yet implemented") || strings.Contains(msg, "not supported") {
					t.Skipf("Skipping: naga feature not yet implemented: %v", err)
				}
				if strings.Contains(msg, "lowering error") {
					t.Skipf("Skipping: naga lowering limitation: %v", err)
				}
				t.Fatalf("%s: %v", name, err)
			}
		})
	}
}
