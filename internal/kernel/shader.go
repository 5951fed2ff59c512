// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/gogpu/naga"
)

//go:embed shaders/*.wgsl.tmpl
var shaderFS embed.FS

var shaderTemplates = template.Must(template.ParseFS(shaderFS, "shaders/*.wgsl.tmpl"))

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic uint32 = 0x07230203

type shaderTap struct {
	X, Y string
	W    string
}

type shaderData struct {
	Window        string
	ColorSpace    string
	WorkgroupSize int
	Norm          string
	C1, C2        string
	LabEpsilon    string
	LabKappa      string
	Taps          []shaderTap
}

func newShaderData(cfg Config) (*shaderData, error) {
	if !cfg.Window.Valid() {
		return nil, fmt.Errorf("kernel: invalid window %v", cfg.Window)
	}
	if !cfg.ColorSpace.Valid() {
		return nil, fmt.Errorf("kernel: invalid color space %v", cfg.ColorSpace)
	}
	taps := cfg.Window.Taps()
	d := &shaderData{
		Window:        cfg.Window.String(),
		ColorSpace:    cfg.ColorSpace.String(),
		WorkgroupSize: WorkgroupSize,
		Norm:          wgslFloat(cfg.Window.Normalizer()),
		C1:            wgslFloat(C1),
		C2:            wgslFloat(C2),
		LabEpsilon:    wgslFloat(labEpsilon),
		LabKappa:      wgslFloat(labKappa),
		Taps:          make([]shaderTap, len(taps)),
	}
	for i, t := range taps {
		d.Taps[i] = shaderTap{X: offsetExpr("px", t.DX), Y: offsetExpr("py", t.DY), W: wgslFloat(t.W)}
	}
	return d, nil
}

// PreprocessSource renders the preprocess kernel for cfg.
//
// Bindings: 0 source RGBA (read), 1 perceptual output (read_write),
// 2 ScaleParams (uniform).
func PreprocessSource(cfg Config) (string, error) {
	return render("preprocess.wgsl.tmpl", cfg)
}

// StatsSource renders the statistics kernel for cfg.
//
// Bindings: 0 and 1 preprocessed images (read), 2 quantized dissimilarity
// (u32), 3..7 mu1, mu2, var1, var2, cov12 (f32), 8 ScaleParams (uniform).
func StatsSource(cfg Config) (string, error) {
	return render("stats.wgsl.tmpl", cfg)
}

// DownsampleSource renders the 2×2 box downsample kernel.
//
// Bindings: 0 source RGBA (read), 1 destination RGBA (read_write),
// 2 DownsampleParams (uniform).
func DownsampleSource() (string, error) {
	return render("downsample.wgsl.tmpl", DefaultConfig())
}

func render(name string, cfg Config) (string, error) {
	data, err := newShaderData(cfg)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := shaderTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("kernel: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Validate compiles WGSL with naga and checks the SPIR-V header.
func Validate(wgsl string) error {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return fmt.Errorf("kernel: shader compilation failed: %w", err)
	}
	if len(spirv) < 4 {
		return fmt.Errorf("kernel: shader compilation produced %d bytes", len(spirv))
	}
	magic := uint32(spirv[0]) | uint32(spirv[1])<<8 | uint32(spirv[2])<<16 | uint32(spirv[3])<<24
	if magic != spirvMagic {
		return fmt.Errorf("kernel: invalid SPIR-V magic 0x%08X", magic)
	}
	return nil
}

// wgslFloat formats f so that WGSL parses it back to the same float32.
func wgslFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func offsetExpr(base string, d int) string {
	switch {
	case d == 0:
		return base
	case d < 0:
		return fmt.Sprintf("%s - %d", base, -d)
	default:
		return fmt.Sprintf("%s + %d", base, d)
	}
}
