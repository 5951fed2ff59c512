// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"fmt"
	"math"
	"strings"
)

// ColorSpace selects the perceptual representation produced by the
// preprocess kernel. Statistics are always taken over component 0.
type ColorSpace int

const (
	// ColorLinearLuma is Rec.709 luma of linear light, premultiplied over black.
	ColorLinearLuma ColorSpace = iota
	// ColorLab is CIE L*a*b* (D65) with every component divided by 100.
	ColorLab
)

// String returns the color space name accepted by ParseColorSpace.
func (c ColorSpace) String() string {
	switch c {
	case ColorLinearLuma:
		return "luma"
	case ColorLab:
		return "lab"
	default:
		return fmt.Sprintf("ColorSpace(%d)", int(c))
	}
}

// Valid reports whether c is a known color space.
func (c ColorSpace) Valid() bool {
	return c == ColorLinearLuma || c == ColorLab
}

// ParseColorSpace parses "luma" or "lab".
func ParseColorSpace(s string) (ColorSpace, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "luma", "linear", "linear-luma":
		return ColorLinearLuma, nil
	case "lab":
		return ColorLab, nil
	}
	return 0, fmt.Errorf("kernel: unknown color space %q", s)
}

// CIE constants shared with the shader templates.
const (
	labEpsilon = 216.0 / 24389.0
	labKappa   = 24389.0 / 27.0

	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

// srgbToLinear decodes one sRGB-encoded component in [0,1].
func srgbToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return float32(math.Pow(float64((c+0.055)/1.055), 2.4))
}

func labF(t float32) float32 {
	if t > labEpsilon {
		return float32(math.Cbrt(float64(t)))
	}
	return (labKappa*t + 16) / 116
}

// toPerceptual converts one straight-alpha sRGB pixel to the perceptual
// representation of cs. The returned alpha is the input alpha.
func toPerceptual(cs ColorSpace, r, g, b, a float32) [4]float32 {
	lr := srgbToLinear(r) * a
	lg := srgbToLinear(g) * a
	lb := srgbToLinear(b) * a

	if cs == ColorLab {
		x := float32(0.4124564)*lr + float32(0.3575761)*lg + float32(0.1804375)*lb
		y := float32(0.2126729)*lr + float32(0.7151522)*lg + float32(0.0721750)*lb
		z := float32(0.0193339)*lr + float32(0.1191920)*lg + float32(0.9503041)*lb
		fx := labF(x / whiteX)
		fy := labF(y / whiteY)
		fz := labF(z / whiteZ)
		l := 116*fy - 16
		return [4]float32{l / 100, 500 * (fx - fy) / 100, 200 * (fy - fz) / 100, a}
	}

	luma := float32(0.2126)*lr + float32(0.7152)*lg + float32(0.0722)*lb
	return [4]float32{luma, 0, 0, a}
}
