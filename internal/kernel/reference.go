// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"fmt"
	"math"
)

// StatsResult is the host copy of one statistics pass. DssimQ is always
// populated; the float statistics are nil unless they were read back.
type StatsResult struct {
	Width  int
	Height int

	DssimQ []uint32

	Mu1   []float32
	Mu2   []float32
	Var1  []float32
	Var2  []float32
	Cov12 []float32
}

// HasStats reports whether the raw statistic arrays are present.
func (r *StatsResult) HasStats() bool { return r.Mu1 != nil }

// RowFunc runs fn over the rows [0, height) split into bands. Every row
// must be covered by exactly one call; calls may run concurrently.
type RowFunc func(height int, fn func(y0, y1 int))

func serialRows(height int, fn func(y0, y1 int)) { fn(0, height) }

// Preprocess is the CPU implementation of the preprocess kernel.
// It returns four float32 components per pixel.
func Preprocess(cfg Config, im *Image) ([]float32, error) {
	return PreprocessRows(cfg, im, nil)
}

// PreprocessRows is Preprocess with rows distributed by rows. A nil rows
// runs serially. Results do not depend on the split.
func PreprocessRows(cfg Config, im *Image, rows RowFunc) ([]float32, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = serialRows
	}
	w, h := im.Width, im.Height
	taps := cfg.Window.Taps()
	norm := cfg.Window.Normalizer()

	// Convert once, then gather; the kernel converts per sample with the
	// same result.
	conv := make([][4]float32, im.Len())
	rows(h, func(y0, y1 int) {
		for i := y0 * w; i < y1*w; i++ {
			p := im.Pix[i*4 : i*4+4]
			conv[i] = toPerceptual(cfg.ColorSpace, p[0], p[1], p[2], p[3])
		}
	})

	out := make([]float32, im.Len()*4)
	rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				var acc [4]float32
				for _, t := range taps {
					s := conv[sampleIndex(x+t.DX, y+t.DY, w, h)]
					for c := 0; c < 4; c++ {
						acc[c] = acc[c] + float32(t.W*s[c])
					}
				}
				o := (y*w + x) * 4
				for c := 0; c < 4; c++ {
					out[o+c] = acc[c] / norm
				}
			}
		}
	})
	return out, nil
}

// Stats is the CPU implementation of the statistics kernel over two
// preprocessed images. keep controls whether the float statistics are
// returned alongside the quantized dissimilarity.
func Stats(cfg Config, lab1, lab2 []float32, width, height int, keep bool) (*StatsResult, error) {
	return StatsRows(cfg, lab1, lab2, width, height, keep, nil)
}

// StatsRows is Stats with rows distributed by rows. A nil rows runs
// serially.
func StatsRows(cfg Config, lab1, lab2 []float32, width, height int, keep bool, rows RowFunc) (*StatsResult, error) {
	n := width * height
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyImage
	}
	if len(lab1) != n*4 || len(lab2) != n*4 {
		return nil, fmt.Errorf("%w: stats over %dx%d", ErrPixelCount, width, height)
	}
	if rows == nil {
		rows = serialRows
	}
	taps := cfg.Window.Taps()
	norm := cfg.Window.Normalizer()
	qscale := float32(cfg.QScale)

	res := &StatsResult{Width: width, Height: height, DssimQ: make([]uint32, n)}
	if keep {
		res.Mu1 = make([]float32, n)
		res.Mu2 = make([]float32, n)
		res.Var1 = make([]float32, n)
		res.Var2 = make([]float32, n)
		res.Cov12 = make([]float32, n)
	}

	rows(height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < width; x++ {
				var m1, m2, m11, m22, m12 float32
				for _, t := range taps {
					i := sampleIndex(x+t.DX, y+t.DY, width, height)
					a, b := lab1[i*4], lab2[i*4]
					m1 = m1 + float32(t.W*a)
					m2 = m2 + float32(t.W*b)
					m11 = m11 + float32(t.W*float32(a*a))
					m22 = m22 + float32(t.W*float32(b*b))
					m12 = m12 + float32(t.W*float32(a*b))
				}
				px := PixelStats(m1/norm, m2/norm, m11/norm, m22/norm, m12/norm)
				idx := y*width + x
				res.DssimQ[idx] = Quantize(px.Dssim(), qscale)
				if keep {
					res.Mu1[idx] = px.Mu1
					res.Mu2[idx] = px.Mu2
					res.Var1[idx] = px.Var1
					res.Var2[idx] = px.Var2
					res.Cov12[idx] = px.Cov12
				}
			}
		}
	})
	return res, nil
}

// Moments are the normalized local statistics of one pixel.
type Moments struct {
	Mu1, Mu2   float32
	Var1, Var2 float32
	Cov12      float32
}

// PixelStats derives mean, floored variance and bounded covariance from
// normalized first and second moments.
func PixelStats(e1, e2, e11, e22, e12 float32) Moments {
	mu1, mu2 := e1, e2
	var1 := max(0, e11-float32(mu1*mu1))
	var2 := max(0, e22-float32(mu2*mu2))
	cov := e12 - float32(mu1*mu2)
	if float32(cov*cov) > float32(var1*var2) {
		bound := float32(math.Sqrt(float64(float32(var1 * var2))))
		if cov < 0 {
			cov = -bound
		} else {
			cov = bound
		}
	}
	return Moments{Mu1: mu1, Mu2: mu2, Var1: var1, Var2: var2, Cov12: cov}
}

// SSIM evaluates the SSIM formula with stabilizers C1 and C2.
func (m Moments) SSIM() float32 {
	lum := float32(float32(m.Mu1*m.Mu2)+float32(m.Mu1*m.Mu2)) + C1
	cs := float32(m.Cov12+m.Cov12) + C2
	lumDen := float32(float32(m.Mu1*m.Mu1)+float32(m.Mu2*m.Mu2)) + C1
	csDen := float32(m.Var1+m.Var2) + C2
	return float32(lum*cs) / float32(lumDen*csDen)
}

// Dssim returns clamp(0.5·(1−ssim), 0, 1).
func (m Moments) Dssim() float32 {
	d := float32(0.5) * (1 - m.SSIM())
	return min(max(d, 0), 1)
}

// Quantize rounds d·qscale half-up to an integer.
func Quantize(d, qscale float32) uint32 {
	return uint32(math.Floor(float64(float32(d*qscale) + 0.5)))
}

// Downsample is the CPU implementation of the 2×2 box downsample kernel.
func Downsample(im *Image) (*Image, error) {
	if err := im.Validate(); err != nil {
		return nil, err
	}
	ow, oh, err := HalfSize(im.Width, im.Height)
	if err != nil {
		return nil, err
	}
	out := NewImage(ow, oh)
	texel := func(x, y, c int) float32 {
		x = min(x, im.Width-1)
		y = min(y, im.Height-1)
		return im.Pix[(y*im.Width+x)*4+c]
	}
	for oy := 0; oy < oh; oy++ {
		for ox := 0; ox < ow; ox++ {
			x0, y0 := ox*2, oy*2
			o := (oy*ow + ox) * 4
			for c := 0; c < 4; c++ {
				top := texel(x0, y0, c) + texel(x0+1, y0, c)
				bottom := texel(x0, y0+1, c) + texel(x0+1, y0+1, c)
				out.Pix[o+c] = (top + bottom) * 0.25
			}
		}
	}
	return out, nil
}

func sampleIndex(x, y, w, h int) int {
	x = min(max(x, 0), w-1)
	y = min(max(y, 0), h-1)
	return y*w + x
}
