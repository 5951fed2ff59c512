// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"fmt"
	"strings"
)

// Window selects the sliding window used by the preprocess blur and the
// statistics kernel. Weights are separable: weight(dx, dy) = g(|dx|)·g(|dy|).
type Window int

const (
	// Window5x5Gaussian is a radius 2 Gaussian (sigma ~1).
	Window5x5Gaussian Window = iota
	// Window3x3Gaussian is a radius 1 binomial window.
	Window3x3Gaussian
	// Window3x3Box is a radius 1 uniform window.
	Window3x3Box
)

// taps holds g(0..radius) for each window.
var windowTaps = map[Window][]float32{
	Window5x5Gaussian: {0.4026, 0.2442, 0.0545},
	Window3x3Gaussian: {0.5, 0.25},
	Window3x3Box:      {1, 1},
}

// String returns the window name accepted by ParseWindow.
func (w Window) String() string {
	switch w {
	case Window5x5Gaussian:
		return "gaussian5x5"
	case Window3x3Gaussian:
		return "gaussian3x3"
	case Window3x3Box:
		return "box3x3"
	default:
		return fmt.Sprintf("Window(%d)", int(w))
	}
}

// TypeName returns the weight family: "gaussian" or "box".
func (w Window) TypeName() string {
	if w == Window3x3Box {
		return "box"
	}
	return "gaussian"
}

// Valid reports whether w is a known window.
func (w Window) Valid() bool {
	_, ok := windowTaps[w]
	return ok
}

// Radius returns the window radius in pixels.
func (w Window) Radius() int {
	return len(windowTaps[w]) - 1
}

// Size returns the window edge length (2·radius+1).
func (w Window) Size() int {
	return 2*w.Radius() + 1
}

// Weight returns the weight of the sample at offset (dx, dy).
// Offsets outside the radius weigh zero.
func (w Window) Weight(dx, dy int) float32 {
	g := windowTaps[w]
	ax, ay := abs(dx), abs(dy)
	if ax >= len(g) || ay >= len(g) {
		return 0
	}
	return g[ax] * g[ay]
}

// Tap is one sample of an unrolled window.
type Tap struct {
	DX, DY int
	W      float32
}

// Taps returns the window samples in evaluation order: rows top to bottom,
// columns left to right. Both the shaders and the CPU reference accumulate
// in exactly this order.
func (w Window) Taps() []Tap {
	r := w.Radius()
	taps := make([]Tap, 0, w.Size()*w.Size())
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			taps = append(taps, Tap{DX: dx, DY: dy, W: w.Weight(dx, dy)})
		}
	}
	return taps
}

// Normalizer returns the float32 sum of all tap weights, accumulated in
// tap order.
func (w Window) Normalizer() float32 {
	var sum float32
	for _, t := range w.Taps() {
		sum += t.W
	}
	return sum
}

// ParseWindow parses a window name as returned by Window.String.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gaussian5x5", "gaussian5", "5x5":
		return Window5x5Gaussian, nil
	case "gaussian3x3", "gaussian3", "3x3":
		return Window3x3Gaussian, nil
	case "box3x3", "box":
		return Window3x3Box, nil
	}
	return 0, fmt.Errorf("kernel: unknown window %q", s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
