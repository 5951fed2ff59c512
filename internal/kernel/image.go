// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyImage is returned for images with a zero dimension.
	ErrEmptyImage = errors.New("kernel: image has zero width or height")

	// ErrPixelCount is returned when a pixel buffer does not match its dimensions.
	ErrPixelCount = errors.New("kernel: pixel buffer length does not match dimensions")

	// ErrDegenerateLevel is returned when halving would produce a zero dimension.
	ErrDegenerateLevel = errors.New("kernel: downsampled level would be empty")
)

// Image is one pyramid level: straight-alpha RGBA, sRGB-encoded, each
// component in [0,1]. Pix holds Width·Height·4 values.
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

// NewImage allocates a zeroed image.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]float32, width*height*4)}
}

// FromRGBA8 converts packed 8-bit RGBA pixels by dividing each byte by 255.
func FromRGBA8(width, height int, pix []byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyImage
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("%w: %dx%d needs %d bytes, have %d",
			ErrPixelCount, width, height, width*height*4, len(pix))
	}
	im := NewImage(width, height)
	for i, v := range pix {
		im.Pix[i] = float32(v) / 255
	}
	return im, nil
}

// Len returns the pixel count.
func (im *Image) Len() int { return im.Width * im.Height }

// Validate checks the dimensions and buffer length.
func (im *Image) Validate() error {
	if im == nil || im.Width <= 0 || im.Height <= 0 {
		return ErrEmptyImage
	}
	if len(im.Pix) != im.Len()*4 {
		return fmt.Errorf("%w: %dx%d needs %d floats, have %d",
			ErrPixelCount, im.Width, im.Height, im.Len()*4, len(im.Pix))
	}
	return nil
}

// RGBA8 converts the image back to packed 8-bit RGBA, rounding to nearest.
func (im *Image) RGBA8() []byte {
	out := make([]byte, len(im.Pix))
	for i, v := range im.Pix {
		c := math.Round(float64(clamp01(v)) * 255)
		out[i] = uint8(c)
	}
	return out
}

// HalfSize returns the dimensions of the next pyramid level (floor of half).
func HalfSize(width, height int) (int, int, error) {
	w, h := width/2, height/2
	if w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("%w: %dx%d -> %dx%d", ErrDegenerateLevel, width, height, w, h)
	}
	return w, h, nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
