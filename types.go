package dssim

import (
	"github.com/gogpu/dssim/internal/imageio"
	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/dssim/internal/pyramid"
)

// Re-exported types.
type (
	// DecodedImage is a straight-alpha RGBA8 image.
	DecodedImage = imageio.DecodedImage

	// Window selects the statistics window.
	Window = kernel.Window

	// ColorSpace selects the preprocess color transform.
	ColorSpace = kernel.ColorSpace

	// MultiScaleOutputs holds per-level results and the final score.
	MultiScaleOutputs = pyramid.MultiScaleOutputs

	// ScaleOutputs is the result of one level.
	ScaleOutputs = pyramid.ScaleOutputs

	// LevelEvent is passed to a level observer.
	LevelEvent = pyramid.LevelEvent
)

// Windows.
const (
	Window5x5Gaussian = kernel.Window5x5Gaussian
	Window3x3Gaussian = kernel.Window3x3Gaussian
	Window3x3Box      = kernel.Window3x3Box
)

// Color spaces.
const (
	ColorLinearLuma = kernel.ColorLinearLuma
	ColorLab        = kernel.ColorLab
)

// ParseWindow parses a window name such as "gaussian5x5".
func ParseWindow(s string) (Window, error) { return kernel.ParseWindow(s) }

// ParseColorSpace parses "luma" or "lab".
func ParseColorSpace(s string) (ColorSpace, error) { return kernel.ParseColorSpace(s) }
