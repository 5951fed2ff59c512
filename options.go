package dssim

import (
	"fmt"

	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/dssim/internal/pyramid"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Backend selects where the kernels run.
type Backend string

const (
	// BackendGPU runs the WGSL kernels on a wgpu HAL device.
	BackendGPU Backend = "gpu"

	// BackendCPU runs the float32 reference kernels on the host.
	BackendCPU Backend = "cpu"
)

// ParseBackend parses "gpu" or "cpu".
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendGPU, BackendCPU:
		return Backend(s), nil
	}
	return "", fmt.Errorf("%w: unknown backend %q", ErrPrecondition, s)
}

// Option configures a comparison.
//
// Example:
//
//	// Defaults: GPU, 5x5 Gaussian window, linear luma, up to 5 levels
//	res, err := dssim.Compare(ctx, a, b)
//
//	// CPU reference with a Lab preprocess
//	res, err := dssim.Compare(ctx, a, b,
//	    dssim.WithBackend(dssim.BackendCPU),
//	    dssim.WithColorSpace(dssim.ColorLab))
type Option func(*options)

// options holds the resolved configuration of one comparison.
type options struct {
	backend    Backend
	window     kernel.Window
	color      kernel.ColorSpace
	maxLevels  int
	minSize    int
	debugStats bool
	halBackend gputypes.Backend
	provider   gpucontext.DeviceProvider
	onLevel    func(LevelEvent) error
	cpuWorkers int
}

// defaultOptions returns the default comparison options.
func defaultOptions() options {
	return options{
		backend:    BackendGPU,
		window:     kernel.Window5x5Gaussian,
		color:      kernel.ColorLinearLuma,
		maxLevels:  pyramid.DefaultMaxLevels,
		minSize:    pyramid.DefaultMinSize,
		cpuWorkers: 1,
	}
}

func (o *options) kernelConfig() kernel.Config {
	cfg := kernel.DefaultConfig()
	cfg.Window = o.window
	cfg.ColorSpace = o.color
	return cfg
}

func (o *options) validate() error {
	switch {
	case o.backend != BackendGPU && o.backend != BackendCPU:
		return fmt.Errorf("unknown backend %q", o.backend)
	case !o.window.Valid():
		return fmt.Errorf("unknown window %v", o.window)
	case !o.color.Valid():
		return fmt.Errorf("unknown color space %v", o.color)
	case o.maxLevels < 1 || o.maxLevels > len(pyramid.DefaultWeights):
		return fmt.Errorf("levels %d out of range [1, %d]", o.maxLevels, len(pyramid.DefaultWeights))
	case o.cpuWorkers < 0:
		return fmt.Errorf("cpu workers %d < 0", o.cpuWorkers)
	case o.minSize < 2:
		return fmt.Errorf("minimum level size %d < 2", o.minSize)
	}
	return nil
}

// WithBackend selects the GPU or CPU backend.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithWindow sets the statistics window.
func WithWindow(w Window) Option {
	return func(o *options) {
		o.window = w
	}
}

// WithColorSpace sets the preprocess color transform.
func WithColorSpace(c ColorSpace) Option {
	return func(o *options) {
		o.color = c
	}
}

// WithMaxLevels bounds the number of pyramid levels (1..5).
func WithMaxLevels(n int) Option {
	return func(o *options) {
		o.maxLevels = n
	}
}

// WithMinLevelSize stops downsampling once a dimension falls below n.
func WithMinLevelSize(n int) Option {
	return func(o *options) {
		o.minSize = n
	}
}

// WithDebugStats reads back the level-0 float statistics
// (mu1, mu2, var1, var2, cov12) into the result.
func WithDebugStats(enabled bool) Option {
	return func(o *options) {
		o.debugStats = enabled
	}
}

// WithHALBackend selects the wgpu HAL backend used to create an instance.
// The default is Vulkan.
func WithHALBackend(b gputypes.Backend) Option {
	return func(o *options) {
		o.halBackend = b
	}
}

// WithDeviceProvider runs on a device shared by a host application
// instead of acquiring one. The provider must expose HalDevice() and
// HalQueue(); the device is never destroyed by dssim.
//
// Example:
//
//	app := gogpu.NewApp(gogpu.DefaultConfig())
//	res, err := dssim.Compare(ctx, a, b, dssim.WithDeviceProvider(app.GPUContextProvider()))
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithLevelObserver calls fn after each level is scored, with that level's
// input images. An error from fn aborts the comparison.
func WithLevelObserver(fn func(LevelEvent) error) Option {
	return func(o *options) {
		o.onLevel = fn
	}
}

// WithCPUWorkers sets the number of goroutines the CPU backend spreads
// rows over. The default of one runs on the calling goroutine; zero uses
// GOMAXPROCS. Scores do not depend on the worker count.
func WithCPUWorkers(n int) Option {
	return func(o *options) {
		o.cpuWorkers = n
	}
}
