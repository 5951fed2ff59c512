package dssim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/dssim/internal/imageio"
	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/dssim/internal/parallel"
	"github.com/gogpu/dssim/internal/pyramid"
)

// Result is the outcome of a successful comparison.
type Result struct {
	*MultiScaleOutputs

	// Kernel is the kernel configuration that produced the scores.
	Kernel kernel.Config

	// Adapter names the GPU adapter, or "cpu" for the CPU backend.
	Adapter string

	// ShaderTime and PipelineTime are the shader-module and pipeline
	// creation costs (zero on the CPU backend).
	ShaderTime   time.Duration
	PipelineTime time.Duration

	// Elapsed is the wall time from the start of device setup to the score.
	Elapsed time.Duration
}

// levelBackend is a pyramid backend plus the resources behind it.
type levelBackend struct {
	pyramid.Backend
	adapter      string
	shaderTime   time.Duration
	pipelineTime time.Duration
	close        func()
}

// Compare scores b against a. Both images must have the same dimensions.
func Compare(ctx context.Context, a, b *DecodedImage, opts ...Option) (*Result, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, stageErr(StageValidate, ErrPrecondition, err)
	}

	im1, im2, err := toImages(a, b)
	if err != nil {
		return nil, stageErr(StageValidate, ErrPrecondition, err)
	}

	start := time.Now()
	cfg := o.kernelConfig()
	be, err := openBackend(ctx, &o, cfg)
	if err != nil {
		return nil, err
	}
	defer be.close()

	pcfg := pyramid.Config{
		MaxLevels: o.maxLevels,
		MinSize:   o.minSize,
		QScale:    cfg.QScale,
		OnLevel:   o.onLevel,
	}
	if o.debugStats {
		pcfg.StatsLevels = 1
	}
	out, err := pyramid.Run(ctx, be, im1, im2, pcfg)
	if err != nil {
		return nil, classifyRunErr(err)
	}

	res := &Result{
		MultiScaleOutputs: out,
		Kernel:            cfg,
		Adapter:           be.adapter,
		ShaderTime:        be.shaderTime,
		PipelineTime:      be.pipelineTime,
		Elapsed:           time.Since(start),
	}
	slogger().Info("dssim: compared", "backend", out.Backend, "adapter", be.adapter,
		"levels", len(out.Scales), "score", out.Score, "elapsed", res.Elapsed)
	return res, nil
}

// CompareFiles decodes both files and compares them.
func CompareFiles(ctx context.Context, path1, path2 string, opts ...Option) (*Result, error) {
	a, err := imageio.Decode(path1)
	if err != nil {
		return nil, stageErr(StageDecode, ErrPrecondition, err)
	}
	b, err := imageio.Decode(path2)
	if err != nil {
		return nil, stageErr(StageDecode, ErrPrecondition, err)
	}
	return Compare(ctx, a, b, opts...)
}

// toImages validates the decoded pair and converts it to float RGBA.
func toImages(a, b *DecodedImage) (*kernel.Image, *kernel.Image, error) {
	if a == nil || b == nil {
		return nil, nil, errors.New("nil image")
	}
	if a.Width != b.Width || a.Height != b.Height {
		return nil, nil, fmt.Errorf("%w: %dx%d vs %dx%d", pyramid.ErrDimensionMismatch, a.Width, a.Height, b.Width, b.Height)
	}
	for i, d := range []*DecodedImage{a, b} {
		if d.Channels != 0 && d.Channels != imageio.Channels {
			return nil, nil, fmt.Errorf("image%d: %d channels, want %d", i+1, d.Channels, imageio.Channels)
		}
	}
	im1, err := kernel.FromRGBA8(a.Width, a.Height, a.Pix)
	if err != nil {
		return nil, nil, fmt.Errorf("image1: %w", err)
	}
	im2, err := kernel.FromRGBA8(b.Width, b.Height, b.Pix)
	if err != nil {
		return nil, nil, fmt.Errorf("image2: %w", err)
	}
	return im1, im2, nil
}

func openBackend(ctx context.Context, o *options, cfg kernel.Config) (*levelBackend, error) {
	if o.backend == BackendCPU {
		if o.cpuWorkers == 1 {
			return &levelBackend{
				Backend: pyramid.NewCPUBackend(cfg),
				adapter: string(BackendCPU),
				close:   func() {},
			}, nil
		}
		pool := parallel.NewWorkerPool(o.cpuWorkers)
		return &levelBackend{
			Backend: pyramid.NewParallelCPUBackend(cfg, pool),
			adapter: string(BackendCPU),
			close:   pool.Close,
		}, nil
	}
	return openGPUBackend(ctx, o, cfg)
}

// classifyRunErr maps a pyramid failure onto a stage and error class.
func classifyRunErr(err error) error {
	if stage, kind, ok := classifyGPUErr(err); ok {
		return stageErr(stage, kind, err)
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return stageErr(StageDispatch, nil, err)
	case errors.Is(err, pyramid.ErrObserver):
		return stageErr(StageObserve, nil, err)
	case errors.Is(err, pyramid.ErrDimensionMismatch),
		errors.Is(err, kernel.ErrPixelCount),
		errors.Is(err, kernel.ErrEmptyImage):
		return stageErr(StageValidate, ErrPrecondition, err)
	}
	return stageErr(StageAggregate, ErrPrecondition, err)
}
