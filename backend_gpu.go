//go:build !nogpu

package dssim

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gogpu/dssim/internal/gpu"
	"github.com/gogpu/dssim/internal/kernel"
)

func propagateGPULogger(l *slog.Logger) { gpu.SetLogger(l) }

func openGPUBackend(ctx context.Context, o *options, cfg kernel.Config) (*levelBackend, error) {
	acq := gpu.AcquireOptions{Backend: o.halBackend, ValidateShaders: true}

	var (
		sess *gpu.Session
		err  error
	)
	if o.provider != nil {
		sess, err = gpu.FromProvider(o.provider, acq)
	} else {
		sess, err = gpu.Acquire(ctx, acq)
	}
	if err != nil {
		return nil, classifyAcquireErr(err)
	}

	be, err := gpu.NewBackend(sess, cfg)
	if err != nil {
		sess.Close()
		return nil, stageErr(StagePipeline, ErrResource, err)
	}
	t := be.Timings()
	return &levelBackend{
		Backend:      be,
		adapter:      sess.Adapter().Name,
		shaderTime:   t.ShaderModules,
		pipelineTime: t.Pipelines,
		close: func() {
			be.Close()
			sess.Close()
		},
	}, nil
}

func classifyAcquireErr(err error) error {
	if errors.Is(err, gpu.ErrNoAdapter) {
		return stageErr(StageAcquire, ErrNoAdapter, err)
	}
	return stageErr(StageAcquire, ErrNoDevice, err)
}

// classifyGPUErr recognizes GPU failures raised while the pyramid runs.
func classifyGPUErr(err error) (stage string, kind error, ok bool) {
	switch {
	case errors.Is(err, gpu.ErrReadback):
		return StageReadback, ErrReadback, true
	case errors.Is(err, gpu.ErrResource), errors.Is(err, gpu.ErrSessionClosed):
		return StageDispatch, ErrResource, true
	}
	return "", nil, false
}
