//go:build nogpu

package dssim

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gogpu/dssim/internal/kernel"
)

var errNoGPUBuild = errors.New("built with the nogpu tag")

func propagateGPULogger(*slog.Logger) {}

func openGPUBackend(context.Context, *options, kernel.Config) (*levelBackend, error) {
	return nil, stageErr(StageAcquire, ErrNoAdapter, errNoGPUBuild)
}

func classifyGPUErr(error) (string, error, bool) { return "", nil, false }
