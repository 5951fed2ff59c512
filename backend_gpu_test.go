//go:build !nogpu

package dssim

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/dssim/internal/gpu"
)

func TestClassifyGPUErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage string
		kind  error
	}{
		{"readback", fmt.Errorf("level 0 stats: %w", gpu.ErrReadback), StageReadback, ErrReadback},
		{"resource", fmt.Errorf("level 1 downsample image1: %w", gpu.ErrResource), StageDispatch, ErrResource},
		{"closed", gpu.ErrSessionClosed, StageDispatch, ErrResource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyRunErr(tt.err)
			var se *StageError
			if !errors.As(err, &se) || se.Stage != tt.stage || !errors.Is(err, tt.kind) {
				t.Errorf("got %v, want stage %q kind %v", err, tt.stage, tt.kind)
			}
		})
	}
}

func TestClassifyAcquireErrors(t *testing.T) {
	if err := classifyAcquireErr(fmt.Errorf("x: %w", gpu.ErrNoAdapter)); !errors.Is(err, ErrNoAdapter) {
		t.Errorf("no adapter: got %v", err)
	}
	if err := classifyAcquireErr(gpu.ErrNoDevice); !errors.Is(err, ErrNoDevice) {
		t.Errorf("no device: got %v", err)
	}
}
