package pyramid

import (
	"context"

	"github.com/gogpu/dssim/internal/kernel"
	"github.com/gogpu/dssim/internal/parallel"
)

// Backend executes the per-level kernels. Implementations own every device
// resource they allocate for a call and release it before returning.
type Backend interface {
	// Name identifies the backend in results ("gpu", "cpu").
	Name() string

	// Stats preprocesses both images and runs the statistics kernel.
	// The float statistics are returned only when readStats is set.
	Stats(ctx context.Context, a, b *kernel.Image, readStats bool) (*kernel.StatsResult, error)

	// Downsample halves im with the 2×2 box kernel.
	Downsample(ctx context.Context, im *kernel.Image) (*kernel.Image, error)
}

// CPUBackend runs the float32 reference kernels on the host.
type CPUBackend struct {
	cfg  kernel.Config
	rows kernel.RowFunc
}

var _ Backend = (*CPUBackend)(nil)

// NewCPUBackend returns a host backend for cfg.
func NewCPUBackend(cfg kernel.Config) *CPUBackend {
	return &CPUBackend{cfg: cfg}
}

// NewParallelCPUBackend returns a host backend that spreads rows over
// pool. The caller owns pool and closes it after the last call.
func NewParallelCPUBackend(cfg kernel.Config, pool *parallel.WorkerPool) *CPUBackend {
	return &CPUBackend{cfg: cfg, rows: pool.Rows}
}

// Name returns "cpu".
func (c *CPUBackend) Name() string { return "cpu" }

// Stats implements Backend.
func (c *CPUBackend) Stats(ctx context.Context, a, b *kernel.Image, readStats bool) (*kernel.StatsResult, error) {
	lab1, err := kernel.PreprocessRows(c.cfg, a, c.rows)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lab2, err := kernel.PreprocessRows(c.cfg, b, c.rows)
	if err != nil {
		return nil, err
	}
	return kernel.StatsRows(c.cfg, lab1, lab2, a.Width, a.Height, readStats, c.rows)
}

// Downsample implements Backend.
func (c *CPUBackend) Downsample(_ context.Context, im *kernel.Image) (*kernel.Image, error) {
	return kernel.Downsample(im)
}
