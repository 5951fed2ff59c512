// Package parallel runs the CPU reference kernels over row bands on a
// fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// MinBandRows is the smallest band handed to a worker. Pyramid levels
// below this height run on the calling goroutine.
const MinBandRows = 8

// WorkerPool is a fixed set of goroutines that execute row bands.
//
// WorkerPool is safe for concurrent use. Bands submitted by one Rows call
// must be independent of each other.
type WorkerPool struct {
	workers int
	jobs    chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{
		workers: workers,
		jobs:    make(chan func(), max(workers*4, 8)),
		done:    make(chan struct{}),
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.done:
			// Drain what was queued before Close.
			for {
				select {
				case job := <-p.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// ExecuteAll runs every item and waits for all of them. Items that could
// not be queued because the pool is closed run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() || len(work) == 1 {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for _, fn := range work {
		job := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.jobs <- job:
		case <-p.done:
			job()
		}
	}
	wg.Wait()
}

// Rows splits [0, height) into contiguous bands and runs fn on each.
// It returns after every band has finished. Rows has the shape of
// kernel.RowFunc.
func (p *WorkerPool) Rows(height int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	bands := p.Bands(height)
	if len(bands) == 1 {
		fn(0, height)
		return
	}
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b[0], b[1]) }
	}
	p.ExecuteAll(work)
}

// Bands returns the [y0, y1) ranges Rows would use for height. There are
// at most two bands per worker and none shorter than MinBandRows, except
// the last.
func (p *WorkerPool) Bands(height int) [][2]int {
	if height <= 0 {
		return nil
	}
	n := min(p.workers*2, (height+MinBandRows-1)/MinBandRows)
	n = max(n, 1)
	step := (height + n - 1) / n
	step = max(step, MinBandRows)
	bands := make([][2]int, 0, n)
	for y := 0; y < height; y += step {
		bands = append(bands, [2]int{y, min(y+step, height)})
	}
	return bands
}

// Close stops the workers after the queued work has run. Close is safe to
// call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
