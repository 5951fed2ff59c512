// Package pyramid drives the multi-scale DSSIM loop: per level it runs the
// statistics kernel, scores the quantized dissimilarity map and, unless the
// level is the last, downsamples both images for the next level.
//
// The loop is an explicit state machine:
//
//	Init -> {LevelCompute -> LevelReadback -> LevelScored} x L -> Aggregate -> Done
//
// Any backend failure aborts the run; no partial result is returned.
package pyramid

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/dssim/internal/kernel"
)

// Defaults for Config.
const (
	DefaultMaxLevels = 5
	DefaultMinSize   = 8
)

// ErrDimensionMismatch is returned when the two inputs differ in size.
var ErrDimensionMismatch = errors.New("pyramid: image dimensions differ")

// ErrObserver wraps an error returned by Config.OnLevel.
var ErrObserver = errors.New("pyramid: level observer failed")

// State is a step of the pyramid state machine.
type State int

const (
	StateInit State = iota
	StateLevelCompute
	StateLevelReadback
	StateLevelScored
	StateAggregate
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateLevelCompute:
		return "LevelCompute"
	case StateLevelReadback:
		return "LevelReadback"
	case StateLevelScored:
		return "LevelScored"
	case StateAggregate:
		return "Aggregate"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LevelEvent is delivered to Config.OnLevel after a level is scored.
// Image1 and Image2 are that level's inputs.
type LevelEvent struct {
	Level  int
	Image1 *kernel.Image
	Image2 *kernel.Image
	Scale  *ScaleOutputs
}

// Config controls the pyramid shape and readback policy.
type Config struct {
	// MaxLevels bounds the number of levels (default 5).
	MaxLevels int

	// MinSize stops downsampling once either dimension falls below it
	// (default 8).
	MinSize int

	// Weights are the per-level aggregation weights (default DefaultWeights).
	Weights []float64

	// QScale must match the quantization scale used by the backend.
	QScale uint32

	// StatsLevels is the number of leading levels whose float statistics
	// are read back. Zero reads none.
	StatsLevels int

	// OnLevel, if set, observes each scored level. An error aborts the run.
	OnLevel func(LevelEvent) error
}

func (c Config) withDefaults() Config {
	if c.MaxLevels == 0 {
		c.MaxLevels = DefaultMaxLevels
	}
	if c.MinSize == 0 {
		c.MinSize = DefaultMinSize
	}
	if c.Weights == nil {
		c.Weights = DefaultWeights
	}
	if c.QScale == 0 {
		c.QScale = kernel.QScale
	}
	return c
}

func (c Config) validate() error {
	if c.MaxLevels < 1 {
		return fmt.Errorf("pyramid: max levels %d < 1", c.MaxLevels)
	}
	if c.MaxLevels > len(c.Weights) {
		return fmt.Errorf("pyramid: max levels %d exceeds %d weights", c.MaxLevels, len(c.Weights))
	}
	if c.MinSize < 2 {
		return fmt.Errorf("pyramid: min size %d < 2", c.MinSize)
	}
	return nil
}

// ScaleOutputs is the host-side result of one level.
type ScaleOutputs struct {
	Level  int
	Width  int
	Height int

	// DssimQ is the quantized per-pixel dissimilarity.
	DssimQ []uint32

	// Stats holds the raw statistics when they were read back, else nil.
	Stats *kernel.StatsResult

	Sum       uint64
	MeanDssim float64
	Score     float64
	Weight    float64
}

// ElemCount returns the per-pixel array length of the level.
func (s *ScaleOutputs) ElemCount() int { return s.Width * s.Height }

// SSIM returns 1 − 2·MeanDssim.
func (s *ScaleOutputs) SSIM() float64 { return 1 - 2*s.MeanDssim }

// MultiScaleOutputs is the result of a full run.
type MultiScaleOutputs struct {
	Scales       []ScaleOutputs
	WeightedSSIM float64
	Score        float64
	Backend      string
}

// Run executes the pyramid over a and b on be.
func Run(ctx context.Context, be Backend, a, b *kernel.Image, cfg Config) (*MultiScaleOutputs, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := CheckPair(a, b); err != nil {
		return nil, err
	}
	r := &runner{be: be, cfg: cfg, cur1: a, cur2: b, state: StateInit}
	for r.state != StateDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := r.step(ctx)
		if err != nil {
			return nil, err
		}
		slogger().Debug("pyramid: transition", "from", r.state, "to", next, "level", r.level)
		r.state = next
	}
	return r.out, nil
}

// CheckPair verifies both images are valid and equal in size.
func CheckPair(a, b *kernel.Image) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("image1: %w", err)
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("image2: %w", err)
	}
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}

type runner struct {
	be    Backend
	cfg   Config
	state State
	level int

	cur1, cur2 *kernel.Image
	pending    *kernel.StatsResult
	scales     []ScaleOutputs
	out        *MultiScaleOutputs
}

func (r *runner) step(ctx context.Context) (State, error) {
	switch r.state {
	case StateInit:
		r.level = 0
		return StateLevelCompute, nil

	case StateLevelCompute:
		readStats := r.level < r.cfg.StatsLevels
		res, err := r.be.Stats(ctx, r.cur1, r.cur2, readStats)
		if err != nil {
			return r.state, fmt.Errorf("level %d stats: %w", r.level, err)
		}
		r.pending = res
		return StateLevelReadback, nil

	case StateLevelReadback:
		n := r.cur1.Len()
		if len(r.pending.DssimQ) != n {
			return r.state, fmt.Errorf("level %d: dissimilarity map has %d elements, want %d",
				r.level, len(r.pending.DssimQ), n)
		}
		if r.pending.HasStats() && len(r.pending.Mu1) != n {
			return r.state, fmt.Errorf("level %d: statistics have %d elements, want %d",
				r.level, len(r.pending.Mu1), n)
		}
		return StateLevelScored, nil

	case StateLevelScored:
		return r.score(ctx)

	case StateAggregate:
		scores := make([]float64, len(r.scales))
		for i := range r.scales {
			scores[i] = r.scales[i].Score
		}
		weighted, final, err := Aggregate(scores, r.cfg.Weights)
		if err != nil {
			return r.state, err
		}
		r.out = &MultiScaleOutputs{
			Scales:       r.scales,
			WeightedSSIM: weighted,
			Score:        final,
			Backend:      r.be.Name(),
		}
		slogger().Info("pyramid: done", "levels", len(r.scales), "weighted", weighted, "score", final)
		return StateDone, nil
	}
	return r.state, fmt.Errorf("pyramid: unexpected state %v", r.state)
}

func (r *runner) score(ctx context.Context) (State, error) {
	res := r.pending
	r.pending = nil

	sum, mean, score := ScoreLevel(res.DssimQ, r.cfg.QScale, r.level)
	so := ScaleOutputs{
		Level:     r.level,
		Width:     r.cur1.Width,
		Height:    r.cur1.Height,
		DssimQ:    res.DssimQ,
		Sum:       sum,
		MeanDssim: mean,
		Score:     score,
		Weight:    r.cfg.Weights[r.level],
	}
	if res.HasStats() {
		so.Stats = res
	}
	r.scales = append(r.scales, so)
	slogger().Info("pyramid: level scored",
		"level", r.level, "width", so.Width, "height", so.Height,
		"sum", sum, "mean_dssim", mean, "score", score)

	if r.cfg.OnLevel != nil {
		ev := LevelEvent{Level: r.level, Image1: r.cur1, Image2: r.cur2, Scale: &r.scales[len(r.scales)-1]}
		if err := r.cfg.OnLevel(ev); err != nil {
			return r.state, fmt.Errorf("%w: level %d: %w", ErrObserver, r.level, err)
		}
	}

	if r.level+1 >= r.cfg.MaxLevels || r.cur1.Width < r.cfg.MinSize || r.cur1.Height < r.cfg.MinSize {
		return StateAggregate, nil
	}
	if _, _, err := kernel.HalfSize(r.cur1.Width, r.cur1.Height); err != nil {
		return StateAggregate, nil
	}

	next1, err := r.be.Downsample(ctx, r.cur1)
	if err != nil {
		return r.state, fmt.Errorf("level %d downsample image1: %w", r.level, err)
	}
	next2, err := r.be.Downsample(ctx, r.cur2)
	if err != nil {
		return r.state, fmt.Errorf("level %d downsample image2: %w", r.level, err)
	}
	r.cur1, r.cur2 = next1, next2
	r.level++
	return StateLevelCompute, nil
}
