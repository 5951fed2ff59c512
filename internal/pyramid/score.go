package pyramid

import (
	"errors"
	"fmt"
	"math"
)

// DefaultWeights are the per-level aggregation weights, finest level first.
// They sum to 1.0 across five levels.
var DefaultWeights = []float64{0.028, 0.197, 0.322, 0.298, 0.155}

// ErrNoLevels is returned when aggregating an empty pyramid.
var ErrNoLevels = errors.New("pyramid: no levels to aggregate")

// AggregationMethod names the per-level scoring used by ScoreLevel.
const AggregationMethod = "weighted_mean_abs_deviation"

// ScoreLevel reduces one level's quantized dissimilarity map.
//
// The sum is exact integer arithmetic. The mean SSIM is raised to 0.5^level
// and the level score is one minus the mean absolute deviation of the
// per-pixel SSIM values from that exponentiated mean.
func ScoreLevel(dssimQ []uint32, qscale uint32, level int) (sum uint64, meanDssim, score float64) {
	n := len(dssimQ)
	if n == 0 || qscale == 0 {
		return 0, 0, 0
	}
	for _, q := range dssimQ {
		sum += uint64(q)
	}
	scale := float64(qscale)
	meanDssim = float64(sum) / (float64(n) * scale)

	meanSSIM := 1 - 2*meanDssim
	avg := math.Pow(math.Max(meanSSIM, 0), math.Pow(0.5, float64(level)))

	var dev float64
	for _, q := range dssimQ {
		s := 1 - 2*float64(q)/scale
		dev += math.Abs(avg - s)
	}
	return sum, meanDssim, 1 - dev/float64(n)
}

// Aggregate combines per-level scores with weights[:len(scores)] into a
// weighted mean, and maps it to the final metric 1/max(weighted, ε) − 1,
// where 0 means identical.
func Aggregate(scores, weights []float64) (weighted, final float64, err error) {
	if len(scores) == 0 {
		return 0, 0, ErrNoLevels
	}
	if len(weights) < len(scores) {
		return 0, 0, fmt.Errorf("pyramid: %d levels but only %d weights", len(scores), len(weights))
	}
	var num, den float64
	for i, s := range scores {
		num += s * weights[i]
		den += weights[i]
	}
	if den <= 0 {
		return 0, 0, fmt.Errorf("pyramid: level weights sum to %v", den)
	}
	weighted = num / den
	final = 1/math.Max(weighted, epsilon) - 1
	return weighted, final, nil
}

// epsilon is the float64 machine epsilon.
const epsilon = 2.220446049250313e-16
