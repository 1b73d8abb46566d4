// Package analysis implements the statistical core of powerlens.
//
// Everything here is a pure function over power series (milliwatts):
//   - Divergence: |mean - median| / median buckets a workload's shape.
//   - Occupancy:  Mean = L·f + H·(1-f) solved for the fraction of time in
//     each of two power states; burst fraction = 1 - f.
//   - Attribution: AR = component_delta / total_delta over a shared baseline,
//     compared before/after an intervention to separate eliminated power from
//     relocated power.
//
// No state is kept between calls except in Accumulator, which backs the live
// terminal display.
package analysis

import (
	"math"
	"sort"

	"github.com/powerlens/powerlens/internal/domain"
)

// Mean returns the arithmetic mean, or 0 for an empty series.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median returns the middle value, averaging the two middle values for
// even-length series. The input is not modified.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(xs)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Min returns the smallest value, or 0 for an empty series.
func Min(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Max returns the largest value, or 0 for an empty series.
func Max(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// StdDev returns the sample standard deviation (n-1 denominator).
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// Percentile returns the p-th percentile (0-100) using linear interpolation
// between closest ranks.
func Percentile(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(xs)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ─── Summary ────────────────────────────────────────────────────────────────

// Summary is the full statistical picture of one power series.
type Summary struct {
	Count          int            `json:"count"`
	Mean           float64        `json:"mean_mw"`
	Median         float64        `json:"median_mw"`
	Min            float64        `json:"min_mw"`
	Max            float64        `json:"max_mw"`
	StdDev         float64        `json:"stddev_mw"`
	P95            float64        `json:"p95_mw"`
	Divergence     float64        `json:"divergence"`
	Class          Class          `json:"class"`
	Skew           Skew           `json:"skew"`
	Occupancy      Occupancy      `json:"occupancy"`
	Recommendation Recommendation `json:"recommendation"`
}

// Summarize computes every statistic for a series. A zero median leaves the
// divergence at zero and the class Normal, since nothing meaningful can be
// said about shape.
func Summarize(xs []float64, th Thresholds) (Summary, error) {
	if len(xs) == 0 {
		return Summary{}, domain.ErrNoSamples
	}

	s := Summary{
		Count:  len(xs),
		Mean:   Mean(xs),
		Median: Median(xs),
		Min:    Min(xs),
		Max:    Max(xs),
		StdDev: StdDev(xs),
		P95:    Percentile(xs, 95),
	}

	if div, err := Divergence(s.Mean, s.Median); err == nil {
		s.Divergence = div
	}
	s.Class = Classify(s.Divergence, th)
	s.Skew = SkewOf(s.Mean, s.Median, th)
	s.Occupancy = fitTwoState(s.Mean, s.Median, s.Min, s.Max, s.Skew)
	s.Recommendation = Recommend(s.Class, s.Skew)
	return s, nil
}
