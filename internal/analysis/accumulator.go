package analysis

import (
	"math"
	"sync"
)

// DefaultWindow is how many recent samples the rolling median covers.
const DefaultWindow = 120

// Accumulator keeps running statistics for a live power series.
// Mean and variance use Welford's online algorithm over every sample; the
// median and occupancy cover the most recent Window samples.
// Thread-safe via Mutex.
type Accumulator struct {
	mu     sync.Mutex
	count  int
	mean   float64
	m2     float64
	min    float64
	max    float64
	window []float64
	next   int
	full   bool
}

// NewAccumulator creates an accumulator with a rolling window of size n
// (DefaultWindow when n <= 0).
func NewAccumulator(n int) *Accumulator {
	if n <= 0 {
		n = DefaultWindow
	}
	return &Accumulator{window: make([]float64, n)}
}

// Add records one observation.
func (a *Accumulator) Add(x float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	delta := x - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (x - a.mean)

	if a.count == 1 || x < a.min {
		a.min = x
	}
	if a.count == 1 || x > a.max {
		a.max = x
	}

	a.window[a.next] = x
	a.next = (a.next + 1) % len(a.window)
	if a.next == 0 {
		a.full = true
	}
}

// Count returns the number of observations.
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Mean returns the running mean.
func (a *Accumulator) Mean() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mean
}

// StdDev returns the running sample standard deviation.
func (a *Accumulator) StdDev() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.count-1))
}

// Recent returns a copy of the rolling window, oldest first.
func (a *Accumulator) Recent() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recentLocked()
}

func (a *Accumulator) recentLocked() []float64 {
	if !a.full {
		out := make([]float64, a.next)
		copy(out, a.window[:a.next])
		return out
	}
	out := make([]float64, 0, len(a.window))
	out = append(out, a.window[a.next:]...)
	return append(out, a.window[:a.next]...)
}

// Snapshot summarizes the series: all-time mean/stddev/extremes, and the
// median, divergence, class and occupancy of the rolling window.
func (a *Accumulator) Snapshot(th Thresholds) Summary {
	a.mu.Lock()
	recent := a.recentLocked()
	s := Summary{
		Count: a.count,
		Mean:  a.mean,
		Min:   a.min,
		Max:   a.max,
	}
	if a.count >= 2 {
		s.StdDev = math.Sqrt(a.m2 / float64(a.count-1))
	}
	a.mu.Unlock()

	if len(recent) == 0 {
		return s
	}

	windowMean := Mean(recent)
	s.Median = Median(recent)
	s.P95 = Percentile(recent, 95)
	if div, err := Divergence(windowMean, s.Median); err == nil {
		s.Divergence = div
	}
	s.Class = Classify(s.Divergence, th)
	s.Skew = SkewOf(windowMean, s.Median, th)
	s.Occupancy = fitTwoState(windowMean, s.Median, Min(recent), Max(recent), s.Skew)
	s.Recommendation = Recommend(s.Class, s.Skew)
	return s
}
