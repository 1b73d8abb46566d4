package analysis

import "github.com/powerlens/powerlens/internal/domain"

// Occupancy is the solved two-state model Mean = Low·f + High·(1-f).
type Occupancy struct {
	Low           float64 `json:"low_mw"`
	High          float64 `json:"high_mw"`
	Mean          float64 `json:"mean_mw"`
	LowFraction   float64 `json:"low_fraction"`
	BurstFraction float64 `json:"burst_fraction"`
	Skew          Skew    `json:"skew"`
}

// SolveOccupancy returns f, the fraction of time spent in the low state,
// from f = (mean - high) / (low - high), clamped to [0,1]. When both states
// coincide the component never leaves its single state and f is 1.
func SolveOccupancy(mean, low, high float64) float64 {
	if high == low {
		return 1
	}
	return clamp01((mean - high) / (low - high))
}

// FitTwoState picks the two states from the series' shape and solves the
// occupancy:
//   - right-skewed: the median is the resting state, the maximum the burst;
//   - left-skewed: the median is the busy plateau, the minimum the idle dip;
//   - symmetric: the extremes.
func FitTwoState(xs []float64, th Thresholds) (Occupancy, error) {
	if len(xs) == 0 {
		return Occupancy{}, domain.ErrNoSamples
	}
	mean, median := Mean(xs), Median(xs)
	return fitTwoState(mean, median, Min(xs), Max(xs), SkewOf(mean, median, th)), nil
}

func fitTwoState(mean, median, lo, hi float64, skew Skew) Occupancy {
	low, high := lo, hi
	switch skew {
	case SkewRight:
		low = median
	case SkewLeft:
		high = median
	}

	f := SolveOccupancy(mean, low, high)
	return Occupancy{
		Low:           low,
		High:          high,
		Mean:          mean,
		LowFraction:   f,
		BurstFraction: 1 - f,
		Skew:          skew,
	}
}

// BurstFraction is shorthand for FitTwoState(xs).BurstFraction.
func BurstFraction(xs []float64, th Thresholds) float64 {
	occ, err := FitTwoState(xs, th)
	if err != nil {
		return 0
	}
	return occ.BurstFraction
}

// ─── Power Tax ──────────────────────────────────────────────────────────────

// DefaultEfficiencyRatio is the E-core to P-core power ratio for the same
// work on M-series parts.
const DefaultEfficiencyRatio = 0.35

// PerformanceShare returns the fraction of active cluster residency spent on
// performance cores.
func PerformanceShare(pActive, eActive float64) float64 {
	if pActive < 0 {
		pActive = 0
	}
	if eActive < 0 {
		eActive = 0
	}
	total := pActive + eActive
	if total == 0 {
		return 0
	}
	return pActive / total
}

// PowerTax estimates the milliwatts a component wastes by running its
// performance-core share on P cores instead of E cores:
//
//	tax = power · pShare · (1 - efficiencyRatio)
func PowerTax(power, pShare, efficiencyRatio float64) float64 {
	if power <= 0 {
		return 0
	}
	return power * clamp01(pShare) * (1 - clamp01(efficiencyRatio))
}
