package analysis

import (
	"encoding/json"
	"math"

	"github.com/powerlens/powerlens/internal/domain"
)

// Thresholds bucket divergence into shape classes.
type Thresholds struct {
	Slight      float64 `toml:"slight" json:"slight"`
	Moderate    float64 `toml:"moderate" json:"moderate"`
	Significant float64 `toml:"significant" json:"significant"`
}

// DefaultThresholds returns the 1% / 5% / 10% buckets.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Slight:      0.01,
		Moderate:    0.05,
		Significant: 0.10,
	}
}

// Class buckets a workload by how far its mean drifts from its median.
type Class int

const (
	ClassNormal      Class = iota // < Slight: mean and median agree
	ClassSlight                   // occasional background interference
	ClassModerate                 // mild background interference
	ClassSignificant              // strongly skewed by bursts or idle dips
)

// String returns the class label.
func (c Class) String() string {
	switch c {
	case ClassNormal:
		return "normal"
	case ClassSlight:
		return "slight"
	case ClassModerate:
		return "moderate"
	case ClassSignificant:
		return "significant"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the class as its label.
func (c Class) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Skew is the direction the mean is pulled away from the median.
type Skew int

const (
	SkewSymmetric Skew = iota
	SkewRight          // mean > median: bursty, mostly low with high spikes
	SkewLeft           // mean < median: mostly busy with idle dips
)

// String returns the skew label.
func (s Skew) String() string {
	switch s {
	case SkewSymmetric:
		return "symmetric"
	case SkewRight:
		return "right"
	case SkewLeft:
		return "left"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the skew as its label.
func (s Skew) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Divergence returns |mean - median| / median.
func Divergence(mean, median float64) (float64, error) {
	if median == 0 {
		return 0, domain.ErrZeroMedian
	}
	return math.Abs(mean-median) / math.Abs(median), nil
}

// Classify maps a divergence onto its class.
func Classify(div float64, th Thresholds) Class {
	switch {
	case div >= th.Significant:
		return ClassSignificant
	case div >= th.Moderate:
		return ClassModerate
	case div >= th.Slight:
		return ClassSlight
	default:
		return ClassNormal
	}
}

// SkewOf reports the skew direction. Divergence under the Slight threshold
// counts as symmetric.
func SkewOf(mean, median float64, th Thresholds) Skew {
	div, err := Divergence(mean, median)
	if err != nil {
		switch {
		case mean > median:
			return SkewRight
		case mean < median:
			return SkewLeft
		}
		return SkewSymmetric
	}
	if div < th.Slight {
		return SkewSymmetric
	}
	if mean > median {
		return SkewRight
	}
	return SkewLeft
}

// Recommendation says which central statistic to report.
type Recommendation struct {
	Use    string `json:"use"`
	Reason string `json:"reason"`
}

// Recommend picks the statistic to quote. The mean is always the right
// number for energy integrals; the median is the better "typical" figure once
// the shape stops being effectively normal.
func Recommend(c Class, s Skew) Recommendation {
	switch c {
	case ClassNormal:
		return Recommendation{Use: "mean", Reason: "distribution effectively normal; mean and median agree"}
	case ClassSlight:
		return Recommendation{Use: "mean", Reason: "minor background interference; mean still representative"}
	}

	reason := "mean inflated by bursts; median is the typical draw, mean the energy integral"
	if s == SkewLeft {
		reason = "mean pulled down by idle dips; median is the typical draw, mean the energy integral"
	}
	return Recommendation{Use: "median", Reason: reason}
}
