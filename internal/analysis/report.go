package analysis

import (
	"fmt"

	"github.com/powerlens/powerlens/internal/domain"
)

// Report is the analysis of one component over a set of samples.
type Report struct {
	Component        string       `json:"component"`
	Summary          Summary      `json:"summary"`
	TotalMean        float64      `json:"total_mean_mw"`
	PerformanceShare float64      `json:"performance_share"`
	PowerTax         float64      `json:"power_tax_mw"`
	BaselineMW       float64      `json:"baseline_mw"`
	BaselineTotalMW  float64      `json:"baseline_total_mw"`
	Attribution      *Attribution `json:"attribution,omitempty"`
}

// BaselineFrom returns the component and total power to subtract before
// attribution. A stored baseline wins; otherwise the quietest interval of
// the samples is used. Processes have no idle draw of their own, so their
// component baseline is zero either way.
func BaselineFrom(samples []domain.Sample, c domain.Component, stored *domain.Baseline) (component, total float64) {
	if stored != nil {
		return stored.For(c), stored.TotalmW
	}
	if c.Kind != domain.ComponentProcess {
		component = Min(c.Series(samples))
	}
	return component, Min(domain.TotalSeries(samples))
}

// ClusterShare is the performance-core share of summed cluster residency.
func ClusterShare(samples []domain.Sample) float64 {
	var p, e float64
	for _, s := range samples {
		p += s.PClusterActive
		e += s.EClusterActive
	}
	return PerformanceShare(p, e)
}

// BuildReport summarizes c over samples and attributes it against baseline.
// Attribution is omitted when total power never rises above baseline.
// A process that never appears in the task table is an error, not a zero.
func BuildReport(samples []domain.Sample, c domain.Component, stored *domain.Baseline, th Thresholds, efficiencyRatio float64) (Report, error) {
	if len(samples) > 0 && !c.SeenIn(samples) {
		return Report{}, fmt.Errorf("%w: %s not in any task table", domain.ErrProcessNotFound, c.Process)
	}
	series := c.Series(samples)
	sum, err := Summarize(series, th)
	if err != nil {
		return Report{}, err
	}

	r := Report{
		Component:        c.String(),
		Summary:          sum,
		TotalMean:        Mean(domain.TotalSeries(samples)),
		PerformanceShare: ClusterShare(samples),
	}
	r.PowerTax = PowerTax(sum.Mean, r.PerformanceShare, efficiencyRatio)
	r.BaselineMW, r.BaselineTotalMW = BaselineFrom(samples, c, stored)

	if a, err := Attribute(sum.Mean, r.TotalMean, r.BaselineMW, r.BaselineTotalMW); err == nil {
		r.Attribution = &a
	}
	return r, nil
}
