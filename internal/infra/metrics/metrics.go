// Package metrics provides Prometheus metrics for powerlens.
// Gauges mirror the latest sampled power and analysis results; counters track
// sampler throughput and feedback-loop outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/domain"
)

const namespace = "powerlens"

// ─── Sampling ───────────────────────────────────────────────────────────────

// DomainPower is the most recent power reading per domain in milliwatts.
var DomainPower = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "domain_power_milliwatts",
	Help:      "Latest sampled power per domain (cpu, gpu, ane, dram, total).",
}, []string{"domain"})

// ClusterActive is the most recent active residency per CPU cluster type.
var ClusterActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "cluster_active_percent",
	Help:      "Latest active residency per cluster (efficiency, performance, gpu).",
}, []string{"cluster"})

// SamplesTotal counts parsed powermetrics intervals.
var SamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "samples_total",
	Help:      "Total powermetrics intervals parsed.",
})

// SamplerErrors counts sampler failures by kind.
var SamplerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "sampler_errors_total",
	Help:      "Sampler errors by kind.",
}, []string{"kind"})

// ─── Analysis ───────────────────────────────────────────────────────────────

// Divergence is the latest |mean-median|/median per component.
var Divergence = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "divergence_ratio",
	Help:      "Mean/median divergence per component.",
}, []string{"component"})

// BurstFraction is the two-state high-power occupancy per component.
var BurstFraction = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "burst_fraction",
	Help:      "Estimated fraction of time in the high-power state per component.",
}, []string{"component"})

// AttributionRatio is the latest AR per component.
var AttributionRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "attribution_ratio",
	Help:      "Component share of total power above baseline.",
}, []string{"component"})

// ─── Feedback ───────────────────────────────────────────────────────────────

// FeedbackRuns counts completed feedback runs by terminal state and verdict.
var FeedbackRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "feedback_runs_total",
	Help:      "Feedback loop runs by final state and verdict.",
}, []string{"state", "verdict"})

// FeedbackPowerTax is the power tax measured before the fix.
var FeedbackPowerTax = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "feedback_power_tax_milliwatts",
	Help:      "Power tax of the target component before the last fix.",
}, []string{"component"})

// FeedbackRealization is the share of the component drop seen in total power.
var FeedbackRealization = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "feedback_realization_ratio",
	Help:      "Total-power drop divided by component drop for the last fix.",
}, []string{"component"})

// FeedbackDuration tracks end-to-end loop time.
var FeedbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "feedback_duration_seconds",
	Help:      "Time from detection to verdict.",
	Buckets:   []float64{5, 10, 20, 30, 60, 120, 300},
})

// ─── Recorders ──────────────────────────────────────────────────────────────

// ObserveSample updates the per-domain gauges from one interval.
func ObserveSample(s domain.Sample) {
	SamplesTotal.Inc()
	DomainPower.WithLabelValues("cpu").Set(s.CPUmW)
	DomainPower.WithLabelValues("gpu").Set(s.GPUmW)
	DomainPower.WithLabelValues("ane").Set(s.ANEmW)
	DomainPower.WithLabelValues("dram").Set(s.DRAMmW)
	DomainPower.WithLabelValues("total").Set(s.Total())
	ClusterActive.WithLabelValues("efficiency").Set(s.EClusterActive)
	ClusterActive.WithLabelValues("performance").Set(s.PClusterActive)
	ClusterActive.WithLabelValues("gpu").Set(s.GPUActive)
}

// ObserveSummary publishes divergence and burst fraction for a component.
func ObserveSummary(component string, sum analysis.Summary) {
	Divergence.WithLabelValues(component).Set(sum.Divergence)
	BurstFraction.WithLabelValues(component).Set(sum.Occupancy.BurstFraction)
}

// ObserveFeedback records a finished feedback run.
func ObserveFeedback(r domain.FeedbackRun) {
	verdict := r.Verdict
	if verdict == "" {
		verdict = "none"
	}
	FeedbackRuns.WithLabelValues(r.State.String(), verdict).Inc()
	FeedbackPowerTax.WithLabelValues(r.Component).Set(r.Before.PowerTax)
	if r.After != nil {
		AttributionRatio.WithLabelValues(r.Component).Set(r.After.AR)
		FeedbackRealization.WithLabelValues(r.Component).Set(r.Realization)
	} else {
		AttributionRatio.WithLabelValues(r.Component).Set(r.Before.AR)
	}
	if !r.FinishedAt.IsZero() && !r.StartedAt.IsZero() {
		FeedbackDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}
}
