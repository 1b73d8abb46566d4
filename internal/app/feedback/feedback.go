// Package feedback runs the detect → fix → measure → verify loop.
//
// A run measures a window of samples, and when the target component is both
// bursty and paying a meaningful power tax for running on performance cores,
// it demotes the target's processes to efficiency cores, waits for the system
// to settle, measures again and compares attribution before and after:
//
//	DETECTING → FIXING → MEASURING → VERIFIED
//	     └──────────→ SKIPPED             (thresholds not met)
//	any state ──────→ FAILED              (measurement or fix error)
//
// The comparison separates real savings (total power fell with the component)
// from relocation (the component fell but total power did not).
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/affinity"
	"github.com/powerlens/powerlens/internal/infra/metrics"
	"github.com/powerlens/powerlens/internal/observability"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config tunes detection thresholds and measurement windows.
type Config struct {
	// WindowSamples is the number of intervals measured before and after.
	WindowSamples int `toml:"window_samples"`

	// Settle is the pause between applying the fix and re-measuring.
	Settle time.Duration `toml:"-"`

	// BurstThreshold is the minimum burst fraction that triggers a fix.
	BurstThreshold float64 `toml:"burst_threshold"`

	// TaxThresholdMW is the minimum power tax in mW that triggers a fix.
	TaxThresholdMW float64 `toml:"tax_threshold_mw"`

	// ToleranceMW is the noise floor for the before/after comparison.
	ToleranceMW float64 `toml:"tolerance_mw"`

	// EfficiencyRatio is the E-core/P-core power ratio used for the tax.
	EfficiencyRatio float64 `toml:"efficiency_ratio"`

	// RevertIneffective undoes the fix when it saved nothing system-wide.
	RevertIneffective bool `toml:"revert_ineffective"`

	Thresholds analysis.Thresholds `toml:"-"`

	// Now and Sleep are injectable for testing.
	Now   func() time.Time                                 `toml:"-"`
	Sleep func(ctx context.Context, d time.Duration) error `toml:"-"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WindowSamples:     10,
		Settle:            5 * time.Second,
		BurstThreshold:    0.2,
		TaxThresholdMW:    50,
		ToleranceMW:       25,
		EfficiencyRatio:   analysis.DefaultEfficiencyRatio,
		RevertIneffective: true,
		Thresholds:        analysis.DefaultThresholds(),
		Now:               time.Now,
		Sleep:             sleepCtx,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowSamples <= 0 {
		c.WindowSamples = d.WindowSamples
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	if c.EfficiencyRatio <= 0 {
		c.EfficiencyRatio = d.EfficiencyRatio
	}
	if c.Thresholds == (analysis.Thresholds{}) {
		c.Thresholds = d.Thresholds
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	if c.Sleep == nil {
		c.Sleep = d.Sleep
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ─── Dependencies ───────────────────────────────────────────────────────────

// Measurer collects n consecutive samples.
type Measurer interface {
	Measure(ctx context.Context, n int) ([]domain.Sample, error)
}

// Store persists feedback runs. The loop saves on every state change.
type Store interface {
	SaveFeedbackRun(run domain.FeedbackRun) error
}

// Target selects what the loop measures and which processes it moves.
type Target struct {
	Component domain.Component

	// PIDs to fix. When empty, processes named ProcessName (or the
	// component's process name) are looked up.
	PIDs        []int
	ProcessName string

	// Baseline, when set, is subtracted instead of the window minimum.
	Baseline *domain.Baseline
}

func (t Target) processName() string {
	if t.ProcessName != "" {
		return t.ProcessName
	}
	if t.Component.Kind == domain.ComponentProcess {
		return t.Component.Process
	}
	return ""
}

// ─── Loop ───────────────────────────────────────────────────────────────────

// Loop drives feedback runs. Safe for sequential reuse; runs are not
// expected to overlap because each one moves processes between clusters.
type Loop struct {
	cfg      Config
	measurer Measurer
	fixer    affinity.Fixer
	store    Store

	findPIDs func(ctx context.Context, name string) ([]int, error)
	newID    func() string
}

// New creates a loop. store may be nil.
func New(cfg Config, m Measurer, f affinity.Fixer, store Store) *Loop {
	return &Loop{
		cfg:      cfg.withDefaults(),
		measurer: m,
		fixer:    f,
		store:    store,
		findPIDs: affinity.FindPIDs,
		newID:    uuid.NewString,
	}
}

// Config returns the effective configuration.
func (l *Loop) Config() Config {
	return l.cfg
}

// baseline is the pair of values subtracted before attribution.
type baseline struct {
	component float64
	total     float64
}

// Run executes one full loop for target. The returned run is always non-nil
// and already persisted; err is set when the run ends FAILED.
func (l *Loop) Run(ctx context.Context, target Target) (*domain.FeedbackRun, error) {
	run := &domain.FeedbackRun{
		ID:        l.newID(),
		Component: target.Component.String(),
		State:     domain.FeedbackDetecting,
		StartedAt: l.cfg.Now(),
	}
	l.save(run)
	log.Printf("[feedback] %s: detecting %s over %d samples", shortID(run.ID), run.Component, l.cfg.WindowSamples)

	// ── Detect ──
	before, err := l.measurer.Measure(ctx, l.cfg.WindowSamples)
	if err != nil {
		return l.fail(run, fmt.Errorf("measure before: %w", err))
	}
	base := l.baselineFor(target, before)
	beforeStats, beforeAttr := l.window(before, target.Component, base)
	run.Before = beforeStats
	observability.Debugf("[feedback] %s: before component %.0f mW, total %.0f mW, burst %.2f, tax %.0f mW",
		shortID(run.ID), beforeStats.ComponentMean, beforeStats.TotalMean, beforeStats.BurstFraction, beforeStats.PowerTax)

	if beforeStats.BurstFraction < l.cfg.BurstThreshold || beforeStats.PowerTax < l.cfg.TaxThresholdMW {
		log.Printf("[feedback] %s: skipped (burst %.2f < %.2f or tax %.0f mW < %.0f mW)",
			shortID(run.ID), beforeStats.BurstFraction, l.cfg.BurstThreshold, beforeStats.PowerTax, l.cfg.TaxThresholdMW)
		return l.finish(run, domain.FeedbackSkipped), nil
	}

	// ── Fix ──
	run.State = domain.FeedbackFixing
	pids, err := l.resolvePIDs(ctx, target)
	if err != nil {
		return l.fail(run, err)
	}
	run.PIDs = pids
	l.save(run)

	applied := make([]int, 0, len(pids))
	for _, pid := range pids {
		if err := l.fixer.Apply(ctx, pid); err != nil {
			l.revert(ctx, applied)
			return l.fail(run, fmt.Errorf("apply fix to pid %d: %w", pid, err))
		}
		applied = append(applied, pid)
	}
	log.Printf("[feedback] %s: moved %d process(es) to efficiency cores via %s", shortID(run.ID), len(applied), l.fixer.Name())

	// ── Measure ──
	run.State = domain.FeedbackMeasuring
	l.save(run)
	if err := l.cfg.Sleep(ctx, l.cfg.Settle); err != nil {
		l.revert(ctx, applied)
		return l.fail(run, err)
	}
	after, err := l.measurer.Measure(ctx, l.cfg.WindowSamples)
	if err != nil {
		l.revert(ctx, applied)
		return l.fail(run, fmt.Errorf("measure after: %w", err))
	}
	afterStats, afterAttr := l.window(after, target.Component, base)
	run.After = &afterStats

	// ── Verify ──
	cmp := analysis.CompareAttribution(beforeAttr, afterAttr, l.cfg.ToleranceMW)
	run.Verdict = cmp.Verdict.String()
	run.Realization = cmp.Realization
	log.Printf("[feedback] %s: %s (component drop %.0f mW, total drop %.0f mW, AR %.2f → %.2f)",
		shortID(run.ID), run.Verdict, cmp.ComponentDrop, cmp.TotalDrop, beforeStats.AR, afterStats.AR)

	if l.cfg.RevertIneffective && ineffective(cmp.Verdict) {
		run.Reverted = l.revert(ctx, applied) == nil
	}
	return l.finish(run, domain.FeedbackVerified), nil
}

func ineffective(v analysis.Verdict) bool {
	return v == analysis.VerdictNoEffect || v == analysis.VerdictRelocated || v == analysis.VerdictRegressed
}

func (l *Loop) resolvePIDs(ctx context.Context, target Target) ([]int, error) {
	if len(target.PIDs) > 0 {
		return target.PIDs, nil
	}
	name := target.processName()
	if name == "" {
		return nil, fmt.Errorf("%w: no pid or process name for %s", domain.ErrProcessNotFound, target.Component)
	}
	return l.findPIDs(ctx, name)
}

func (l *Loop) baselineFor(target Target, samples []domain.Sample) baseline {
	comp, total := analysis.BaselineFrom(samples, target.Component, target.Baseline)
	return baseline{component: comp, total: total}
}

// window reduces a measurement window to the statistics the loop decides on.
func (l *Loop) window(samples []domain.Sample, c domain.Component, base baseline) (domain.WindowStats, analysis.Attribution) {
	series := c.Series(samples)
	totals := domain.TotalSeries(samples)

	ws := domain.WindowStats{
		ComponentMean:    analysis.Mean(series),
		TotalMean:        analysis.Mean(totals),
		BurstFraction:    analysis.BurstFraction(series, l.cfg.Thresholds),
		PerformanceShare: analysis.ClusterShare(samples),
		Samples:          len(samples),
	}
	ws.PowerTax = analysis.PowerTax(ws.ComponentMean, ws.PerformanceShare, l.cfg.EfficiencyRatio)

	// A window with no rise above baseline keeps AR at zero; the deltas are
	// still what the comparison needs.
	attr, _ := analysis.Attribute(ws.ComponentMean, ws.TotalMean, base.component, base.total)
	ws.AR = attr.Ratio
	return ws, attr
}

func (l *Loop) revert(ctx context.Context, pids []int) error {
	var errs []error
	for _, pid := range pids {
		if err := l.fixer.Revert(context.WithoutCancel(ctx), pid); err != nil {
			log.Printf("[feedback] revert pid %d: %v", pid, err)
			errs = append(errs, err)
		}
	}
	if len(pids) > 0 && len(errs) == 0 {
		log.Printf("[feedback] reverted %d process(es)", len(pids))
	}
	return errors.Join(errs...)
}

func (l *Loop) fail(run *domain.FeedbackRun, err error) (*domain.FeedbackRun, error) {
	run.Error = err.Error()
	log.Printf("[feedback] %s: failed in %s: %v", shortID(run.ID), run.State, err)
	return l.finish(run, domain.FeedbackFailed), err
}

func (l *Loop) finish(run *domain.FeedbackRun, state domain.FeedbackState) *domain.FeedbackRun {
	run.State = state
	run.FinishedAt = l.cfg.Now()
	l.save(run)
	metrics.ObserveFeedback(*run)
	return run
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (l *Loop) save(run *domain.FeedbackRun) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveFeedbackRun(*run); err != nil {
		log.Printf("[feedback] persist run %s: %v", run.ID, err)
	}
}
