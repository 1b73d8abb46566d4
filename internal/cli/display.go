package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"golang.org/x/time/rate"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/domain"
)

// ─── Live Display ───────────────────────────────────────────────────────────
// One status line per redraw:
//   #42  cpu 1.23 W  mean 1.10 W  median 820 mW  div +34.1% significant  burst 28%

// liveDisplay renders a running summary of one component. Redraws are
// throttled so a fast sampler does not flood the terminal.
type liveDisplay struct {
	out       io.Writer
	component domain.Component
	acc       *analysis.Accumulator
	th        analysis.Thresholds
	limiter   *rate.Limiter
	tty       bool
}

func newLiveDisplay(out io.Writer, c domain.Component, window int, th analysis.Thresholds, every time.Duration) *liveDisplay {
	if every <= 0 {
		every = 500 * time.Millisecond
	}
	return &liveDisplay{
		out:       out,
		component: c,
		acc:       analysis.NewAccumulator(window),
		th:        th,
		limiter:   rate.NewLimiter(rate.Every(every), 1),
		tty:       !color.NoColor,
	}
}

// Observe records a sample and redraws when the limiter allows.
func (d *liveDisplay) Observe(s domain.Sample) {
	v := d.component.PowerOf(s)
	d.acc.Add(v)
	if d.limiter.Allow() {
		d.render(v)
	}
}

func (d *liveDisplay) render(current float64) {
	sum := d.acc.Snapshot(d.th)
	line := fmt.Sprintf("#%-4d %s %s  mean %s  median %s  div %+.1f%% %s  burst %.0f%%",
		sum.Count,
		d.component,
		color.New(color.Bold).Sprint(formatMW(current)),
		formatMW(sum.Mean),
		formatMW(sum.Median),
		sum.Divergence*100,
		classColor(sum.Class).Sprint(sum.Class),
		sum.Occupancy.BurstFraction*100,
	)
	if d.tty {
		fmt.Fprintf(d.out, "\r\033[K%s", line)
	} else {
		fmt.Fprintln(d.out, line)
	}
}

// Finish ends the status line and returns the final snapshot.
func (d *liveDisplay) Finish() analysis.Summary {
	if d.tty && d.acc.Count() > 0 {
		fmt.Fprintln(d.out)
	}
	return d.acc.Snapshot(d.th)
}

// ─── Rendering ──────────────────────────────────────────────────────────────

func classColor(c analysis.Class) *color.Color {
	switch c {
	case analysis.ClassNormal:
		return color.New(color.FgGreen)
	case analysis.ClassSlight:
		return color.New(color.FgCyan)
	case analysis.ClassModerate:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func verdictColor(v analysis.Verdict) *color.Color {
	switch v {
	case analysis.VerdictEliminated:
		return color.New(color.FgGreen, color.Bold)
	case analysis.VerdictPartial:
		return color.New(color.FgYellow)
	case analysis.VerdictNoEffect:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgRed)
	}
}

// printSummary writes the statistics block for one series.
func printSummary(w io.Writer, label string, s analysis.Summary) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s (%d samples)\n", cyan(label), s.Count)

	t := newTable(w)
	fmt.Fprintf(t, "  mean\t%s\n", formatMW(s.Mean))
	fmt.Fprintf(t, "  median\t%s\n", formatMW(s.Median))
	fmt.Fprintf(t, "  min / max\t%s / %s\n", formatMW(s.Min), formatMW(s.Max))
	fmt.Fprintf(t, "  stddev\t%s\n", formatMW(s.StdDev))
	fmt.Fprintf(t, "  p95\t%s\n", formatMW(s.P95))
	fmt.Fprintf(t, "  divergence\t%+.2f%% %s (%s skew)\n", s.Divergence*100, classColor(s.Class).Sprint(s.Class), s.Skew)
	fmt.Fprintf(t, "  two-state\tlow %s · high %s · burst %.1f%%\n",
		formatMW(s.Occupancy.Low), formatMW(s.Occupancy.High), s.Occupancy.BurstFraction*100)
	fmt.Fprintf(t, "  report\t%s: %s\n", s.Recommendation.Use, s.Recommendation.Reason)
	t.Flush()
}

// printReport writes a summary plus tax and attribution.
func printReport(w io.Writer, r analysis.Report) {
	printSummary(w, r.Component, r.Summary)

	t := newTable(w)
	fmt.Fprintf(t, "  package mean\t%s\n", formatMW(r.TotalMean))
	fmt.Fprintf(t, "  P-core share\t%.1f%%\n", r.PerformanceShare*100)
	fmt.Fprintf(t, "  power tax\t%s\n", formatMW(r.PowerTax))
	fmt.Fprintf(t, "  baseline\t%s of %s\n", formatMW(r.BaselineMW), formatMW(r.BaselineTotalMW))
	if a := r.Attribution; a != nil {
		fmt.Fprintf(t, "  attribution\t%.1f%% (%s of %s above baseline)\n",
			a.Ratio*100, formatMW(a.ComponentDelta), formatMW(a.TotalDelta))
	} else {
		fmt.Fprintf(t, "  attribution\t%s\n", color.HiBlackString("n/a (package power never rose above baseline)"))
	}
	t.Flush()
}

// printComparison writes a before/after verdict.
func printComparison(w io.Writer, c analysis.Comparison) {
	t := newTable(w)
	fmt.Fprintf(t, "\tBEFORE\tAFTER\n")
	fmt.Fprintf(t, "component Δ\t%s\t%s\n", formatMW(c.Before.ComponentDelta), formatMW(c.After.ComponentDelta))
	fmt.Fprintf(t, "package Δ\t%s\t%s\n", formatMW(c.Before.TotalDelta), formatMW(c.After.TotalDelta))
	fmt.Fprintf(t, "attribution\t%.1f%%\t%.1f%%\n", c.Before.Ratio*100, c.After.Ratio*100)
	t.Flush()

	fmt.Fprintf(w, "\ncomponent dropped %s, package dropped %s (realization %.0f%%)\n",
		formatMW(c.ComponentDrop), formatMW(c.TotalDrop), c.Realization*100)
	fmt.Fprintf(w, "verdict: %s\n", verdictColor(c.Verdict).Sprint(c.Verdict))
}
