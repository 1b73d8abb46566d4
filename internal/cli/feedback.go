package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/app/feedback"
	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/domain"
)

func init() {
	f := feedbackCmd.Flags()
	f.StringVarP(&feedbackComponent, "component", "c", "cpu", "Component to watch: cpu, gpu, ane, dram, total, process:<name>")
	f.IntSliceVarP(&feedbackPIDs, "pid", "p", nil, "Process IDs to move (repeatable)")
	f.StringVar(&feedbackProcess, "process", "", "Move every process with this name")
	f.StringVarP(&feedbackBaseline, "baseline", "b", "", "Stored baseline (default: quietest sample of the first window)")
	f.IntVarP(&feedbackWindow, "window", "n", 0, "Samples per measurement window (overrides config)")
	f.DurationVar(&feedbackSettle, "settle", -1, "Pause between fix and re-measure (overrides config)")
	f.BoolVar(&feedbackDryRun, "dry-run", false, "Log affinity commands instead of running them")
	f.BoolVar(&feedbackKeep, "keep", false, "Keep the fix even when it saved nothing")
	f.BoolVar(&feedbackJSON, "json", false, "Print the run as JSON")

	feedbackListCmd.Flags().IntVar(&feedbackLimit, "limit", 20, "Maximum runs to list")
	feedbackCmd.AddCommand(feedbackListCmd)
	rootCmd.AddCommand(feedbackCmd)
}

var (
	feedbackComponent string
	feedbackPIDs      []int
	feedbackProcess   string
	feedbackBaseline  string
	feedbackWindow    int
	feedbackSettle    time.Duration
	feedbackDryRun    bool
	feedbackKeep      bool
	feedbackJSON      bool
	feedbackLimit     int
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Detect bursty P-core work, move it to E-cores and verify the saving",
	Long: `Run one detect → fix → measure → verify loop (requires sudo):

  1. measure a window and check the component's burst fraction and power tax
  2. demote the target processes to efficiency cores
  3. wait for the system to settle and measure again
  4. compare attribution before and after

A fix that only relocated power, or saved nothing, is reverted unless --keep.`,
	Example: `  sudo powerlens feedback -c process:node
  sudo powerlens feedback -c cpu --pid 4242 --baseline idle --dry-run`,
	RunE: runFeedback,
}

var feedbackListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show past feedback runs",
	RunE:    runFeedbackList,
}

func runFeedback(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	if feedbackWindow > 0 {
		cfg.Feedback.WindowSamples = feedbackWindow
	}
	if feedbackSettle >= 0 {
		cfg.Feedback.Settle = feedbackSettle.String()
	}
	if feedbackDryRun {
		cfg.Feedback.DryRun = true
	}
	if feedbackKeep {
		cfg.Feedback.RevertIneffective = false
	}

	comp, err := domain.ParseComponent(feedbackComponent)
	if err != nil {
		return err
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Sampler.Check(); err != nil {
		return err
	}

	target := feedback.Target{Component: comp, PIDs: feedbackPIDs, ProcessName: feedbackProcess}
	if feedbackBaseline != "" {
		if target.Baseline, err = d.DB.GetBaseline(feedbackBaseline); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := d.Feedback.Run(ctx, target)
	out := cmd.OutOrStdout()
	if feedbackJSON {
		if perr := printJSON(out, run); perr != nil {
			return perr
		}
		return err
	}
	printFeedbackRun(out, run)
	return err
}

func runFeedbackList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListFeedbackRuns(feedbackLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No feedback runs yet.")
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tCOMPONENT\tSTATE\tVERDICT\tBURST\tTAX\tAR\tREVERTED\tSTARTED")
	for _, r := range runs {
		ar := fmt.Sprintf("%.2f", r.Before.AR)
		if r.After != nil {
			ar += fmt.Sprintf(" → %.2f", r.After.AR)
		}
		verdict := r.Verdict
		if verdict == "" {
			verdict = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\t%s\t%s\t%t\t%s\n",
			shortID(r.ID), r.Component, r.State, verdict,
			r.Before.BurstFraction*100, formatMW(r.Before.PowerTax), ar, r.Reverted,
			r.StartedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func printFeedbackRun(w io.Writer, r *domain.FeedbackRun) {
	fmt.Fprintf(w, "\nfeedback %s: %s is %s\n", shortID(r.ID), r.Component, r.State)

	t := newTable(w)
	fmt.Fprintf(t, "\tBEFORE")
	if r.After != nil {
		fmt.Fprintf(t, "\tAFTER")
	}
	fmt.Fprintln(t)
	row := func(label string, cell func(domain.WindowStats) string) {
		fmt.Fprintf(t, "%s\t%s", label, cell(r.Before))
		if r.After != nil {
			fmt.Fprintf(t, "\t%s", cell(*r.After))
		}
		fmt.Fprintln(t)
	}
	mw := func(get func(domain.WindowStats) float64) func(domain.WindowStats) string {
		return func(ws domain.WindowStats) string { return formatMW(get(ws)) }
	}
	pct := func(get func(domain.WindowStats) float64) func(domain.WindowStats) string {
		return func(ws domain.WindowStats) string { return fmt.Sprintf("%.1f%%", get(ws)*100) }
	}
	comp := mw(func(ws domain.WindowStats) float64 { return ws.ComponentMean })
	total := mw(func(ws domain.WindowStats) float64 { return ws.TotalMean })
	burst := pct(func(ws domain.WindowStats) float64 { return ws.BurstFraction })
	share := pct(func(ws domain.WindowStats) float64 { return ws.PerformanceShare })
	tax := mw(func(ws domain.WindowStats) float64 { return ws.PowerTax })
	ar := pct(func(ws domain.WindowStats) float64 { return ws.AR })
	row("component", comp)
	row("package", total)
	row("burst", burst)
	row("P-core share", share)
	row("power tax", tax)
	row("attribution", ar)
	t.Flush()

	if len(r.PIDs) > 0 {
		fmt.Fprintf(w, "pids: %v\n", r.PIDs)
	}
	if r.Verdict != "" {
		fmt.Fprintf(w, "verdict: %s (realization %.0f%%)", r.Verdict, r.Realization*100)
		if r.Reverted {
			fmt.Fprint(w, ", fix reverted")
		}
		fmt.Fprintln(w)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "error: %s\n", r.Error)
	}
}
