package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/powermetrics"
	"github.com/powerlens/powerlens/internal/infra/resource"
)

func init() {
	baselineRecordCmd.Flags().IntVarP(&baselineCount, "count", "n", 30, "Samples to measure")
	baselineRecordCmd.Flags().StringVar(&baselineInput, "input", "", "Replay captured powermetrics output instead of sampling")
	baselineRecordCmd.Flags().BoolVar(&baselineStrict, "strict", false, "Refuse to record when the machine is not quiet")

	baselineCmd.PersistentFlags().StringVarP(&baselineLabel, "label", "l", "default", "Baseline name")
	baselineCmd.AddCommand(baselineRecordCmd, baselineImportCmd, baselineListCmd)
	rootCmd.AddCommand(baselineCmd)
}

var (
	baselineLabel  string
	baselineCount  int
	baselineInput  string
	baselineStrict bool
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Record and list idle baselines",
	Long: `A baseline is the idle draw of each power domain. Attribution subtracts it
so that only the power a workload adds is compared.`,
}

var baselineRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Measure an idle baseline now",
	RunE:  runBaselineRecord,
}

var baselineImportCmd = &cobra.Command{
	Use:   "import FILE|RUN",
	Short: "Store a baseline computed from a recording",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineImport,
}

var baselineListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored baselines",
	RunE:    runBaselineList,
}

// baselineOf averages each domain over an idle window.
func baselineOf(samples []domain.Sample, label, runID string, now time.Time) domain.Baseline {
	return domain.Baseline{
		RunID:     runID,
		Label:     label,
		CPUmW:     analysis.Mean(domain.Component{Kind: domain.ComponentCPU}.Series(samples)),
		GPUmW:     analysis.Mean(domain.Component{Kind: domain.ComponentGPU}.Series(samples)),
		ANEmW:     analysis.Mean(domain.Component{Kind: domain.ComponentANE}.Series(samples)),
		DRAMmW:    analysis.Mean(domain.Component{Kind: domain.ComponentDRAM}.Series(samples)),
		TotalmW:   analysis.Mean(domain.TotalSeries(samples)),
		CreatedAt: now,
	}
}

func runBaselineRecord(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	if baselineCount <= 0 {
		return fmt.Errorf("--count must be positive")
	}
	sampler := powermetrics.NewSampler(cfg.Powermetrics())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if baselineInput == "" {
		if err := checkQuiet(ctx, cmd, resource.NewProbe()); err != nil {
			return err
		}
	}

	var stream *powermetrics.Stream
	if baselineInput != "" {
		f, err := os.Open(baselineInput)
		if err != nil {
			return err
		}
		defer f.Close()
		stream = sampler.StreamReader(ctx, f)
	} else if stream, err = sampler.Stream(ctx); err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := newRunRecorder(db, domain.RunBaseline, baselineLabel)
	if err != nil {
		return err
	}
	rec.keep = true

	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, "Measuring idle baseline. Keep the machine quiet.")
	bar := newProgressBar(out, baselineLabel, baselineCount)
	done := 0
	_, err = pipe(ctx, stream, baselineCount, func(domain.Sample) {
		done++
		bar.Update(done)
	}, rec)
	cancel()
	bar.Done()
	if err != nil {
		return err
	}
	if len(rec.samples) == 0 {
		return domain.ErrNoSamples
	}

	b := baselineOf(rec.samples, baselineLabel, rec.run.ID, time.Now())
	if err := db.SaveBaseline(b); err != nil {
		return err
	}
	printBaseline(cmd, b, len(rec.samples))
	return nil
}

// checkQuiet warns, or fails with --strict, when host conditions would skew
// an idle baseline.
func checkQuiet(ctx context.Context, cmd *cobra.Command, probe *resource.Probe) error {
	cond, err := probe.Read(ctx, time.Second)
	if err != nil {
		log.Printf("[baseline] host check skipped: %v", err)
		return nil
	}
	warnings := cond.Warnings(resource.DefaultLimits())
	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.YellowString("warning:"), w)
	}
	if baselineStrict && len(warnings) > 0 {
		return fmt.Errorf("machine is not quiet enough for a baseline")
	}
	return nil
}

func runBaselineImport(cmd *cobra.Command, args []string) error {
	samples, err := loadSamples(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runID := ""
	if _, err := db.GetRun(args[0]); err == nil {
		runID = args[0]
	}
	b := baselineOf(samples, baselineLabel, runID, time.Now())
	if err := db.SaveBaseline(b); err != nil {
		return err
	}
	printBaseline(cmd, b, len(samples))
	return nil
}

func runBaselineList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.ListBaselines()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No baselines. Run 'powerlens baseline record' on an idle machine.")
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "LABEL\tCPU\tGPU\tANE\tDRAM\tPACKAGE\tCREATED")
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.Label,
			formatMW(b.CPUmW), formatMW(b.GPUmW), formatMW(b.ANEmW), formatMW(b.DRAMmW), formatMW(b.TotalmW),
			b.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func printBaseline(cmd *cobra.Command, b domain.Baseline, n int) {
	fmt.Fprintf(cmd.OutOrStdout(), "Saved baseline %q from %d samples: cpu %s, gpu %s, ane %s, package %s\n",
		b.Label, n, formatMW(b.CPUmW), formatMW(b.GPUmW), formatMW(b.ANEmW), formatMW(b.TotalmW))
}
