package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/metrics"
)

func init() {
	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeComponent, "component", "c", "cpu", "Component to analyze: cpu, gpu, ane, dram, total, process:<name>")
	f.StringVarP(&analyzeBaseline, "baseline", "b", "", "Stored baseline to attribute against (default: quietest sample)")
	f.BoolVar(&analyzeValues, "values", false, "Input is a plain list of numbers (use - for stdin)")
	f.BoolVar(&analyzeWatts, "watts", false, "With --values: numbers are watts, not milliwatts")
	f.BoolVar(&analyzeJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(analyzeCmd)
}

var (
	analyzeComponent string
	analyzeBaseline  string
	analyzeValues    bool
	analyzeWatts     bool
	analyzeJSON      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE|RUN...",
	Short: "Summarize recorded power: divergence, bursts, power tax, attribution",
	Args:  cobra.MinimumNArgs(1),
	Example: `  powerlens analyze gpu.csv -c gpu
  powerlens analyze 3f2a9c1e-... -c process:node --baseline idle
  echo "1.2 1.1 1.3 4.8" | powerlens analyze --values --watts -`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	th := cfg.Analysis.Thresholds
	out := cmd.OutOrStdout()

	if analyzeValues {
		return analyzeNumbers(cmd.InOrStdin(), out, args, th)
	}

	comp, err := domain.ParseComponent(analyzeComponent)
	if err != nil {
		return err
	}
	base, err := loadBaseline(analyzeBaseline)
	if err != nil {
		return err
	}

	for i, ref := range args {
		samples, err := loadSamples(cmd.Context(), ref)
		if err != nil {
			return err
		}
		report, err := analysis.BuildReport(samples, comp, base, th, cfg.Analysis.EfficiencyRatio)
		if err != nil {
			return fmt.Errorf("%s: %w", ref, err)
		}
		metrics.ObserveSummary(comp.String(), report.Summary)

		if analyzeJSON {
			if err := printJSON(out, report); err != nil {
				return err
			}
			continue
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		if len(args) > 1 {
			fmt.Fprintf(out, "── %s\n", ref)
		}
		printReport(out, report)
	}
	return nil
}

func analyzeNumbers(stdin io.Reader, out io.Writer, args []string, th analysis.Thresholds) error {
	var values []float64
	for _, ref := range args {
		r := stdin
		if ref != "-" {
			f, err := os.Open(ref)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		vs, err := readValues(r)
		if err != nil {
			return fmt.Errorf("%s: %w", ref, err)
		}
		values = append(values, vs...)
	}
	if analyzeWatts {
		for i := range values {
			values[i] *= 1000
		}
	}

	sum, err := analysis.Summarize(values, th)
	if err != nil {
		return err
	}
	if analyzeJSON {
		return printJSON(out, sum)
	}
	printSummary(out, "values", sum)
	return nil
}
