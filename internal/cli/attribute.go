package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/analysis"
	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/domain"
)

func init() {
	f := attributeCmd.Flags()
	f.StringVarP(&attributeComponent, "component", "c", "cpu", "Component that was changed")
	f.StringVarP(&attributeBaseline, "baseline", "b", "", "Stored baseline (default: quietest sample of BEFORE)")
	f.Float64Var(&attributeTolerance, "tolerance", 0, "Noise floor in mW (default from config)")
	f.BoolVar(&attributeJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(attributeCmd)
}

var (
	attributeComponent string
	attributeBaseline  string
	attributeTolerance float64
	attributeJSON      bool
)

var attributeCmd = &cobra.Command{
	Use:   "attribute BEFORE AFTER",
	Short: "Decide whether a change saved power or just moved it",
	Long: `Compare two recordings (files or run IDs) taken before and after a change.

The component's share of above-baseline package power is computed for each.
If the component dropped but package power did not, the load was relocated
rather than eliminated.`,
	Args: cobra.ExactArgs(2),
	RunE: runAttribute,
}

func runAttribute(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	comp, err := domain.ParseComponent(attributeComponent)
	if err != nil {
		return err
	}
	stored, err := loadBaseline(attributeBaseline)
	if err != nil {
		return err
	}

	before, err := loadSamples(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	after, err := loadSamples(cmd.Context(), args[1])
	if err != nil {
		return err
	}

	tol := attributeTolerance
	if !cmd.Flags().Changed("tolerance") {
		tol = cfg.Feedback.ToleranceMW
	}
	cmp, err := compareWindows(before, after, comp, stored, tol)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if attributeJSON {
		return printJSON(out, cmp)
	}
	fmt.Fprintf(out, "%s: %s → %s\n\n", comp, args[0], args[1])
	printComparison(out, cmp)
	return nil
}

// compareWindows attributes both windows against one baseline. Without a
// stored baseline, the quietest interval of the before window is used for
// both so the two ratios share a reference.
func compareWindows(before, after []domain.Sample, c domain.Component, stored *domain.Baseline, tol float64) (analysis.Comparison, error) {
	if len(before) == 0 || len(after) == 0 {
		return analysis.Comparison{}, domain.ErrNoSamples
	}
	if !c.SeenIn(before) {
		return analysis.Comparison{}, fmt.Errorf("%w: %s not in the before window's task table", domain.ErrProcessNotFound, c.Process)
	}
	compBase, totalBase := analysis.BaselineFrom(before, c, stored)

	b, err := analysis.Attribute(
		analysis.Mean(c.Series(before)), analysis.Mean(domain.TotalSeries(before)), compBase, totalBase)
	if err != nil {
		return analysis.Comparison{}, fmt.Errorf("before window: %w", err)
	}
	// The after window may legitimately sit at baseline; keep its deltas.
	a, _ := analysis.Attribute(
		analysis.Mean(c.Series(after)), analysis.Mean(domain.TotalSeries(after)), compBase, totalBase)

	return analysis.CompareAttribution(b, a, tol), nil
}
