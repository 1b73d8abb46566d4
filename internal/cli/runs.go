package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/domain"
	"github.com/powerlens/powerlens/internal/infra/export"
)

func init() {
	runsCmd.Flags().StringVar(&runsKind, "kind", "", "Filter by kind: sample, baseline, feedback")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 50, "Maximum runs to list")
	runsCmd.AddCommand(runsRmCmd, runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

var (
	runsKind  string
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Long: `List sampling sessions recorded with --record, baseline measurements and
feedback windows. A run ID can be passed anywhere a sample file is accepted.`,
	RunE: runRuns,
}

var runsRmCmd = &cobra.Command{
	Use:   "rm RUN",
	Short: "Delete a recorded run and its samples",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsRm,
}

var runsExportCmd = &cobra.Command{
	Use:   "export RUN FILE",
	Short: "Write a run's samples to a .csv or .json file",
	Args:  cobra.ExactArgs(2),
	RunE:  runRunsExport,
}

func runRuns(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(domain.RunKind(runsKind), runsLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded. Run 'powerlens sample --record' to record one.")
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tKIND\tLABEL\tSAMPLES\tSTARTED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if !r.EndedAt.IsZero() {
			dur = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Kind,
			r.Label,
			r.SampleCount,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	return w.Flush()
}

func runRunsRm(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteRun(args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed run %s\n", args[0])
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.GetRun(args[0]); err != nil {
		return err
	}
	samples, err := db.RunSamples(args[0])
	if err != nil {
		return err
	}
	if err := export.Save(args[1], samples); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples to %s\n", len(samples), args[1])
	return nil
}
