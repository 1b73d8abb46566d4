package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/daemon"
	"github.com/powerlens/powerlens/internal/health"
	"github.com/powerlens/powerlens/internal/infra/powermetrics"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the database, data directory and powermetrics access",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := daemon.LoadConfig()
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		checker := health.NewChecker(db, daemon.Home(), powermetrics.NewSampler(cfg.Powermetrics()))
		statuses := checker.RunOnce(cmd.Context())

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
		for _, s := range statuses {
			state := color.GreenString("ok")
			if !s.Healthy {
				state = color.RedString("fail")
				if s.Optional {
					state = color.YellowString("warn")
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, state, s.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if !checker.IsHealthy() {
			return fmt.Errorf("one or more required checks failed")
		}
		return nil
	},
}
