package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/app/crm"
	"github.com/powerlens/powerlens/internal/domain"
)

func init() {
	leadAddCmd.Flags().StringVar(&leadEmail, "email", "", "Contact email")
	leadAddCmd.Flags().StringVar(&leadSource, "source", "", "Where the lead came from")
	leadAddCmd.Flags().StringVar(&leadNote, "note", "", "Initial note")
	leadListCmd.Flags().StringVar(&leadStatus, "status", "", "Filter by status: new, contacted, qualified, won, lost")
	leadAdvanceCmd.Flags().StringVar(&leadNote, "note", "", "Note to append")

	leadCmd.AddCommand(leadAddCmd, leadListCmd, leadAdvanceCmd)
	rootCmd.AddCommand(leadCmd)
}

var (
	leadEmail  string
	leadSource string
	leadNote   string
	leadStatus string
)

var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Track leads through new → contacted → qualified → won|lost",
}

var leadAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		l, err := svc.AddLead(args[0], leadEmail, leadSource, leadNote)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added lead %s (%s)\n", l.Name, l.ID)
		return nil
	},
}

var leadListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		var status domain.LeadStatus
		if leadStatus != "" {
			var err error
			if status, err = crm.ParseLeadStatus(leadStatus); err != nil {
				return err
			}
		}

		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		leads, err := svc.Leads(status)
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No leads.")
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tSOURCE\tSTATUS\tUPDATED")
		for _, l := range leads {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				l.ID, l.Name, l.Email, l.Source, l.Status, l.UpdatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var leadAdvanceCmd = &cobra.Command{
	Use:   "advance ID STATUS",
	Short: "Move a lead to its next status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := crm.ParseLeadStatus(args[1])
		if err != nil {
			return err
		}

		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		l, err := svc.AdvanceLead(args[0], next, leadNote)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Lead %s is now %s\n", l.Name, l.Status)
		return nil
	},
}
