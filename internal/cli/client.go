package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/app/crm"
	"github.com/powerlens/powerlens/internal/domain"
)

func init() {
	clientAddCmd.Flags().StringVar(&clientEmail, "email", "", "Contact email")
	clientAddCmd.Flags().StringVar(&clientCompany, "company", "", "Company name")
	clientCmd.AddCommand(clientAddCmd, clientListCmd, clientShowCmd, clientRmCmd)
	rootCmd.AddCommand(clientCmd)
}

var (
	clientEmail   string
	clientCompany string
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage clients",
}

var clientAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		c, err := svc.AddClient(args[0], clientEmail, clientCompany)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added client %s (%s)\n", c.Name, c.ID)
		return nil
	},
}

var clientListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		clients, err := svc.Clients()
		if err != nil {
			return err
		}
		if len(clients) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No clients. Run 'powerlens client add NAME' to add one.")
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tCOMPANY\tADDED")
		for _, c := range clients {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				c.ID, c.Name, c.Email, c.Company, c.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var clientShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a client and their invoices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		c, err := svc.Client(args[0])
		if err != nil {
			return err
		}
		invoices, err := svc.Invoices(c.ID, "")
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s <%s>\n", c.Name, c.Email)
		if c.Company != "" {
			fmt.Fprintf(out, "Company: %s\n", c.Company)
		}
		fmt.Fprintf(out, "Added:   %s\n", c.CreatedAt.Format("2006-01-02"))

		var outstanding int64
		currency := ""
		for _, inv := range invoices {
			if inv.Status != domain.InvoicePaid {
				outstanding += inv.TotalCents()
				currency = inv.Currency
			}
		}
		fmt.Fprintf(out, "Invoices: %d", len(invoices))
		if outstanding > 0 {
			fmt.Fprintf(out, " (%s outstanding)", crm.FormatCents(outstanding, currency))
		}
		fmt.Fprintln(out)
		return nil
	},
}

var clientRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Remove a client without invoices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		if err := svc.RemoveClient(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed client %s\n", args[0])
		return nil
	},
}
