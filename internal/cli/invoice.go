package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/app/crm"
	"github.com/powerlens/powerlens/internal/domain"
)

func init() {
	invoiceCreateCmd.Flags().StringArrayVarP(&invoiceItems, "item", "i", nil, `Line item "description:qty:price" (repeatable)`)
	invoiceCreateCmd.Flags().StringVar(&invoiceCurrency, "currency", "", "Currency code (default from config)")
	invoiceListCmd.Flags().StringVar(&invoiceClient, "client", "", "Filter by client ID")
	invoiceListCmd.Flags().StringVar(&invoiceStatus, "status", "", "Filter by status: draft, sent, paid")

	invoiceCmd.AddCommand(invoiceCreateCmd, invoiceListCmd, invoiceShowCmd,
		invoiceSendCmd, invoicePayCmd, invoiceOverdueCmd)
	rootCmd.AddCommand(invoiceCmd)
}

var (
	invoiceItems    []string
	invoiceCurrency string
	invoiceClient   string
	invoiceStatus   string
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Draft, send and track invoices",
}

var invoiceCreateCmd = &cobra.Command{
	Use:     "create CLIENT",
	Short:   "Draft an invoice for a client",
	Args:    cobra.ExactArgs(1),
	Example: `  powerlens invoice create 7c1e... -i "Power audit:1:1200" -i "Follow-up call:2:150"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items := make([]domain.LineItem, 0, len(invoiceItems))
		for _, raw := range invoiceItems {
			it, err := parseLineItem(raw)
			if err != nil {
				return err
			}
			items = append(items, it)
		}

		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		inv, err := svc.CreateInvoice(args[0], items, invoiceCurrency)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Drafted invoice #%d (%s) for %s, due %s\n",
			inv.Number, inv.ID, crm.FormatCents(inv.TotalCents(), inv.Currency), inv.DueAt.Format("2006-01-02"))
		return nil
	},
}

var invoiceListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		invoices, err := svc.Invoices(invoiceClient, domain.InvoiceStatus(invoiceStatus))
		if err != nil {
			return err
		}
		if len(invoices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No invoices.")
			return nil
		}
		return printInvoices(cmd.OutOrStdout(), invoices)
	},
}

var invoiceShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show an invoice with its line items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		inv, err := svc.Invoice(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Invoice #%d  %s\n", inv.Number, statusLabel(*inv))
		fmt.Fprintf(out, "Client: %s\nIssued: %s\nDue:    %s\n\n",
			inv.ClientID, inv.IssuedAt.Format("2006-01-02"), inv.DueAt.Format("2006-01-02"))

		w := newTable(out)
		fmt.Fprintln(w, "DESCRIPTION\tQTY\tUNIT\tAMOUNT")
		for _, it := range inv.Items {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", it.Description, it.Quantity,
				crm.FormatCents(it.UnitCents, inv.Currency), crm.FormatCents(it.Cents(), inv.Currency))
		}
		fmt.Fprintf(w, "\t\tTOTAL\t%s\n", crm.FormatCents(inv.TotalCents(), inv.Currency))
		return w.Flush()
	},
}

var invoiceSendCmd = &cobra.Command{
	Use:   "send ID",
	Short: "Mark an invoice as sent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		if err := svc.MarkSent(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Invoice %s marked sent\n", args[0])
		return nil
	},
}

var invoicePayCmd = &cobra.Command{
	Use:   "pay ID",
	Short: "Record payment of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		if err := svc.MarkPaid(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Invoice %s marked paid\n", args[0])
		return nil
	},
}

var invoiceOverdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "List unpaid invoices past their due date",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		invoices, err := svc.Overdue()
		if err != nil {
			return err
		}
		if len(invoices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Nothing overdue."))
			return nil
		}
		return printInvoices(cmd.OutOrStdout(), invoices)
	},
}

func printInvoices(out io.Writer, invoices []domain.Invoice) error {
	w := newTable(out)
	fmt.Fprintln(w, "NUMBER\tID\tCLIENT\tSTATUS\tTOTAL\tDUE")
	for _, inv := range invoices {
		fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%s\t%s\n",
			inv.Number, shortID(inv.ID), shortID(inv.ClientID), statusLabel(inv),
			crm.FormatCents(inv.TotalCents(), inv.Currency), inv.DueAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func statusLabel(inv domain.Invoice) string {
	switch {
	case inv.Status == domain.InvoicePaid:
		return color.GreenString(string(inv.Status))
	case inv.IsOverdue(timeNow()):
		return color.RedString("overdue")
	case inv.Status == domain.InvoiceSent:
		return color.YellowString(string(inv.Status))
	default:
		return string(inv.Status)
	}
}
