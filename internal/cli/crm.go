package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	crmCmd.AddCommand(crmExportCmd, crmImportCmd)
	rootCmd.AddCommand(crmCmd)
}

var crmCmd = &cobra.Command{
	Use:   "crm",
	Short: "Export or import all client, invoice, lead and template records",
}

var crmExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write every CRM record as JSON (stdout when FILE is omitted or -)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		var w io.Writer = cmd.OutOrStdout()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return svc.Export(w)
	},
}

var crmImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge a JSON export into the local database (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		st, err := svc.Import(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d clients, %d invoices, %d leads, %d templates\n",
			st.Clients, st.Invoices, st.Leads, st.Templates)
		return nil
	},
}
