package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/powerlens/powerlens/internal/app/crm"
	"github.com/powerlens/powerlens/internal/domain"
)

func init() {
	templateAddCmd.Flags().StringVar(&templateSubject, "subject", "", "Subject template")
	templateAddCmd.Flags().StringVar(&templateBody, "body", "", "Body template")
	templateAddCmd.Flags().StringVar(&templateBodyFile, "body-file", "", "Read the body template from a file")
	templateRenderCmd.Flags().StringVar(&templateLead, "lead", "", "Render for this lead ID")
	templateRenderCmd.Flags().StringVar(&templateClient, "client", "", "Render for this client ID")

	templateCmd.AddCommand(templateAddCmd, templateListCmd, templateRmCmd, templateImportCmd, templateRenderCmd)
	rootCmd.AddCommand(templateCmd)
}

var (
	templateSubject  string
	templateBody     string
	templateBodyFile string
	templateLead     string
	templateClient   string
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"tpl"},
	Short:   "Manage email templates",
	Long: `Email templates use Go text/template syntax. Available fields:
{{.Name}}, {{.Email}}, {{.Company}}, {{.Source}}, {{.Status}}.`,
}

var templateAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add an email template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := templateBody
		if templateBodyFile != "" {
			raw, err := os.ReadFile(templateBodyFile)
			if err != nil {
				return err
			}
			body = string(raw)
		}
		if strings.TrimSpace(templateSubject) == "" || strings.TrimSpace(body) == "" {
			return fmt.Errorf("--subject and --body (or --body-file) are required")
		}

		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		t := domain.EmailTemplate{Name: args[0], Subject: templateSubject, Body: body}
		if err := svc.AddTemplate(t); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added template %s\n", t.Name)
		return nil
	},
}

var templateListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List email templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		list, err := svc.Templates()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No templates.")
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "NAME\tSUBJECT")
		for _, t := range list {
			fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Subject)
		}
		return w.Flush()
	},
}

var templateRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove an email template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		if err := svc.RemoveTemplate(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed template %s\n", args[0])
		return nil
	},
}

var templateImportCmd = &cobra.Command{
	Use:   "import FILE.yaml",
	Short: "Import templates from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		n, err := svc.ImportTemplates(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d template(s)\n", n)
		return nil
	},
}

var templateRenderCmd = &cobra.Command{
	Use:   "render NAME",
	Short: "Render a template for a lead or client",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (templateLead == "") == (templateClient == "") {
			return fmt.Errorf("exactly one of --lead or --client is required")
		}

		svc, done, err := openCRM()
		if err != nil {
			return err
		}
		defer done()

		var r *crm.Rendered
		if templateLead != "" {
			r, err = svc.RenderForLead(args[0], templateLead)
		} else {
			r, err = svc.RenderForClient(args[0], templateClient)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "To: %s\nSubject: %s\n\n%s\n", r.To, r.Subject, strings.TrimRight(r.Body, "\n"))
		return nil
	},
}
