package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"axiapac.com/workforce/attendance/app"
	"axiapac.com/workforce/attendance/audit"
	"github.com/spf13/cobra"
)

var (
	auditCompanies []string
	auditFix       bool
	auditOutput    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check (and optionally repair) tenant data consistency",
	Long: `Runs the consistency checks against the given companies, or every active
company when none is given. A full run posts its summary to Slack and mails
the workbook when those are configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var results []audit.CompanyAudit
		if len(auditCompanies) == 0 {
			results, err = a.Runner.AuditAll(ctx, auditFix)
			if err != nil {
				return err
			}
		} else {
			for _, code := range auditCompanies {
				results = append(results, a.Runner.AuditCompany(ctx, code, auditFix))
			}
		}

		printAudit(results)

		if auditOutput != "" {
			data, err := audit.Export(results)
			if err != nil {
				return err
			}
			if err := os.WriteFile(auditOutput, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", auditOutput, err)
			}
			fmt.Printf("\nWorkbook written to %s\n", auditOutput)
		}
		return nil
	},
}

func printAudit(results []audit.CompanyAudit) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "COMPANY\tCHECK\tTYPE\tISSUE\tCOUNT")
	fmt.Fprintln(w, "-------\t-----\t----\t-----\t-----")
	for _, res := range results {
		if res.Error != "" {
			fmt.Fprintf(w, "%s\t-\terror\t%s\t-\n", res.Company, res.Error)
			continue
		}
		for _, rep := range res.Reports {
			if len(rep.Issues) == 0 {
				fmt.Fprintf(w, "%s\t%s\tok\t-\t0\n", res.Company, rep.TableName)
			}
			for _, issue := range rep.Issues {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", res.Company, rep.TableName, issue.Type, issue.Description, issue.Count)
			}
		}
	}
	w.Flush()
	fmt.Printf("\n%s", audit.Summarize(results))
}

func init() {
	auditCmd.Flags().StringSliceVarP(&auditCompanies, "company", "c", nil, "company codes to audit (default all active companies)")
	auditCmd.Flags().BoolVar(&auditFix, "fix", false, "repair what can be repaired before checking")
	auditCmd.Flags().StringVarP(&auditOutput, "output", "o", "", "write the results to an xlsx workbook")
	rootCmd.AddCommand(auditCmd)
}
