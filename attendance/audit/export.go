package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	sheetChecks = "Checks"
	sheetFixes  = "Fixes"
)

// Export writes the audit results to an xlsx workbook.
func Export(results []CompanyAudit) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetChecks); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetFixes); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	checks := [][]any{{"Company", "Check", "Type", "Description", "Count", "Total Records", "Checked At"}}
	fixes := [][]any{{"Company", "Fixed", "Errors"}}
	for _, res := range results {
		if res.Error != "" {
			checks = append(checks, []any{res.Company, "", string(IssueError), res.Error, 1, 0, ""})
		}
		for _, report := range res.Reports {
			checked := report.LastChecked.UTC().Format(time.RFC3339)
			if len(report.Issues) == 0 {
				checks = append(checks, []any{res.Company, report.TableName, "ok", "", 0, report.TotalRecords, checked})
				continue
			}
			for _, issue := range report.Issues {
				checks = append(checks, []any{res.Company, report.TableName, string(issue.Type), issue.Description, issue.Count, report.TotalRecords, checked})
			}
		}
		if res.Fix != nil {
			fixes = append(fixes, []any{res.Company, res.Fix.Fixed, strings.Join(res.Fix.Errors, "\n")})
		}
	}

	if err := writeRows(f, sheetChecks, checks, bold); err != nil {
		return nil, err
	}
	if err := writeRows(f, sheetFixes, fixes, bold); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(sheetChecks, "A", "C", 16)
	_ = f.SetColWidth(sheetChecks, "D", "D", 56)
	_ = f.SetColWidth(sheetChecks, "E", "G", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, headerStyle)
}
