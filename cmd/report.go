package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/factharbor/verify-cli/internal/model"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Export a verification run to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "report")
		}
		if run.Result == nil {
			return eris.Errorf("run %s has no result to export (status %s)", run.ID, run.Status)
		}

		out := reportOut
		if out == "" {
			out = fmt.Sprintf("verify-%s.xlsx", run.ID)
		}

		if err := writeReport(run.Result, out); err != nil {
			return err
		}

		fmt.Printf("wrote %s\n", out)
		return nil
	},
}

func writeReport(result *model.AnalysisResult, path string) error {
	f := xlsx.NewFile()

	verdicts, err := f.AddSheet("Verdicts")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}
	addHeaderRow(verdicts, "Claim", "Label", "Truth %", "Confidence", "Reasoning", "Cited Evidence")
	for i := range result.Verdicts {
		v := &result.Verdicts[i]
		row := verdicts.AddRow()
		row.AddCell().SetString(v.ClaimText)
		row.AddCell().SetString(string(v.Label()))
		row.AddCell().SetFloat(v.TruthPercentage)
		row.AddCell().SetFloat(v.Confidence)
		row.AddCell().SetString(v.Reasoning)
		row.AddCell().SetInt(len(v.SupportingEvidenceIDs))
	}

	ev, err := f.AddSheet("Evidence")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}
	addHeaderRow(ev, "Statement", "Category", "Direction", "Probative", "Authority", "Source URL")
	for _, item := range result.Evidence {
		row := ev.AddRow()
		row.AddCell().SetString(item.Statement)
		row.AddCell().SetString(string(item.Category))
		row.AddCell().SetString(string(item.Direction))
		row.AddCell().SetString(string(item.Probative))
		row.AddCell().SetString(string(item.Authority))
		row.AddCell().SetString(item.SourceURL)
	}

	cal, err := f.AddSheet("Calibration")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}
	addHeaderRow(cal, "Claim ID", "Final Confidence", "Adjustment", "Before", "After", "Reason")
	for claimID, c := range result.Calibrations {
		if len(c.Adjustments) == 0 {
			row := cal.AddRow()
			row.AddCell().SetString(claimID)
			row.AddCell().SetFloat(c.CalibratedConfidence)
			continue
		}
		for _, adj := range c.Adjustments {
			row := cal.AddRow()
			row.AddCell().SetString(claimID)
			row.AddCell().SetFloat(c.CalibratedConfidence)
			row.AddCell().SetString(adj.Type)
			row.AddCell().SetFloat(adj.Before)
			row.AddCell().SetFloat(adj.After)
			row.AddCell().SetString(adj.Reason)
		}
	}

	return eris.Wrap(f.Save(path), "report: save")
}

func addHeaderRow(sheet *xlsx.Sheet, headers ...string) {
	row := sheet.AddRow()
	for _, h := range headers {
		row.AddCell().SetString(h)
	}
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "output path (default verify-<run-id>.xlsx)")
	rootCmd.AddCommand(reportCmd)
}
