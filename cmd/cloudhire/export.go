package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/cloudhire/internal/model"
	"github.com/pavelanni/cloudhire/internal/store"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submissions and reports as JSON or an Excel workbook",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("format", "json", "Output format (json, xlsx)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addDBFlag(cmd)
	addLogFlags(cmd)
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := setup(cmd)

	format := v.GetString("format")
	if format != "json" && format != "xlsx" {
		return fmt.Errorf("unknown export format %q", format)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAll()
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == "xlsx" {
		return writeWorkbook(w, results)
	}
	return writeJSON(w, model.SubmissionExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(results),
		Results:    results,
	})
}

func writeJSON(w io.Writer, export model.SubmissionExport) error {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

var workbookHeader = []any{
	"Submission", "Name", "Email", "Position", "Status", "Started", "Submitted",
	"Elapsed (min)", "Completion %", "Time Efficiency", "Overall Score", "Recommendation",
	"Hiring Recommendation", "Grader",
}

// writeWorkbook writes one row per submission to a single "Results" sheet.
func writeWorkbook(w io.Writer, results []model.CandidateResult) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &workbookHeader); err != nil {
		return err
	}
	for i, r := range results {
		row := []any{
			r.SubmissionID, r.Name, r.Email, r.Position, string(r.Status),
			r.StartedAt.Format(time.DateTime), "",
			r.ElapsedSeconds / 60, "", "", "", "", "", "",
		}
		if r.SubmittedAt != nil {
			row[6] = r.SubmittedAt.Format(time.DateTime)
		}
		if a := r.Assessment; a != nil {
			row[8] = a.CompletionRate
			row[9] = string(a.TimeEfficiency)
			row[10] = a.OverallScore
			row[11] = string(a.Recommendation.Tier)
		}
		if g := r.Grading; g != nil {
			row[12] = string(g.Summary.HiringRecommendation)
			row[13] = g.Grader
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
