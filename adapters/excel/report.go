package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	"gouncertain/domain/run"
)

// Sheet is one report sheet: a header row followed by data rows
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
}

// ScoresSheets lays out one run as a "scores" sheet (sample index and score,
// in pool order) and a "run" sheet with the manifest knobs
func ScoresSheets(m *run.Manifest, scores []float64) []Sheet {
	rows := make([][]any, len(scores))
	for i, s := range scores {
		rows[i] = []any{i, s}
	}
	k := m.Knobs
	return []Sheet{
		{Name: "scores", Headers: []string{"sample", "score"}, Rows: rows},
		{Name: "run", Headers: []string{"key", "value"}, Rows: [][]any{
			{"run_id", m.RunID.String()},
			{"fingerprint", m.Fingerprint.String()},
			{"strategy", string(k.Strategy)},
			{"estimator", k.Estimator},
			{"nn_runs", k.NNRuns},
			{"dropout_rate", k.DropoutRate},
			{"diag_eps", k.DiagEps},
			{"seed", strconv.FormatUint(k.Seed, 10)},
			{"pool_len", m.PoolLen},
			{"train_len", m.TrainLen},
			{"created_at", m.CreatedAt.Time().Format("2006-01-02T15:04:05Z07:00")},
		}},
	}
}

// WriteReport writes sheets to path. An .xlsx path gets one worksheet per
// sheet; a .csv path gets the first sheet only.
func WriteReport(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("report has no sheets")
	}
	if fileTypeOf(path) == "csv" {
		return writeCSV(path, sheets[0])
	}
	return writeXLSX(path, sheets)
}

func writeXLSX(path string, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return err
		}

		for c, h := range s.Headers {
			cell, _ := excelize.CoordinatesToCellName(c+1, 1)
			if err := f.SetCellValue(s.Name, cell, h); err != nil {
				return err
			}
		}
		for r, row := range s.Rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				if err := f.SetCellValue(s.Name, cell, v); err != nil {
					return err
				}
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	log.Printf("[Report] wrote %d sheets to %s", len(sheets), path)
	return nil
}

func writeCSV(path string, s Sheet) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(s.Headers); err != nil {
		return err
	}
	for _, row := range s.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		if err := w.Write(cells); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	log.Printf("[Report] wrote %d rows to %s", len(s.Rows), path)
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
