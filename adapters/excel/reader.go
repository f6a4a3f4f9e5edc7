package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string) *DataReader {
	return &DataReader{filePath: filePath, fileType: fileTypeOf(filePath)}
}

func fileTypeOf(path string) string {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return "csv"
	}
	return "xlsx"
}

// ReadData reads Sheet1 of an Excel file, or a CSV file, into a Table
func (r *DataReader) ReadData() (*Table, error) {
	log.Printf("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var (
		rows [][]string
		err  error
	)
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s file must have at least a header row and one data row", strings.ToUpper(r.fileType))
	}
	return processRows(rows), nil
}

// ReadMatrix reads the file and parses every column as a float feature,
// except labelColumn which becomes the label vector. An empty labelColumn
// reads features only.
func (r *DataReader) ReadMatrix(labelColumn string) (*NumericTable, error) {
	table, err := r.ReadData()
	if err != nil {
		return nil, err
	}
	return table.Numeric(labelColumn)
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	// Always use Sheet1
	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("failed to read Sheet1: %w", err)
	}
	log.Printf("[DataReader] Sheet1 read in %.2fms (%d rows)", float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	readStart := time.Now()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	log.Printf("[DataReader] CSV file read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// processRows trims cells and pads short rows; excelize drops trailing empty cells
func processRows(rows [][]string) *Table {
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(header)
	}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := make([]string, len(headers))
		for j := 0; j < len(headers) && j < len(row); j++ {
			cells[j] = strings.TrimSpace(row[j])
		}
		data = append(data, cells)
	}
	return &Table{Headers: headers, Rows: data}
}

// Numeric parses the table into features and optional labels
func (t *Table) Numeric(labelColumn string) (*NumericTable, error) {
	labelIdx := -1
	if labelColumn != "" {
		for i, h := range t.Headers {
			if strings.EqualFold(h, labelColumn) {
				labelIdx = i
				break
			}
		}
		if labelIdx < 0 {
			return nil, fmt.Errorf("label column %q not found in %v", labelColumn, t.Headers)
		}
	}

	var features []string
	var featureIdx []int
	for i, h := range t.Headers {
		if i != labelIdx {
			features = append(features, h)
			featureIdx = append(featureIdx, i)
		}
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("no feature columns")
	}

	out := &NumericTable{
		Features: features,
		X:        mat.NewDense(len(t.Rows), len(features), nil),
	}
	if labelIdx >= 0 {
		out.LabelColumn = t.Headers[labelIdx]
		out.Y = make([]float64, len(t.Rows))
	}

	for r, row := range t.Rows {
		for c, idx := range featureIdx {
			v, err := parseCell(row[idx], r, t.Headers[idx])
			if err != nil {
				return nil, err
			}
			out.X.Set(r, c, v)
		}
		if labelIdx >= 0 {
			v, err := parseCell(row[labelIdx], r, t.Headers[labelIdx])
			if err != nil {
				return nil, err
			}
			out.Y[r] = v
		}
	}
	return out, nil
}

func parseCell(cell string, row int, column string) (float64, error) {
	if cell == "" {
		return 0, fmt.Errorf("row %d column %q is empty", row+2, column)
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("row %d column %q: %q is not numeric", row+2, column, cell)
	}
	return v, nil
}
