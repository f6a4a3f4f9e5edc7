package excel

import "gonum.org/v1/gonum/mat"

// Table is a sheet of raw cells below a header row
type Table struct {
	Headers []string   // Column headers
	Rows    [][]string // Data rows, one cell per header
}

// NumericTable is a Table parsed into a feature matrix and optional labels
type NumericTable struct {
	Features    []string   // Feature column headers, in matrix column order
	X           *mat.Dense // rows x features
	LabelColumn string     // Empty when no labels were requested
	Y           []float64  // Labels, nil when LabelColumn is empty
}
