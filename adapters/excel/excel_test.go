package excel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gouncertain/domain/mask"
	"gouncertain/domain/run"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadMatrixFromCSV(t *testing.T) {
	path := writeFile(t, "train.csv", "x1, x2 ,y\n1,2,3\n4,5.5,-6\n")

	table, err := NewDataReader(path).ReadMatrix("Y")
	require.NoError(t, err)

	assert.Equal(t, []string{"x1", "x2"}, table.Features)
	assert.Equal(t, "y", table.LabelColumn)
	assert.Equal(t, []float64{3, -6}, table.Y)
	r, c := table.X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 5.5, table.X.At(1, 1))
}

func TestReadMatrixErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		label   string
	}{
		{"header only", "x1,x2\n", ""},
		{"non numeric", "x1,x2\n1,abc\n", ""},
		{"missing label column", "x1,x2\n1,2\n", "y"},
		{"empty cell", "x1,x2\n1,\n", ""},
		{"labels only", "y\n1\n", "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.csv", tt.content)
			_, err := NewDataReader(path).ReadMatrix(tt.label)
			assert.Error(t, err)
		})
	}

	_, err := NewDataReader(filepath.Join(t.TempDir(), "missing.xlsx")).ReadData()
	assert.Error(t, err)
}

func testManifest() *run.Manifest {
	return run.NewManifest(run.Knobs{
		Strategy:    mask.Mirror,
		Estimator:   "mcdue",
		NNRuns:      25,
		DropoutRate: 0.5,
		Seed:        42,
	}, 3, 0)
}

func TestWriteReportXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	scores := []float64{0.5, 1.25, 0}

	require.NoError(t, WriteReport(path, ScoresSheets(testManifest(), scores)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"scores", "run"}, f.GetSheetList())
	rows, err := f.GetRows("scores")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"sample", "score"}, rows[0])
	assert.Equal(t, []string{"1", "1.25"}, rows[2])

	runRows, err := f.GetRows("run")
	require.NoError(t, err)
	assert.Equal(t, []string{"strategy", "mirror_random"}, runRows[3])
}

func TestWriteReportCSVIsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.csv")
	require.NoError(t, WriteReport(path, ScoresSheets(testManifest(), []float64{0.5, 1.25, 0})))

	table, err := NewDataReader(path).ReadMatrix("score")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.25, 0}, table.Y)
	assert.Equal(t, []string{"sample"}, table.Features)
}

func TestWriteReportNeedsSheets(t *testing.T) {
	assert.Error(t, WriteReport(filepath.Join(t.TempDir(), "r.xlsx"), nil))
}
