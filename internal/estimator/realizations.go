package estimator

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"gouncertain/domain/core"
	"gouncertain/domain/mask"
	"gouncertain/ports"
)

// Sampling holds the knobs shared by every Monte-Carlo estimator
type Sampling struct {
	Predictor   ports.Predictor
	Strategy    ports.MaskStrategy // nil means the predictor's own unstructured dropout
	NNRuns      int
	DropoutRate float64
}

func (s Sampling) validate() error {
	if s.Predictor == nil {
		return fmt.Errorf("estimator needs a predictor")
	}
	if s.NNRuns <= 0 {
		return fmt.Errorf("%w: nn_runs must be positive, got %d", core.ErrInsufficientData, s.NNRuns)
	}
	return mask.ValidateRate(s.DropoutRate)
}

// collect runs NNRuns stochastic forward passes over batch and returns the
// rows x NNRuns realization matrix. Strategy state advances once per
// (run, layer); nothing is reset here.
func (s Sampling) collect(ctx context.Context, batch *mat.Dense) (*mat.Dense, error) {
	rows, _ := batch.Dims()
	realizations := mat.NewDense(rows, s.NNRuns, nil)

	for run := 0; run < s.NNRuns; run++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := s.Predictor.Predict(ctx, batch, s.DropoutRate, s.Strategy)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", run, err)
		}
		outRows, outCols := out.Dims()
		if outCols != 1 {
			return nil, fmt.Errorf("%w: run %d produced %d outputs per sample", core.ErrNonScalarOutput, run, outCols)
		}
		if outRows != rows {
			return nil, fmt.Errorf("run %d produced %d rows for a batch of %d", run, outRows, rows)
		}
		realizations.SetCol(run, mat.Col(nil, 0, out))
	}
	return realizations, nil
}

func nonEmpty(m *mat.Dense, what string) error {
	if m == nil || m.IsEmpty() {
		return fmt.Errorf("%w: %s is empty", core.ErrInsufficientData, what)
	}
	return nil
}
