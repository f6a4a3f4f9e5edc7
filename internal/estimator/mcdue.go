package estimator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"gouncertain/ports"
)

var _ ports.Estimator = (*MCDUE)(nil)

// MCDUE scores each pool sample by the spread of its outputs across repeated
// stochastic forward passes
type MCDUE struct {
	Sampling
}

// NewMCDUE creates a Monte-Carlo dropout estimator. A nil strategy falls back
// to the predictor's unstructured dropout.
func NewMCDUE(predictor ports.Predictor, strategy ports.MaskStrategy, nnRuns int, dropoutRate float64) *MCDUE {
	return &MCDUE{Sampling: Sampling{
		Predictor:   predictor,
		Strategy:    strategy,
		NNRuns:      nnRuns,
		DropoutRate: dropoutRate,
	}}
}

// Estimate returns the population standard deviation of each pool sample's
// realizations. The training data is accepted for symmetry with NNGP and
// ignored.
func (e *MCDUE) Estimate(ctx context.Context, pool, _ *mat.Dense, _ []float64) ([]float64, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if err := nonEmpty(pool, "pool"); err != nil {
		return nil, err
	}

	start := time.Now()
	realizations, err := e.collect(ctx, pool)
	if err != nil {
		return nil, err
	}

	rows, _ := realizations.Dims()
	scores := make([]float64, rows)
	for i := 0; i < rows; i++ {
		sd, err := stats.StandardDeviationPopulation(realizations.RawRowView(i))
		if err != nil {
			return nil, fmt.Errorf("spread of sample %d: %w", i, err)
		}
		scores[i] = sd
	}

	log.Printf("[MCDUE] scored %d samples over %d runs in %v", rows, e.NNRuns, time.Since(start))
	return scores, nil
}
