package ports

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"gouncertain/domain/mask"
)

// MaskStrategy produces per-layer dropout masks during a stochastic forward pass.
// Implementations carry per-layer state and assume a single caller.
type MaskStrategy interface {
	// Sample returns a mask whose width equals the activation's column count.
	// activation is batch x width.
	Sample(activation *mat.Dense, dropoutRate float64, layer int) (mask.Mask, error)
	// Reset drops all per-layer state so the next observation of any layer starts fresh.
	Reset()
}

// Predictor runs one stochastic forward pass over a batch.
// A nil strategy means the predictor applies its own unstructured dropout.
// The result is batch x outputs.
type Predictor interface {
	Predict(ctx context.Context, batch *mat.Dense, dropoutRate float64, strategy MaskStrategy) (*mat.Dense, error)
}

// Estimator turns a pool of inputs into one non-negative uncertainty score per row.
// trainX and trainY may be ignored by estimators that do not condition on training data.
type Estimator interface {
	Estimate(ctx context.Context, pool, trainX *mat.Dense, trainY []float64) ([]float64, error)
}
