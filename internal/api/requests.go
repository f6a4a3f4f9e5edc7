package api

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"gouncertain/adapters/network"
	"gouncertain/domain/core"
	"gouncertain/domain/mask"
	"gouncertain/internal/config"
	"gouncertain/internal/estimator"
	"gouncertain/internal/errors"
)

// NetworkSpec describes the predictor: either explicit weights and biases,
// or layer sizes for a seeded random initialization
type NetworkSpec struct {
	Weights [][][]float64 `json:"weights"`
	Biases  [][]float64   `json:"biases"`
	Sizes   []int         `json:"sizes"`
}

// Knobs are the optional per-request overrides of the configured defaults
type Knobs struct {
	Estimator string   `json:"estimator"`
	Runs      *int     `json:"runs"`
	Rate      *float64 `json:"rate"`
	DiagEps   *float64 `json:"diag_eps"`
	Seed      *uint64  `json:"seed"`
}

// EstimateRequest is the body of POST /v1/estimate
type EstimateRequest struct {
	Network  NetworkSpec `json:"network"`
	Pool     [][]float64 `json:"pool" binding:"required"`
	Train    [][]float64 `json:"train"`
	Labels   []float64   `json:"labels"`
	Strategy string      `json:"strategy"`
	Knobs
}

// CompareRequest is the body of POST /v1/compare
type CompareRequest struct {
	Network     NetworkSpec `json:"network"`
	Pool        [][]float64 `json:"pool" binding:"required"`
	Train       [][]float64 `json:"train"`
	Labels      []float64   `json:"labels"`
	PoolLabels  []float64   `json:"pool_labels"`
	OutOfDomain []bool      `json:"out_of_domain"`
	Strategies  []string    `json:"strategies"`
	Knobs
}

func (k Knobs) resolve(defaults config.EstimationConfig) (estimator.Config, uint64, error) {
	cfg := defaults.EstimatorConfig()
	seed := defaults.Seed

	if k.Estimator != "" {
		kind, err := estimator.ParseKind(k.Estimator)
		if err != nil {
			return cfg, 0, err
		}
		cfg.Kind = kind
	}
	if k.Runs != nil {
		if *k.Runs <= 0 {
			return cfg, 0, errors.InvalidInput("runs must be positive")
		}
		cfg.NNRuns = *k.Runs
	}
	if k.Rate != nil {
		if err := mask.ValidateRate(*k.Rate); err != nil {
			return cfg, 0, err
		}
		cfg.DropoutRate = *k.Rate
	}
	if k.DiagEps != nil {
		if *k.DiagEps < 0 {
			return cfg, 0, errors.InvalidInput("diag_eps must be non-negative")
		}
		cfg.DiagEps = *k.DiagEps
	}
	if k.Seed != nil {
		seed = *k.Seed
	}
	return cfg, seed, nil
}

func (n NetworkSpec) build(seed uint64) (*network.MLP, error) {
	rng := rand.New(rand.NewPCG(seed, 0x6e6574))
	var (
		net *network.MLP
		err error
	)
	switch {
	case len(n.Weights) > 0:
		net, err = network.FromWeights(n.Weights, n.Biases, rng)
	case len(n.Sizes) > 0:
		net, err = network.NewRandomMLP(n.Sizes, rng)
	default:
		return nil, errors.InvalidInput("network needs weights or sizes")
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	if net.OutputDim() != 1 {
		return nil, fmt.Errorf("%w: network has %d outputs", core.ErrNonScalarOutput, net.OutputDim())
	}
	return net, nil
}

// toDense converts row slices to a matrix; nil or empty input yields nil
func toDense(rows [][]float64, what string) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	width := len(rows[0])
	if width == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("%s rows are empty", what))
	}
	m := mat.NewDense(len(rows), width, nil)
	for i, row := range rows {
		if len(row) != width {
			return nil, errors.InvalidInput(fmt.Sprintf("%s row %d has %d values, want %d", what, i, len(row), width))
		}
		m.SetRow(i, row)
	}
	return m, nil
}
