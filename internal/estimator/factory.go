package estimator

// factory.go
// Maps estimator names from config, CLI and HTTP requests to implementations

import (
	"fmt"
	"strings"

	"gouncertain/domain/core"
	"gouncertain/ports"
)

// Kind names an estimator implementation
type Kind string

const (
	KindMCDUE Kind = "mcdue"
	KindNNGP  Kind = "nngp"
)

// Kinds lists every known estimator
var Kinds = []Kind{KindMCDUE, KindNNGP}

// ParseKind normalizes an estimator name
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case KindMCDUE, KindNNGP:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %s", core.ErrUnknownEstimator, name)
	}
}

// Config carries everything needed to build any estimator
type Config struct {
	Kind        Kind
	NNRuns      int
	DropoutRate float64
	DiagEps     float64
	Diagnostics bool
}

// New builds the estimator named by cfg.Kind around predictor and strategy
func New(cfg Config, predictor ports.Predictor, strategy ports.MaskStrategy) (ports.Estimator, error) {
	switch cfg.Kind {
	case KindMCDUE:
		return NewMCDUE(predictor, strategy, cfg.NNRuns, cfg.DropoutRate), nil
	case KindNNGP:
		e := NewNNGP(predictor, strategy, cfg.NNRuns, cfg.DropoutRate, cfg.DiagEps)
		e.Verbose = cfg.Diagnostics
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownEstimator, cfg.Kind)
	}
}
