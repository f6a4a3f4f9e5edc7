package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"gonum.org/v1/gonum/mat"

	"gouncertain/domain/core"
	"gouncertain/domain/mask"
	"gouncertain/domain/run"
	"gouncertain/internal/benchmark"
	"gouncertain/internal/estimator"
	"gouncertain/internal/masks"
	"gouncertain/ports"
)

// EstimationService runs single estimations and strategy comparisons for the
// CLI and HTTP surfaces
type EstimationService struct {
	rngPort    ports.RNGPort
	ledgerPort ports.LedgerPort // nil keeps no history
	runner     *benchmark.Runner
}

// EstimateRequest defines the inputs of one estimation run
type EstimateRequest struct {
	Predictor ports.Predictor
	Pool      *mat.Dense
	TrainX    *mat.Dense // may be nil for MCDUE
	TrainY    []float64
	Strategy  mask.Name
	Estimator estimator.Config
	Seed      uint64
}

// NewEstimationService creates an estimation service. ledgerPort may be nil.
func NewEstimationService(rngPort ports.RNGPort, ledgerPort ports.LedgerPort, maxConcurrency int) *EstimationService {
	return &EstimationService{
		rngPort:    rngPort,
		ledgerPort: ledgerPort,
		runner:     benchmark.NewRunner(maxConcurrency, rngPort),
	}
}

// Estimate builds a fresh strategy and estimator, scores the pool and stamps
// the run with a manifest
func (s *EstimationService) Estimate(ctx context.Context, req EstimateRequest) (*run.Result, error) {
	if req.Predictor == nil {
		return nil, fmt.Errorf("estimation needs a predictor")
	}
	startTime := time.Now()

	strategy, err := masks.New(req.Strategy, masks.Options{
		NNRuns: req.Estimator.NNRuns,
		Rand:   s.rngPort.Stream(string(req.Strategy), req.Seed),
	})
	if err != nil {
		return nil, err
	}
	est, err := estimator.New(req.Estimator, req.Predictor, strategy)
	if err != nil {
		return nil, err
	}

	poolLen, trainLen := rowsOf(req.Pool), rowsOf(req.TrainX)
	manifest := run.NewManifest(run.Knobs{
		Strategy:    req.Strategy,
		Estimator:   string(req.Estimator.Kind),
		NNRuns:      req.Estimator.NNRuns,
		DropoutRate: req.Estimator.DropoutRate,
		DiagEps:     req.Estimator.DiagEps,
		Seed:        req.Seed,
	}, poolLen, trainLen)

	log.Printf("[EstimationService] run %s: %s with %s, %d runs at rate %g (fingerprint %s)",
		manifest.RunID, req.Estimator.Kind, req.Strategy, req.Estimator.NNRuns, req.Estimator.DropoutRate, manifest.Fingerprint.Short())

	scores, err := est.Estimate(ctx, req.Pool, req.TrainX, req.TrainY)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", manifest.RunID, err)
	}

	result := &run.Result{Manifest: manifest, Scores: scores}
	if s.ledgerPort != nil {
		if err := s.ledgerPort.StoreRun(ctx, result); err != nil {
			log.Printf("[EstimationService] run %s not recorded: %v", manifest.RunID, err)
		}
	}

	log.Printf("[EstimationService] run %s finished in %v", manifest.RunID, time.Since(startTime))
	return result, nil
}

// GetRun returns a recorded run
func (s *EstimationService) GetRun(ctx context.Context, runID core.RunID) (*run.Result, error) {
	if s.ledgerPort == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return s.ledgerPort.GetRun(ctx, runID)
}

// ListRuns returns recorded run manifests, newest first
func (s *EstimationService) ListRuns(ctx context.Context, limit int) ([]*run.Manifest, error) {
	if s.ledgerPort == nil {
		return []*run.Manifest{}, nil
	}
	return s.ledgerPort.ListRuns(ctx, limit)
}

// Compare scores the same inputs under several strategies
func (s *EstimationService) Compare(ctx context.Context, req benchmark.Request) ([]benchmark.Summary, error) {
	return s.runner.Compare(ctx, req)
}

func rowsOf(m *mat.Dense) int {
	if m == nil || m.IsEmpty() {
		return 0
	}
	r, _ := m.Dims()
	return r
}
