package benchmark

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/mat"

	"gouncertain/domain/mask"
	"gouncertain/internal/estimator"
	"gouncertain/internal/masks"
	"gouncertain/internal/profiling"
	"gouncertain/ports"
)

// Request describes one comparison: the same predictor, pool and train set
// scored once per strategy
type Request struct {
	// Predictor must be safe for concurrent Predict calls
	Predictor  ports.Predictor
	Pool       *mat.Dense
	TrainX     *mat.Dense
	TrainY     []float64
	Strategies []mask.Name
	Estimator  estimator.Config
	Seed       uint64

	// PoolY enables the error correlation summary when set
	PoolY []float64
	// OutOfDomain enables the out/in domain score ratio when set
	OutOfDomain []bool
}

// Summary is the outcome for one strategy
type Summary struct {
	Strategy mask.Name     `json:"strategy"`
	Scores   []float64     `json:"scores,omitempty"`
	Mean     float64       `json:"mean"`
	Median   float64       `json:"median"`
	Max      float64       `json:"max"`
	Elapsed  time.Duration `json:"elapsed_ns"`

	Profile *profiling.ScoreProfile `json:"profile,omitempty"`

	// ErrorCorrelation is the Pearson correlation between scores and the
	// absolute error of a dropout-free prediction
	ErrorCorrelation *float64 `json:"error_correlation,omitempty"`
	// DomainRatio is mean(out of domain scores) / mean(in domain scores)
	DomainRatio *float64 `json:"domain_ratio,omitempty"`

	Err string `json:"error,omitempty"`
}

// Runner scores several strategies concurrently. Each strategy gets its own
// instance and random stream, so every instance still has a single writer.
type Runner struct {
	sem  *semaphore.Weighted
	rngs ports.RNGPort
}

// NewRunner creates a runner that scores at most maxConcurrency strategies at once
func NewRunner(maxConcurrency int, rngs ports.RNGPort) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Runner{
		sem:  semaphore.NewWeighted(int64(maxConcurrency)),
		rngs: rngs,
	}
}

// Compare returns one summary per requested strategy, in request order.
// A failing strategy records its error in its summary and does not abort the
// others; only setup failures and cancellation are returned as errors.
func (r *Runner) Compare(ctx context.Context, req Request) ([]Summary, error) {
	if req.Predictor == nil {
		return nil, fmt.Errorf("comparison needs a predictor")
	}
	if len(req.Strategies) == 0 {
		return nil, fmt.Errorf("comparison needs at least one strategy")
	}

	strategies, err := masks.Build(req.Strategies, req.Estimator.NNRuns, r.rngs, req.Seed)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	summaries := make([]Summary, len(req.Strategies))
	var wg sync.WaitGroup
	for i, name := range req.Strategies {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, fmt.Errorf("waiting to score %s: %w", name, err)
		}
		wg.Add(1)
		go func(i int, name mask.Name) {
			defer wg.Done()
			defer r.sem.Release(1)
			summaries[i] = r.score(ctx, req, name, strategies[name])
		}(i, name)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Printf("[Benchmark] compared %d strategies with %s in %v",
		len(req.Strategies), req.Estimator.Kind, time.Since(start))
	return summaries, nil
}

func (r *Runner) score(ctx context.Context, req Request, name mask.Name, strategy ports.MaskStrategy) Summary {
	s := Summary{Strategy: name}
	start := time.Now()

	masks.Reset(strategy)
	est, err := estimator.New(req.Estimator, req.Predictor, strategy)
	if err != nil {
		s.Err = err.Error()
		return s
	}
	scores, err := est.Estimate(ctx, req.Pool, req.TrainX, req.TrainY)
	s.Elapsed = time.Since(start)
	if err != nil {
		log.Printf("[Benchmark] %s failed: %v", name, err)
		s.Err = err.Error()
		return s
	}

	s.Scores = scores
	if p, err := profiling.ProfileScores(scores); err == nil {
		s.Profile = p
		s.Mean, s.Median, s.Max = p.Mean, p.Median, p.Max
	}

	if len(req.PoolY) == len(scores) {
		if c, err := r.errorCorrelation(ctx, req, scores); err == nil {
			s.ErrorCorrelation = &c
		} else {
			log.Printf("[Benchmark] %s error correlation skipped: %v", name, err)
		}
	}
	if len(req.OutOfDomain) == len(scores) {
		if ratio, ok := domainRatio(scores, req.OutOfDomain); ok {
			s.DomainRatio = &ratio
		}
	}
	return s
}

func (r *Runner) errorCorrelation(ctx context.Context, req Request, scores []float64) (float64, error) {
	pred, err := req.Predictor.Predict(ctx, req.Pool, 0, nil)
	if err != nil {
		return 0, err
	}
	absErr := make([]float64, len(scores))
	for i := range absErr {
		d := pred.At(i, 0) - req.PoolY[i]
		if d < 0 {
			d = -d
		}
		absErr[i] = d
	}
	return stats.Pearson(scores, absErr)
}

func domainRatio(scores []float64, ood []bool) (float64, bool) {
	var in, out []float64
	for i, s := range scores {
		if ood[i] {
			out = append(out, s)
		} else {
			in = append(in, s)
		}
	}
	inMean, err := stats.Mean(in)
	if err != nil || inMean == 0 {
		return 0, false
	}
	outMean, err := stats.Mean(out)
	if err != nil {
		return 0, false
	}
	return outMean / inMean, true
}
