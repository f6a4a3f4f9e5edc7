package estimator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"gouncertain/domain/core"
	"gouncertain/ports"
)

var _ ports.Estimator = (*NNGP)(nil)

// DefaultDiagEps regularizes the train covariance before inversion
const DefaultDiagEps = 1e-6

// Diagnostics holds the intermediate matrices of the last NNGP estimate
type Diagnostics struct {
	Covariance *mat.Dense // train x train, before regularization
	Qs         *mat.Dense // train x pool
	QtKQ       []float64  // diagonal of Qs' K^-1 Qs, one entry per pool sample
	KKs        []float64  // per pool sample variance across runs
}

// NNGP treats the dropout realizations of train and pool samples as draws of
// a Gaussian process and scores each pool sample by its posterior standard
// deviation given the training samples
type NNGP struct {
	Sampling
	DiagEps float64

	// Verbose logs the top-left corner of each intermediate matrix
	Verbose bool

	last *Diagnostics
}

// NewNNGP creates a posterior-variance estimator
func NewNNGP(predictor ports.Predictor, strategy ports.MaskStrategy, nnRuns int, dropoutRate, diagEps float64) *NNGP {
	return &NNGP{
		Sampling: Sampling{
			Predictor:   predictor,
			Strategy:    strategy,
			NNRuns:      nnRuns,
			DropoutRate: dropoutRate,
		},
		DiagEps: diagEps,
	}
}

// Diagnostics returns the intermediates of the most recent successful
// Estimate, or nil before the first one
func (e *NNGP) Diagnostics() *Diagnostics {
	return e.last
}

// Estimate runs joint forward passes over train and pool, then returns
// sqrt(max(0, var(pool_i) - q_i' K^-1 q_i)) per pool sample, where K is the
// regularized train covariance and q_i the cross covariance with pool sample i.
func (e *NNGP) Estimate(ctx context.Context, pool, trainX *mat.Dense, trainY []float64) ([]float64, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if err := nonEmpty(pool, "pool"); err != nil {
		return nil, err
	}
	if err := nonEmpty(trainX, "train set"); err != nil {
		return nil, err
	}
	if e.DiagEps < 0 || math.IsNaN(e.DiagEps) {
		return nil, fmt.Errorf("diag_eps must be non-negative, got %g", e.DiagEps)
	}
	trainLen, trainCols := trainX.Dims()
	poolLen, poolCols := pool.Dims()
	if trainCols != poolCols {
		return nil, fmt.Errorf("train has %d features, pool has %d", trainCols, poolCols)
	}
	if trainY != nil && len(trainY) != trainLen {
		return nil, fmt.Errorf("train labels have %d entries for %d samples", len(trainY), trainLen)
	}

	start := time.Now()
	var batch mat.Dense
	batch.Stack(trainX, pool)

	realizations, err := e.collect(ctx, &batch)
	if err != nil {
		return nil, err
	}
	trainR := realizations.Slice(0, trainLen, 0, e.NNRuns).(*mat.Dense)
	poolR := realizations.Slice(trainLen, trainLen+poolLen, 0, e.NNRuns).(*mat.Dense)

	cov := covariance(trainR)
	inv, err := e.invert(cov)
	if err != nil {
		return nil, err
	}

	qs := crossCovariance(trainR, poolR)

	// only the diagonal of Qs' K^-1 Qs is needed
	var kq mat.Dense
	kq.Mul(inv, qs)
	qtkq := make([]float64, poolLen)
	for j := 0; j < poolLen; j++ {
		qtkq[j] = mat.Dot(qs.ColView(j), kq.ColView(j))
	}

	kks := make([]float64, poolLen)
	scores := make([]float64, poolLen)
	for j := 0; j < poolLen; j++ {
		v, err := stats.PopulationVariance(poolR.RawRowView(j))
		if err != nil {
			return nil, fmt.Errorf("variance of pool sample %d: %w", j, err)
		}
		kks[j] = v
		// negative residuals are estimation noise
		if w := v - qtkq[j]; w > 0 {
			scores[j] = math.Sqrt(w)
		}
	}

	e.last = &Diagnostics{Covariance: cov, Qs: qs, QtKQ: qtkq, KKs: kks}
	if e.Verbose {
		e.last.log()
	}
	log.Printf("[NNGP] scored %d pool samples against %d train samples over %d runs in %v",
		poolLen, trainLen, e.NNRuns, time.Since(start))
	return scores, nil
}

func (e *NNGP) invert(cov *mat.Dense) (*mat.Dense, error) {
	n, _ := cov.Dims()
	reg := mat.DenseCopyOf(cov)
	for i := 0; i < n; i++ {
		reg.Set(i, i, reg.At(i, i)+e.DiagEps)
	}

	var inv mat.Dense
	if err := inv.Inverse(reg); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: condition number %g with diag_eps %g", core.ErrSingularCovariance, float64(cond), e.DiagEps)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrSingularCovariance, err)
	}
	for _, v := range inv.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: inverse has non-finite entries", core.ErrSingularCovariance)
		}
	}
	return &inv, nil
}

// covariance returns the population covariance between rows of r, where each
// row is one sample observed across runs
func covariance(r *mat.Dense) *mat.Dense {
	_, runs := r.Dims()
	c := centerRows(r)
	var out mat.Dense
	out.Mul(c, c.T())
	out.Scale(1/float64(runs), &out)
	return &out
}

// crossCovariance returns Qs = ac * bc' where ac is the centered train
// realizations and bc the centered pool realizations divided by the run count
func crossCovariance(train, pool *mat.Dense) *mat.Dense {
	_, runs := pool.Dims()
	ac := centerRows(train)
	bc := centerRows(pool)
	bc.Scale(1/float64(runs), bc)

	var qs mat.Dense
	qs.Mul(ac, bc.T())
	return &qs
}

func centerRows(r *mat.Dense) *mat.Dense {
	c := mat.DenseCopyOf(r)
	rows, _ := c.Dims()
	for i := 0; i < rows; i++ {
		row := c.RawRowView(i)
		mean, _ := stats.Mean(row)
		for j := range row {
			row[j] -= mean
		}
	}
	return c
}

func (d *Diagnostics) log() {
	log.Printf("[NNGP] covariance %s\n%v", shape(d.Covariance), corner(d.Covariance))
	log.Printf("[NNGP] Qs %s\n%v", shape(d.Qs), corner(d.Qs))
	log.Printf("[NNGP] QtKQ diag (%d) %v", len(d.QtKQ), head(d.QtKQ))
	log.Printf("[NNGP] KKs (%d) %v", len(d.KKs), head(d.KKs))
}

func shape(m *mat.Dense) string {
	r, c := m.Dims()
	return fmt.Sprintf("(%d, %d)", r, c)
}

func corner(m *mat.Dense) fmt.Formatter {
	r, c := m.Dims()
	return mat.Formatted(m.Slice(0, min(r, 3), 0, min(c, 3)), mat.Squeeze())
}

func head(v []float64) []float64 {
	return v[:min(len(v), 3)]
}
