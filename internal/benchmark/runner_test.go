package benchmark

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gouncertain/adapters/network"
	"gouncertain/adapters/rng"
	"gouncertain/domain/core"
	"gouncertain/domain/mask"
	"gouncertain/internal/estimator"
	"gouncertain/internal/testkit"
	"gouncertain/ports"
)

func sineRequest(t *testing.T, strategies ...mask.Name) Request {
	t.Helper()
	return datasetRequest(t, testkit.DatasetSine, strategies...)
}

func datasetRequest(t *testing.T, name testkit.DatasetName, strategies ...mask.Name) Request {
	t.Helper()
	cfg := testkit.DefaultRegressionConfig(name)
	cfg.TrainSize, cfg.PoolSize = 40, 20
	d, err := testkit.Generate(cfg)
	require.NoError(t, err)

	net, err := network.NewRandomMLP([]int{d.Features(), 16, 16, 1}, rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)

	return Request{
		Predictor:   net,
		Pool:        d.PoolX,
		TrainX:      d.TrainX,
		TrainY:      d.TrainY,
		Strategies:  strategies,
		Estimator:   estimator.Config{Kind: estimator.KindMCDUE, NNRuns: 10, DropoutRate: 0.5},
		Seed:        42,
		PoolY:       d.PoolY,
		OutOfDomain: d.OutOfDomain,
	}
}

func TestCompareKeepsRequestOrder(t *testing.T) {
	names := []mask.Name{mask.Vanilla, mask.Basic, mask.Mirror, mask.LHS, mask.Decorrelation, mask.DPP, mask.DPPAdaptive}
	req := datasetRequest(t, testkit.DatasetFriedman, names...)

	summaries, err := NewRunner(2, rng.NewStreams()).Compare(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, summaries, len(names))

	for i, s := range summaries {
		assert.Equal(t, names[i], s.Strategy)
		assert.Empty(t, s.Err)
		assert.Len(t, s.Scores, 20)
		assert.GreaterOrEqual(t, s.Max, s.Mean)
		assert.GreaterOrEqual(t, s.Mean, 0.0)
		assert.NotNil(t, s.DomainRatio)
	}
}

func TestCompareRunsEveryStrategyOnHiddenActivations(t *testing.T) {
	for _, kind := range []estimator.Kind{estimator.KindMCDUE, estimator.KindNNGP} {
		for _, name := range []testkit.DatasetName{testkit.DatasetFriedman, testkit.DatasetLinear} {
			t.Run(string(kind)+"/"+string(name), func(t *testing.T) {
				req := datasetRequest(t, name, mask.AllNames...)
				req.Estimator = estimator.Config{Kind: kind, NNRuns: 10, DropoutRate: 0.5, DiagEps: 1e-3}

				summaries, err := NewRunner(4, rng.NewStreams()).Compare(context.Background(), req)
				require.NoError(t, err)
				for _, s := range summaries {
					assert.Empty(t, s.Err, "strategy %s", s.Strategy)
					assert.Len(t, s.Scores, 20, "strategy %s", s.Strategy)
				}
			})
		}
	}
}

// A 1-D input through zero-bias LeakyReLU layers gives rank 2 kernels: the
// fixed-size DPP cannot keep half the units, the rank-relative one can.
func TestCompareDPPOnRankDeficientLayers(t *testing.T) {
	req := sineRequest(t, mask.DPP, mask.DPPAdaptive)

	summaries, err := NewRunner(2, rng.NewStreams()).Compare(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, summaries[0].Err, core.ErrInvalidKernel.Error())
	assert.Empty(t, summaries[1].Err)
	assert.Len(t, summaries[1].Scores, 20)
}

func TestCompareIsReproducibleForSeededStrategies(t *testing.T) {
	req := sineRequest(t, mask.Mirror, mask.LHSShuffled)
	runner := NewRunner(4, rng.NewStreams())

	first, err := runner.Compare(context.Background(), req)
	require.NoError(t, err)
	second, err := runner.Compare(context.Background(), req)
	require.NoError(t, err)

	for i := range first {
		assert.Equal(t, first[i].Scores, second[i].Scores, "strategy %s", first[i].Strategy)
	}
}

// maskedFailure rejects every masked forward pass
type maskedFailure struct {
	ports.Predictor
}

var errMasked = errors.New("masked pass rejected")

func (p maskedFailure) Predict(ctx context.Context, batch *mat.Dense, rate float64, s ports.MaskStrategy) (*mat.Dense, error) {
	if s != nil {
		return nil, errMasked
	}
	return p.Predictor.Predict(ctx, batch, rate, s)
}

func TestCompareRecordsPerStrategyFailures(t *testing.T) {
	req := sineRequest(t, mask.Vanilla, mask.Mirror)
	req.Predictor = maskedFailure{req.Predictor}

	summaries, err := NewRunner(1, rng.NewStreams()).Compare(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, summaries[0].Err)
	assert.Contains(t, summaries[1].Err, errMasked.Error())
	assert.Nil(t, summaries[1].Scores)
}

func TestCompareSetupErrors(t *testing.T) {
	runner := NewRunner(0, rng.NewStreams())
	ctx := context.Background()

	_, err := runner.Compare(ctx, Request{})
	assert.Error(t, err)

	req := sineRequest(t)
	_, err = runner.Compare(ctx, req)
	assert.Error(t, err)

	req = sineRequest(t, mask.Name("dropconnect"))
	_, err = runner.Compare(ctx, req)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	req = sineRequest(t, mask.Mirror)
	_, err = runner.Compare(cancelled, req)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDomainRatio(t *testing.T) {
	ratio, ok := domainRatio([]float64{1, 1, 3, 3}, []bool{false, false, true, true})
	require.True(t, ok)
	assert.InDelta(t, 3.0, ratio, 1e-12)

	_, ok = domainRatio([]float64{1, 2}, []bool{true, true})
	assert.False(t, ok)
}
