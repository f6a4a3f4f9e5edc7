package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gouncertain/domain/core"
	"gouncertain/domain/mask"
	"gouncertain/domain/run"
)

func newResult() *run.Result {
	m := run.NewManifest(run.Knobs{Strategy: mask.Mirror, Estimator: "mcdue", NNRuns: 5, DropoutRate: 0.5}, 2, 0)
	return &run.Result{Manifest: m, Scores: []float64{0.1, 0.2}}
}

func TestStoreAndGet(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger(10)
	r := newResult()

	require.NoError(t, l.StoreRun(ctx, r))
	assert.Error(t, l.StoreRun(ctx, r))
	assert.Error(t, l.StoreRun(ctx, &run.Result{}))

	got, err := l.GetRun(ctx, r.Manifest.RunID)
	require.NoError(t, err)
	assert.Equal(t, r.Scores, got.Scores)

	_, err = l.GetRun(ctx, core.NewRunID())
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}

func TestEvictionAndListing(t *testing.T) {
	ctx := context.Background()
	l := NewInMemoryLedger(2)

	var results []*run.Result
	for i := 0; i < 3; i++ {
		r := newResult()
		results = append(results, r)
		require.NoError(t, l.StoreRun(ctx, r))
	}

	_, err := l.GetRun(ctx, results[0].Manifest.RunID)
	assert.ErrorIs(t, err, core.ErrRunNotFound)

	all, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, results[2].Manifest.RunID, all[0].RunID)
	assert.Equal(t, results[1].Manifest.RunID, all[1].RunID)

	one, err := l.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, results[2].Manifest.RunID, one[0].RunID)
}
