package network

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"gouncertain/domain/mask"
)

type mockStrategy struct {
	mock.Mock
}

func (m *mockStrategy) Sample(activation *mat.Dense, rate float64, layer int) (mask.Mask, error) {
	args := m.Called(activation, rate, layer)
	return args.Get(0).(mask.Mask), args.Error(1)
}

func (m *mockStrategy) Reset() {
	m.Called()
}

// two inputs, two hidden units, one output
func fixedNet(t *testing.T) *MLP {
	t.Helper()
	net, err := NewMLP([]Layer{
		{Weights: mat.NewDense(2, 2, []float64{1, 0, 0, 1}), Bias: []float64{0, 0}},
		{Weights: mat.NewDense(2, 1, []float64{1, 1}), Bias: []float64{0.5}},
	}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	return net
}

func TestPredictWithoutDropout(t *testing.T) {
	net := fixedNet(t)
	batch := mat.NewDense(2, 2, []float64{1, 2, -1, 3})

	out, err := net.Predict(context.Background(), batch, 0, nil)
	require.NoError(t, err)

	rows, cols := out.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, cols)
	assert.InDelta(t, 3.5, out.At(0, 0), 1e-12)
	// LeakyReLU keeps 1% of the negative input
	assert.InDelta(t, -0.01+3+0.5, out.At(1, 0), 1e-12)
}

func TestPredictAppliesStrategyMask(t *testing.T) {
	net := fixedNet(t)
	batch := mat.NewDense(1, 2, []float64{1, 2})

	s := new(mockStrategy)
	s.On("Sample", mock.Anything, 0.5, 0).Return(mask.Mask{2, 0}, nil).Once()

	out, err := net.Predict(context.Background(), batch, 0.5, s)
	require.NoError(t, err)
	assert.InDelta(t, 2*1+0.5, out.At(0, 0), 1e-12)
	s.AssertExpectations(t)
}

func TestPredictRejectsBadMaskWidth(t *testing.T) {
	net := fixedNet(t)
	s := new(mockStrategy)
	s.On("Sample", mock.Anything, 0.5, 0).Return(mask.Mask{1}, nil)

	_, err := net.Predict(context.Background(), mat.NewDense(1, 2, []float64{1, 1}), 0.5, s)
	assert.Error(t, err)
}

func TestPredictUnstructuredDropoutIsStochastic(t *testing.T) {
	net, err := NewRandomMLP([]int{3, 32, 32, 1}, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	batch := mat.NewDense(1, 3, []float64{0.2, -0.4, 1.1})

	seen := map[float64]bool{}
	for i := 0; i < 20; i++ {
		out, err := net.Predict(context.Background(), batch, 0.5, nil)
		require.NoError(t, err)
		seen[out.At(0, 0)] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestPredictValidation(t *testing.T) {
	net := fixedNet(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		batch *mat.Dense
		rate  float64
	}{
		{"rate one", mat.NewDense(1, 2, nil), 1},
		{"negative rate", mat.NewDense(1, 2, nil), -0.1},
		{"wrong width", mat.NewDense(1, 3, nil), 0.5},
		{"nil batch", nil, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := net.Predict(ctx, tt.batch, tt.rate, nil)
			assert.Error(t, err)
		})
	}
}

func TestPredictHonoursCancellation(t *testing.T) {
	net := fixedNet(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := net.Predict(ctx, mat.NewDense(1, 2, []float64{1, 1}), 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMLPShapeChecks(t *testing.T) {
	_, err := NewMLP(nil, nil)
	assert.Error(t, err)

	_, err = NewMLP([]Layer{
		{Weights: mat.NewDense(2, 3, nil), Bias: make([]float64, 3)},
		{Weights: mat.NewDense(2, 1, nil), Bias: make([]float64, 1)},
	}, nil)
	assert.Error(t, err)

	_, err = NewMLP([]Layer{{Weights: mat.NewDense(2, 3, nil), Bias: make([]float64, 2)}}, nil)
	assert.Error(t, err)

	net, err := NewRandomMLP([]int{8, 64, 64, 1}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	assert.Equal(t, 8, net.InputDim())
	assert.Equal(t, 1, net.OutputDim())
	assert.Equal(t, 2, net.HiddenLayers())
}

func TestFromWeights(t *testing.T) {
	net, err := FromWeights(
		[][][]float64{{{1, 0}, {0, 1}}, {{1}, {1}}},
		[][]float64{{0, 0}, {0.5}},
		nil,
	)
	require.NoError(t, err)

	out, err := net.Predict(context.Background(), mat.NewDense(1, 2, []float64{1, 2}), 0, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, out.At(0, 0), 1e-12)

	_, err = FromWeights([][][]float64{{{1, 0}, {1}}}, [][]float64{{0, 0}}, nil)
	assert.Error(t, err)
	_, err = FromWeights([][][]float64{{{1}}}, nil, nil)
	assert.Error(t, err)
}
