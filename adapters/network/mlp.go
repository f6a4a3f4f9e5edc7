package network

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"gouncertain/domain/mask"
	"gouncertain/internal/masks"
	"gouncertain/ports"
)

var _ ports.Predictor = (*MLP)(nil)

// leakySlope matches the default negative slope of a LeakyReLU
const leakySlope = 0.01

// Layer is one dense layer: outputs = inputs * Weights + Bias.
// Weights is inputs x outputs.
type Layer struct {
	Weights *mat.Dense
	Bias    []float64
}

// MLP is a feed-forward regression network with LeakyReLU hidden layers and a
// linear output layer. After every hidden layer the activations pass through a
// dropout hook, indexed by hidden layer position starting at 0.
type MLP struct {
	layers []Layer

	// mu guards rng, which only the unstructured dropout path uses
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMLP wires the given layers, checking that consecutive shapes agree
func NewMLP(layers []Layer, rng *rand.Rand) (*MLP, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("network needs at least one layer")
	}
	for i, l := range layers {
		if l.Weights == nil {
			return nil, fmt.Errorf("layer %d has no weights", i)
		}
		_, out := l.Weights.Dims()
		if len(l.Bias) != out {
			return nil, fmt.Errorf("layer %d bias length %d, want %d", i, len(l.Bias), out)
		}
		if i > 0 {
			_, prevOut := layers[i-1].Weights.Dims()
			in, _ := l.Weights.Dims()
			if in != prevOut {
				return nil, fmt.Errorf("layer %d expects %d inputs, previous layer emits %d", i, in, prevOut)
			}
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &MLP{layers: layers, rng: rng}, nil
}

// NewRandomMLP builds an untrained network with He-normal weights for the
// given layer sizes, e.g. [8, 64, 64, 1]
func NewRandomMLP(sizes []int, rng *rand.Rand) (*MLP, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("need at least input and output sizes, got %v", sizes)
	}
	layers := make([]Layer, len(sizes)-1)
	for i := range layers {
		in, out := sizes[i], sizes[i+1]
		if in <= 0 || out <= 0 {
			return nil, fmt.Errorf("layer sizes must be positive, got %v", sizes)
		}
		norm := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2 / float64(in)), Src: rng}
		w := mat.NewDense(in, out, nil)
		for r := 0; r < in; r++ {
			for c := 0; c < out; c++ {
				w.Set(r, c, norm.Rand())
			}
		}
		layers[i] = Layer{Weights: w, Bias: make([]float64, out)}
	}
	return NewMLP(layers, rng)
}

// InputDim is the width of accepted input rows
func (n *MLP) InputDim() int {
	in, _ := n.layers[0].Weights.Dims()
	return in
}

// OutputDim is the width of produced output rows
func (n *MLP) OutputDim() int {
	_, out := n.layers[len(n.layers)-1].Weights.Dims()
	return out
}

// HiddenLayers is the number of dropout hook positions
func (n *MLP) HiddenLayers() int {
	return len(n.layers) - 1
}

// Predict runs one stochastic forward pass. With a nil strategy each hidden
// activation gets independent per-element inverted dropout; otherwise the
// strategy's mask for that layer scales every row of the batch.
func (n *MLP) Predict(ctx context.Context, batch *mat.Dense, dropoutRate float64, strategy ports.MaskStrategy) (*mat.Dense, error) {
	if err := mask.ValidateRate(dropoutRate); err != nil {
		return nil, err
	}
	if batch == nil || batch.IsEmpty() {
		return nil, fmt.Errorf("empty batch")
	}
	if _, cols := batch.Dims(); cols != n.InputDim() {
		return nil, fmt.Errorf("batch has %d columns, network expects %d", cols, n.InputDim())
	}

	out := mat.DenseCopyOf(batch)
	for i, l := range n.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := dense(out, l)
		if i == len(n.layers)-1 {
			return next, nil
		}
		next.Apply(func(_, _ int, v float64) float64 {
			if v < 0 {
				return leakySlope * v
			}
			return v
		}, next)

		if dropoutRate > 0 {
			if err := n.dropout(next, dropoutRate, i, strategy); err != nil {
				return nil, fmt.Errorf("dropout at layer %d: %w", i, err)
			}
		}
		out = next
	}
	return out, nil
}

func (n *MLP) dropout(act *mat.Dense, rate float64, layer int, strategy ports.MaskStrategy) error {
	rows, width := act.Dims()
	if strategy == nil {
		n.mu.Lock()
		defer n.mu.Unlock()
		for r := 0; r < rows; r++ {
			scaleRow(act, r, masks.Bernoulli(width, rate, n.rng))
		}
		return nil
	}

	m, err := strategy.Sample(act, rate, layer)
	if err != nil {
		return err
	}
	if m.Width() != width {
		return fmt.Errorf("mask width %d, activation width %d", m.Width(), width)
	}
	for r := 0; r < rows; r++ {
		scaleRow(act, r, m)
	}
	return nil
}

func dense(in *mat.Dense, l Layer) *mat.Dense {
	var out mat.Dense
	out.Mul(in, l.Weights)
	rows, _ := out.Dims()
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		for c := range row {
			row[c] += l.Bias[c]
		}
	}
	return &out
}

func scaleRow(act *mat.Dense, r int, m mask.Mask) {
	row := act.RawRowView(r)
	for c := range row {
		row[c] *= m[c]
	}
}

// FromWeights builds a network from nested slices. weights[i] is the
// inputs x outputs matrix of layer i, row-major by input.
func FromWeights(weights [][][]float64, biases [][]float64, rng *rand.Rand) (*MLP, error) {
	if len(weights) != len(biases) {
		return nil, fmt.Errorf("%d weight matrices but %d bias vectors", len(weights), len(biases))
	}
	layers := make([]Layer, len(weights))
	for i, w := range weights {
		if len(w) == 0 || len(w[0]) == 0 {
			return nil, fmt.Errorf("layer %d has empty weights", i)
		}
		m := mat.NewDense(len(w), len(w[0]), nil)
		for r, row := range w {
			if len(row) != len(w[0]) {
				return nil, fmt.Errorf("layer %d weight row %d has %d entries, want %d", i, r, len(row), len(w[0]))
			}
			m.SetRow(r, row)
		}
		layers[i] = Layer{Weights: m, Bias: biases[i]}
	}
	return NewMLP(layers, rng)
}
