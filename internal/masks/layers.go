package masks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"gouncertain/domain/core"
	"gouncertain/domain/mask"
)

// layerState is the record a strategy keeps for one layer index.
// stats is only meaningful once phase is Primed.
type layerState[S any] struct {
	phase mask.Phase
	width int
	stats S
}

// prime stores the layer statistics and moves the layer to Primed
func (st *layerState[S]) prime(width int, stats S) {
	st.stats = stats
	st.width = width
	st.phase = mask.Primed
}

// checkWidth rejects activations whose width differs from the cached statistics
func (st *layerState[S]) checkWidth(layer, width int) error {
	if st.phase == mask.Primed && st.width != width {
		return core.NewWidthMismatchError(layer, st.width, width)
	}
	return nil
}

// layerTable owns the per-layer records of one strategy instance.
// Records are created Unprimed on first lookup; reset is the only way to drop them.
type layerTable[S any] struct {
	layers map[int]*layerState[S]
}

func newLayerTable[S any]() layerTable[S] {
	return layerTable[S]{layers: make(map[int]*layerState[S])}
}

func (t *layerTable[S]) get(layer int) *layerState[S] {
	st, ok := t.layers[layer]
	if !ok {
		st = &layerState[S]{phase: mask.Unprimed}
		t.layers[layer] = st
	}
	return st
}

func (t *layerTable[S]) phase(layer int) mask.Phase {
	if st, ok := t.layers[layer]; ok {
		return st.phase
	}
	return mask.Unprimed
}

func (t *layerTable[S]) reset() {
	clear(t.layers)
}

// checkInputs validates the common Sample arguments and returns the activation width
func checkInputs(activation *mat.Dense, rate float64) (int, error) {
	if err := mask.ValidateRate(rate); err != nil {
		return 0, err
	}
	if activation == nil || activation.IsEmpty() {
		return 0, fmt.Errorf("%w: empty activation", core.ErrInsufficientData)
	}
	_, width := activation.Dims()
	return width, nil
}

// primeOrSample drives the Unprimed -> Primed transition shared by the
// correlation based strategies. The priming call always yields the identity mask.
func primeOrSample[S any](
	t *layerTable[S],
	activation *mat.Dense,
	rate float64,
	layer int,
	prime func(activation *mat.Dense) (S, error),
	sample func(stats S, width int) (mask.Mask, error),
) (mask.Mask, error) {
	width, err := checkInputs(activation, rate)
	if err != nil {
		return nil, err
	}
	if rate == 0 {
		return mask.Ones(width), nil
	}

	st := t.get(layer)
	if st.phase == mask.Unprimed {
		stats, err := prime(activation)
		if err != nil {
			return nil, fmt.Errorf("priming layer %d: %w", layer, err)
		}
		st.prime(width, stats)
		return mask.Ones(width), nil
	}

	if err := st.checkWidth(layer, width); err != nil {
		return nil, err
	}
	return sample(st.stats, width)
}

// inverseKeep is the inverted-dropout scale for kept units
func inverseKeep(rate float64) float64 {
	return 1 / (1 - rate)
}

// scatter builds a mask with scale at ids and zero elsewhere
func scatter(width int, ids []int, scale float64) mask.Mask {
	m := mask.Zeros(width)
	for _, i := range ids {
		m[i] = scale
	}
	return m
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
