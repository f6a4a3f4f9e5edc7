package masks

import (
	"fmt"
	"log"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"

	"gouncertain/domain/core"
	"gouncertain/domain/mask"
)

// DefaultLHSRuns is the design length used when none is configured
const DefaultLHSRuns = 25

// lhsDesign is a one-shot sequence of space-filling rows for one layer
type lhsDesign struct {
	rows *mat.Dense
	next int
}

// LHSMask draws masks from a per-layer Latin hypercube design of nnRuns rows.
// Each call consumes one row; a layer that has used all rows fails until Reset.
type LHSMask struct {
	nnRuns  int
	shuffle bool
	rng     *rand.Rand
	layers  layerTable[*lhsDesign]
}

// NewLHSMask creates a Latin hypercube strategy with nnRuns rows per layer.
// With shuffle the row order of each design is permuted once after generation.
func NewLHSMask(nnRuns int, shuffle bool, rng *rand.Rand) *LHSMask {
	if nnRuns <= 0 {
		nnRuns = DefaultLHSRuns
	}
	return &LHSMask{
		nnRuns:  nnRuns,
		shuffle: shuffle,
		rng:     rng,
		layers:  newLayerTable[*lhsDesign](),
	}
}

// Sample thresholds the next design row against rate and rescales kept units by 1/(1-rate)
func (l *LHSMask) Sample(activation *mat.Dense, rate float64, layer int) (mask.Mask, error) {
	width, err := checkInputs(activation, rate)
	if err != nil {
		return nil, err
	}
	if rate == 0 {
		return mask.Ones(width), nil
	}

	st := l.layers.get(layer)
	if st.phase == mask.Unprimed {
		st.prime(width, &lhsDesign{rows: l.design(width)})
	} else if err := st.checkWidth(layer, width); err != nil {
		return nil, err
	}

	design := st.stats
	if design.next >= l.nnRuns {
		return nil, fmt.Errorf("%w: layer %d used all %d design rows, reset before reuse",
			core.ErrSequenceExhausted, layer, l.nnRuns)
	}
	row := design.rows.RawRowView(design.next)
	design.next++

	m := mask.Zeros(width)
	scale := inverseKeep(rate)
	for i, u := range row {
		if u >= rate {
			m[i] = scale
		}
	}
	return m, nil
}

// Remaining reports how many design rows are left for a layer
func (l *LHSMask) Remaining(layer int) int {
	if l.layers.phase(layer) == mask.Unprimed {
		return l.nnRuns
	}
	return l.nnRuns - l.layers.get(layer).stats.next
}

// Reset discards every cached design
func (l *LHSMask) Reset() {
	l.layers.reset()
}

func (l *LHSMask) design(width int) *mat.Dense {
	rows := mat.NewDense(l.nnRuns, width, nil)
	samplemv.LatinHypercube{
		Q:   distmv.NewUnitUniform(width, l.rng),
		Src: l.rng,
	}.Sample(rows)

	if l.shuffle {
		tmp := make([]float64, width)
		l.rng.Shuffle(l.nnRuns, func(i, j int) {
			copy(tmp, rows.RawRowView(i))
			rows.SetRow(i, rows.RawRowView(j))
			rows.SetRow(j, tmp)
		})
	}
	log.Printf("[LHSMask] generated %dx%d design (shuffled=%v)", l.nnRuns, width, l.shuffle)
	return rows
}
