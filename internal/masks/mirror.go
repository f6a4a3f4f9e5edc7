package masks

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"gouncertain/domain/mask"
)

// mirrorQueue holds the unused half of the last antithetic couple
type mirrorQueue struct {
	rate    float64
	pending []mask.Mask
}

// MirrorMask returns antithetic pairs: a Bernoulli(1-rate) draw scaled by
// 1/(1-rate), then its complement scaled by 1/rate. Two consecutive calls for a
// layer therefore cover every unit exactly once.
type MirrorMask struct {
	rng    *rand.Rand
	layers layerTable[*mirrorQueue]
}

// NewMirrorMask creates an antithetic pairing strategy
func NewMirrorMask(rng *rand.Rand) *MirrorMask {
	return &MirrorMask{rng: rng, layers: newLayerTable[*mirrorQueue]()}
}

// Sample pops the pending half of the current couple, generating a new couple when empty
func (m *MirrorMask) Sample(activation *mat.Dense, rate float64, layer int) (mask.Mask, error) {
	width, err := checkInputs(activation, rate)
	if err != nil {
		return nil, err
	}
	if rate == 0 {
		return mask.Ones(width), nil
	}

	st := m.layers.get(layer)
	if st.phase == mask.Unprimed {
		st.prime(width, &mirrorQueue{})
	} else if err := st.checkWidth(layer, width); err != nil {
		return nil, err
	}

	q := st.stats
	// A pending half generated at another rate no longer mirrors this call
	if len(q.pending) == 0 || q.rate != rate {
		q.pending = m.couple(width, rate)
		q.rate = rate
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	return next, nil
}

// Reset discards pending couples
func (m *MirrorMask) Reset() {
	m.layers.reset()
}

func (m *MirrorMask) couple(width int, rate float64) []mask.Mask {
	p := 1 - rate
	bern := distuv.Bernoulli{P: p, Src: m.rng}

	first := mask.Zeros(width)
	second := mask.Zeros(width)
	for i := 0; i < width; i++ {
		if bern.Rand() == 1 {
			first[i] = 1 / p
		} else {
			second[i] = 1 / rate
		}
	}
	return []mask.Mask{first, second}
}
