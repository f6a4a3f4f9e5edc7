package masks

import (
	"log"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"gouncertain/domain/mask"
)

// dppState caches everything derived from a layer's priming activations
type dppState struct {
	spec    *spectrum
	sampler *kDPP
	rank    int
}

// DPPMask selects kept units with an exact k-DPP over the layer's absolute
// correlation matrix, which favours sets of mutually decorrelated units.
//
// The plain variant keeps round(width*(1-rate)) units. The adaptive variant
// keeps round(rank*(1-rate)) units, where rank is the numerical rank of the
// kernel: a low rank correlation structure cannot support more independent slots.
type DPPMask struct {
	adaptive bool
	rng      *rand.Rand
	layers   layerTable[*dppState]
}

// NewDPPMask creates the fixed-size k-DPP strategy
func NewDPPMask(rng *rand.Rand) *DPPMask {
	return &DPPMask{rng: rng, layers: newLayerTable[*dppState]()}
}

// NewDPPAdaptiveMask creates the rank-relative k-DPP strategy
func NewDPPAdaptiveMask(rng *rand.Rand) *DPPMask {
	return &DPPMask{adaptive: true, rng: rng, layers: newLayerTable[*dppState]()}
}

// Sample primes the layer's kernel on first observation, then draws exact-size subsets
func (d *DPPMask) Sample(activation *mat.Dense, rate float64, layer int) (mask.Mask, error) {
	return primeOrSample(&d.layers, activation, rate, layer, d.prime,
		func(st *dppState, width int) (mask.Mask, error) {
			base := width
			if d.adaptive {
				base = st.rank
			}
			ids, err := st.sampler.Sample(mask.KeepCount(base, rate))
			if err != nil {
				return nil, err
			}
			return scatter(width, ids, inverseKeep(rate)), nil
		})
}

// Phase reports the lifecycle state of a layer
func (d *DPPMask) Phase(layer int) mask.Phase {
	return d.layers.phase(layer)
}

// Rank returns the numerical kernel rank of a primed layer
func (d *DPPMask) Rank(layer int) (int, bool) {
	if d.layers.phase(layer) != mask.Primed {
		return 0, false
	}
	return d.layers.get(layer).stats.rank, true
}

// Reset returns every layer to Unprimed
func (d *DPPMask) Reset() {
	d.layers.reset()
}

func (d *DPPMask) prime(activation *mat.Dense) (*dppState, error) {
	kernel, err := absCorrelation(activation)
	if err != nil {
		return nil, err
	}
	spec, err := decompose(kernel)
	if err != nil {
		return nil, err
	}

	st := &dppState{
		spec:    spec,
		sampler: newKDPP(spec, d.rng),
		rank:    spec.rank(),
	}
	log.Printf("[DPPMask] primed width=%d rank=%d adaptive=%v", kernel.SymmetricDim(), st.rank, d.adaptive)
	if spec.clipped > 0 {
		log.Printf("[DPPMask] clipped negative eigenvalue mass %.4g of trace %d", spec.clipped, kernel.SymmetricDim())
	}
	return st, nil
}
