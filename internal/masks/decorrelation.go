package masks

import (
	"log"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"gouncertain/domain/mask"
)

// scaledTemperature is the peak score after rescaling in the scaled variant
const scaledTemperature = 4.0

// DecorrelationMask prefers units that are weakly correlated with the rest of
// the layer. The first call for a layer derives a keep distribution from the
// activations and returns the identity mask; later calls draw
// round(width*(1-rate)) distinct units from that distribution.
type DecorrelationMask struct {
	scaling bool
	rng     *rand.Rand
	layers  layerTable[[]float64]
}

// NewDecorrelationMask creates a decorrelation strategy. With scaling the
// diversity scores are stretched to a peak of 4 before the softmax, which
// sharpens selection toward the most decorrelated units.
func NewDecorrelationMask(scaling bool, rng *rand.Rand) *DecorrelationMask {
	return &DecorrelationMask{
		scaling: scaling,
		rng:     rng,
		layers:  newLayerTable[[]float64](),
	}
}

// Sample primes the layer on first observation, then samples weighted subsets
func (d *DecorrelationMask) Sample(activation *mat.Dense, rate float64, layer int) (mask.Mask, error) {
	return primeOrSample(&d.layers, activation, rate, layer, d.probabilities,
		func(probs []float64, width int) (mask.Mask, error) {
			kept := mask.KeepCount(width, rate)
			ids := make([]int, 0, kept)
			w := sampleuv.NewWeighted(probs, d.rng)
			for len(ids) < kept {
				idx, ok := w.Take()
				if !ok {
					break
				}
				ids = append(ids, idx)
			}
			return scatter(width, ids, inverseKeep(rate)), nil
		})
}

// Phase reports the lifecycle state of a layer
func (d *DecorrelationMask) Phase(layer int) mask.Phase {
	return d.layers.phase(layer)
}

// Probabilities returns a copy of the cached keep distribution of a primed layer
func (d *DecorrelationMask) Probabilities(layer int) ([]float64, bool) {
	if d.layers.phase(layer) != mask.Primed {
		return nil, false
	}
	return append([]float64(nil), d.layers.get(layer).stats...), true
}

// Reset returns every layer to Unprimed
func (d *DecorrelationMask) Reset() {
	d.layers.reset()
}

// probabilities scores each unit by the reciprocal of its total absolute
// correlation and turns the scores into a softmax distribution
func (d *DecorrelationMask) probabilities(activation *mat.Dense) ([]float64, error) {
	corr, err := absCorrelation(activation)
	if err != nil {
		return nil, err
	}

	width := corr.SymmetricDim()
	scores := make([]float64, width)
	for i := 0; i < width; i++ {
		total := 0.0
		for j := 0; j < width; j++ {
			total += corr.At(i, j)
		}
		// total >= 1 because of the unit diagonal
		scores[i] = 1 / total
	}
	if d.scaling {
		floats.Scale(scaledTemperature/floats.Max(scores), scores)
	}

	lse := floats.LogSumExp(scores)
	for i, s := range scores {
		scores[i] = math.Exp(s - lse)
	}
	log.Printf("[DecorrelationMask] primed width=%d scaled=%v", width, d.scaling)
	return scores, nil
}
