package masks

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"gouncertain/domain/mask"
)

// BasicMask keeps a uniformly random subset of round(width*(1-rate)) units on
// every call and scales them by width/kept, so the mask sums to width.
// Since each unit is kept with probability kept/width its expectation is exactly 1.
type BasicMask struct {
	rng *rand.Rand
}

// NewBasicMask creates a stateless uniform subset strategy
func NewBasicMask(rng *rand.Rand) *BasicMask {
	return &BasicMask{rng: rng}
}

// Sample draws an independent subset; layer is ignored
func (b *BasicMask) Sample(activation *mat.Dense, rate float64, layer int) (mask.Mask, error) {
	width, err := checkInputs(activation, rate)
	if err != nil {
		return nil, err
	}
	if rate == 0 {
		return mask.Ones(width), nil
	}

	kept := mask.KeepCount(width, rate)
	if kept == 0 {
		return mask.Zeros(width), nil
	}
	ids := make([]int, kept)
	sampleuv.WithoutReplacement(ids, width, b.rng)
	return scatter(width, ids, float64(width)/float64(kept)), nil
}

// Reset is a no-op; BasicMask keeps no per-layer state
func (b *BasicMask) Reset() {}
