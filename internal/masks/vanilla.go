package masks

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"gouncertain/domain/mask"
)

// Bernoulli returns an unstructured inverted-dropout mask: every unit is kept
// independently with probability 1-rate and scaled by 1/(1-rate). It is what a
// predictor applies when no strategy is configured.
func Bernoulli(width int, rate float64, rng *rand.Rand) mask.Mask {
	if rate == 0 {
		return mask.Ones(width)
	}
	bern := distuv.Bernoulli{P: 1 - rate, Src: rng}
	scale := inverseKeep(rate)
	m := mask.Zeros(width)
	for i := range m {
		m[i] = bern.Rand() * scale
	}
	return m
}
