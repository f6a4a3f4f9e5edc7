package ports

import (
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream creates a deterministic RNG stream for a named consumer.
	// Distinct names under the same base seed yield independent streams.
	Stream(name string, baseSeed uint64) *rand.Rand
}
