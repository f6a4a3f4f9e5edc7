package rng

import (
	"math/rand/v2"

	"gouncertain/ports"
)

var _ ports.RNGPort = (*Streams)(nil)

// Streams derives named PCG streams from a base seed
type Streams struct{}

// NewStreams creates a stream factory
func NewStreams() *Streams {
	return &Streams{}
}

// Stream creates a deterministic RNG stream for a named consumer
func (s *Streams) Stream(name string, baseSeed uint64) *rand.Rand {
	// Mix the name into the second PCG word so every consumer gets its own sequence
	return rand.New(rand.NewPCG(baseSeed, uint64(hashString(name))|1<<32))
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
