package mask

import (
	"fmt"
	"math"
	"strings"

	"gouncertain/domain/core"
)

// Mask is a per-unit multiplicative scale vector for one layer's activations.
// Entries are 0 for dropped units and a positive scale for kept units.
type Mask []float64

// Ones returns the identity mask of the given width
func Ones(width int) Mask {
	m := make(Mask, width)
	for i := range m {
		m[i] = 1
	}
	return m
}

// Zeros returns the all-dropped mask of the given width
func Zeros(width int) Mask {
	return make(Mask, width)
}

// Width returns the number of units covered by the mask
func (m Mask) Width() int {
	return len(m)
}

// NonZero returns the indices of kept units
func (m Mask) NonZero() []int {
	var ids []int
	for i, v := range m {
		if v != 0 {
			ids = append(ids, i)
		}
	}
	return ids
}

// IsIdentity reports whether every entry equals 1
func (m Mask) IsIdentity() bool {
	for _, v := range m {
		if v != 1 {
			return false
		}
	}
	return true
}

// Sum returns the total of all entries
func (m Mask) Sum() float64 {
	s := 0.0
	for _, v := range m {
		s += v
	}
	return s
}

// Phase is the lifecycle state of one layer inside a priming strategy
type Phase int

const (
	// Unprimed layers have not been observed since construction or the last reset
	Unprimed Phase = iota
	// Primed layers hold statistics derived from their first observation
	Primed
)

func (p Phase) String() string {
	switch p {
	case Unprimed:
		return "unprimed"
	case Primed:
		return "primed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Name enumerates the closed set of mask strategies
type Name string

const (
	Vanilla         Name = "vanilla"
	Basic           Name = "basic_mask"
	LHS             Name = "lhs"
	LHSShuffled     Name = "lhs_shuffled"
	Mirror          Name = "mirror_random"
	Decorrelation   Name = "decorrelating"
	DecorrelationSc Name = "decorrelating_sc"
	DPP             Name = "dpp"
	DPPAdaptive     Name = "adpp"
)

// AllNames lists every strategy in registry order
var AllNames = []Name{Vanilla, Basic, LHS, LHSShuffled, Mirror, Decorrelation, DecorrelationSc, DPP, DPPAdaptive}

// DefaultNames is the set compared when the caller does not pick one
var DefaultNames = []Name{Vanilla, Mirror, Decorrelation, DecorrelationSc, DPPAdaptive}

// ParseName normalizes and validates a strategy name
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllNames {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnknownStrategy, s)
}

// ParseNames parses a comma separated list, returning DefaultNames for an empty list
func ParseNames(csv string) ([]Name, error) {
	if strings.TrimSpace(csv) == "" {
		return append([]Name(nil), DefaultNames...), nil
	}
	var names []Name
	for _, part := range strings.Split(csv, ",") {
		n, err := ParseName(part)
		if err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, nil
}

// ValidateRate checks that a dropout rate lies in [0, 1)
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate >= 1 {
		return core.NewDropoutRateError(rate)
	}
	return nil
}

// KeepCount is the number of units kept out of width at the given dropout rate
func KeepCount(width int, rate float64) int {
	return int(math.Round(float64(width) * (1 - rate)))
}
