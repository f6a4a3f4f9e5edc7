package masks

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"gouncertain/domain/core"
	"gouncertain/domain/mask"
	"gouncertain/ports"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// independentActivations returns rows x width standard normal activations
func independentActivations(rows, width int, seed uint64) *mat.Dense {
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: newRand(seed)}
	data := make([]float64, rows*width)
	for i := range data {
		data[i] = norm.Rand()
	}
	return mat.NewDense(rows, width, data)
}

// strategyCases builds one instance of every non-vanilla strategy
func strategyCases(nnRuns int, seed uint64) map[string]ports.MaskStrategy {
	return map[string]ports.MaskStrategy{
		"basic":            NewBasicMask(newRand(seed)),
		"lhs":              NewLHSMask(nnRuns, false, newRand(seed)),
		"lhs_shuffled":     NewLHSMask(nnRuns, true, newRand(seed)),
		"mirror":           NewMirrorMask(newRand(seed)),
		"decorrelation":    NewDecorrelationMask(false, newRand(seed)),
		"decorrelation_sc": NewDecorrelationMask(true, newRand(seed)),
		"dpp":              NewDPPMask(newRand(seed)),
		"dpp_adaptive":     NewDPPAdaptiveMask(newRand(seed)),
	}
}

func TestZeroRateReturnsOnes(t *testing.T) {
	for _, width := range []int{1, 3, 16} {
		act := independentActivations(32, width, 7)
		for name, s := range strategyCases(5, 1) {
			t.Run(name, func(t *testing.T) {
				for call := 0; call < 3; call++ {
					m, err := s.Sample(act, 0, 0)
					require.NoError(t, err)
					assert.Len(t, m, width)
					assert.True(t, m.IsIdentity(), "call %d width %d: %v", call, width, m)
				}
			})
		}
	}
	assert.True(t, Bernoulli(9, 0, newRand(3)).IsIdentity())
}

func TestInvalidRate(t *testing.T) {
	act := independentActivations(8, 4, 1)
	for name, s := range strategyCases(5, 1) {
		t.Run(name, func(t *testing.T) {
			for _, rate := range []float64{-0.1, 1, 1.5} {
				_, err := s.Sample(act, rate, 0)
				assert.ErrorIs(t, err, core.ErrInvalidDropoutRate)
			}
		})
	}
}

func TestBasicMaskConcreteScenario(t *testing.T) {
	s := NewBasicMask(newRand(11))
	act := independentActivations(2, 4, 1)

	for trial := 0; trial < 50; trial++ {
		m, err := s.Sample(act, 0.5, 0)
		require.NoError(t, err)
		nonzero := m.NonZero()
		require.Len(t, nonzero, 2)
		for i, v := range m {
			if v != 0 {
				assert.Equal(t, 2.0, v, "entry %d", i)
			}
		}
		assert.InDelta(t, 4.0, m.Sum(), 1e-12)
	}
}

func TestBasicMaskDropsEverythingWhenNothingKept(t *testing.T) {
	s := NewBasicMask(newRand(1))
	m, err := s.Sample(independentActivations(2, 1, 1), 0.6, 0)
	require.NoError(t, err)
	assert.Equal(t, mask.Zeros(1), m)
}

func TestExpectationInvariant(t *testing.T) {
	const (
		width  = 8
		rate   = 0.5
		trials = 3000
	)
	// Independent units keep the decorrelation weights near uniform. Skewed
	// weights drawn without replacement do not average to 1 per unit.
	act := independentActivations(600, width, 99)

	tests := []struct {
		name     string
		strategy ports.MaskStrategy
		priming  bool
		perUnit  float64
	}{
		{"basic", NewBasicMask(newRand(1)), false, 0.08},
		{"mirror", NewMirrorMask(newRand(2)), false, 0.08},
		{"decorrelation", NewDecorrelationMask(false, newRand(3)), true, 0.1},
		{"dpp", NewDPPMask(newRand(4)), true, 0.1},
		{"dpp_adaptive", NewDPPAdaptiveMask(newRand(5)), true, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := make([]float64, width)
			for trial := 0; trial < trials; trial++ {
				tt.strategy.Reset()
				if tt.priming {
					m, err := tt.strategy.Sample(act, rate, 0)
					require.NoError(t, err)
					require.True(t, m.IsIdentity())
				}
				m, err := tt.strategy.Sample(act, rate, 0)
				require.NoError(t, err)
				for i, v := range m {
					sum[i] += v
				}
			}

			total := 0.0
			for i := range sum {
				mean := sum[i] / trials
				total += mean
				assert.InDelta(t, 1.0, mean, tt.perUnit, "unit %d", i)
			}
			assert.InDelta(t, 1.0, total/width, 0.05)
		})
	}
}

func TestMirrorMaskComplementaryPairs(t *testing.T) {
	s := NewMirrorMask(newRand(21))
	act := independentActivations(4, 10, 2)

	for _, rate := range []float64{0.2, 0.5, 0.8} {
		s.Reset()
		for pair := 0; pair < 20; pair++ {
			first, err := s.Sample(act, rate, 3)
			require.NoError(t, err)
			second, err := s.Sample(act, rate, 3)
			require.NoError(t, err)

			for i := range first {
				assert.Zero(t, first[i]*second[i], "unit %d overlaps", i)
				assert.True(t, first[i] != 0 || second[i] != 0, "unit %d uncovered", i)
				if first[i] != 0 {
					assert.InDelta(t, 1/(1-rate), first[i], 1e-12)
				}
				if second[i] != 0 {
					assert.InDelta(t, 1/rate, second[i], 1e-12)
				}
			}
		}
	}
}

func TestMirrorMaskLayersAreIndependent(t *testing.T) {
	s := NewMirrorMask(newRand(5))
	act := independentActivations(4, 6, 2)

	a1, err := s.Sample(act, 0.5, 0)
	require.NoError(t, err)
	_, err = s.Sample(act, 0.5, 1)
	require.NoError(t, err)
	a2, err := s.Sample(act, 0.5, 0)
	require.NoError(t, err)

	for i := range a1 {
		assert.Zero(t, a1[i]*a2[i])
	}
}

func TestPrimingReturnsIdentity(t *testing.T) {
	act := independentActivations(200, 6, 8)

	for _, rate := range []float64{0.1, 0.5, 0.9} {
		tests := []struct {
			name     string
			strategy interface {
				ports.MaskStrategy
				Phase(layer int) mask.Phase
			}
		}{
			{"decorrelation", NewDecorrelationMask(false, newRand(1))},
			{"decorrelation_sc", NewDecorrelationMask(true, newRand(1))},
			{"dpp", NewDPPMask(newRand(1))},
			{"dpp_adaptive", NewDPPAdaptiveMask(newRand(1))},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, mask.Unprimed, tt.strategy.Phase(2))

				m, err := tt.strategy.Sample(act, rate, 2)
				require.NoError(t, err)
				assert.True(t, m.IsIdentity())
				assert.Equal(t, mask.Primed, tt.strategy.Phase(2))
				assert.Equal(t, mask.Unprimed, tt.strategy.Phase(0))

				m, err = tt.strategy.Sample(act, rate, 2)
				require.NoError(t, err)
				assert.Len(t, m.NonZero(), mask.KeepCount(6, rate))

				tt.strategy.Reset()
				assert.Equal(t, mask.Unprimed, tt.strategy.Phase(2))
				m, err = tt.strategy.Sample(act, rate, 2)
				require.NoError(t, err)
				assert.True(t, m.IsIdentity())
			})
		}
	}
}

func TestLHSMaskConcreteScenario(t *testing.T) {
	s := NewLHSMask(3, false, newRand(17))
	act := independentActivations(5, 2, 1)
	rate := 0.4

	for call := 0; call < 3; call++ {
		m, err := s.Sample(act, rate, 0)
		require.NoError(t, err, "call %d", call)
		require.Len(t, m, 2)
		for _, v := range m {
			assert.Contains(t, []float64{0, 1 / (1 - rate)}, v)
		}
	}
	assert.Equal(t, 0, s.Remaining(0))

	_, err := s.Sample(act, rate, 0)
	assert.ErrorIs(t, err, core.ErrSequenceExhausted)

	// Other layers keep their own sequence
	_, err = s.Sample(act, rate, 1)
	assert.NoError(t, err)

	s.Reset()
	assert.Equal(t, 3, s.Remaining(0))
	_, err = s.Sample(act, rate, 0)
	assert.NoError(t, err)
}

func TestLHSMaskStratifiesEveryUnit(t *testing.T) {
	const nnRuns = 10
	for _, shuffle := range []bool{false, true} {
		s := NewLHSMask(nnRuns, shuffle, newRand(23))
		act := independentActivations(3, 7, 1)

		kept := make([]int, 7)
		for call := 0; call < nnRuns; call++ {
			m, err := s.Sample(act, 0.3, 0)
			require.NoError(t, err)
			for i, v := range m {
				if v != 0 {
					kept[i]++
				}
			}
		}
		// One draw per stratum of width 0.1, so exactly 3 rows fall below 0.3
		for i, k := range kept {
			assert.Equal(t, 7, k, "unit %d shuffle=%v", i, shuffle)
		}
	}
}

func TestWidthMismatchAfterPriming(t *testing.T) {
	tests := []struct {
		name     string
		strategy ports.MaskStrategy
	}{
		{"lhs", NewLHSMask(5, false, newRand(1))},
		{"mirror", NewMirrorMask(newRand(1))},
		{"decorrelation", NewDecorrelationMask(false, newRand(1))},
		{"dpp", NewDPPMask(newRand(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.strategy.Sample(independentActivations(50, 4, 1), 0.5, 0)
			require.NoError(t, err)
			_, err = tt.strategy.Sample(independentActivations(50, 6, 1), 0.5, 0)
			assert.ErrorIs(t, err, core.ErrWidthMismatch)
		})
	}
}

func TestDecorrelationPrefersDecorrelatedUnits(t *testing.T) {
	// Units 0-2 are noisy copies of one signal, unit 3 is independent
	rows := 300
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: newRand(4)}
	data := make([]float64, rows*4)
	for r := 0; r < rows; r++ {
		shared := norm.Rand()
		data[r*4+0] = shared + 0.1*norm.Rand()
		data[r*4+1] = shared + 0.1*norm.Rand()
		data[r*4+2] = shared + 0.1*norm.Rand()
		data[r*4+3] = norm.Rand()
	}
	act := mat.NewDense(rows, 4, data)

	for _, scaling := range []bool{false, true} {
		s := NewDecorrelationMask(scaling, newRand(9))
		_, err := s.Sample(act, 0.5, 0)
		require.NoError(t, err)

		probs, ok := s.Probabilities(0)
		require.True(t, ok)
		assert.InDelta(t, 1.0, probs[0]+probs[1]+probs[2]+probs[3], 1e-12)
		for i := 0; i < 3; i++ {
			assert.Greater(t, probs[3], probs[i])
		}
	}

	plain := NewDecorrelationMask(false, newRand(9))
	scaled := NewDecorrelationMask(true, newRand(9))
	_, _ = plain.Sample(act, 0.5, 0)
	_, _ = scaled.Sample(act, 0.5, 0)
	pp, _ := plain.Probabilities(0)
	ps, _ := scaled.Probabilities(0)
	assert.Greater(t, ps[3], pp[3], "scaling sharpens toward the decorrelated unit")
}

func TestDPPRankDeficientKernel(t *testing.T) {
	// Four exact multiples of one signal: rank one kernel
	rows := 20
	data := make([]float64, rows*4)
	for r := 0; r < rows; r++ {
		x := float64(r%7) - 3
		for c := 0; c < 4; c++ {
			data[r*4+c] = x * float64(c+1)
		}
	}
	act := mat.NewDense(rows, 4, data)

	plain := NewDPPMask(newRand(1))
	_, err := plain.Sample(act, 0.5, 0)
	require.NoError(t, err)
	rank, ok := plain.Rank(0)
	require.True(t, ok)
	assert.Equal(t, 1, rank)
	_, err = plain.Sample(act, 0.5, 0)
	assert.ErrorIs(t, err, core.ErrInvalidKernel)

	adaptive := NewDPPAdaptiveMask(newRand(1))
	_, err = adaptive.Sample(act, 0.5, 0)
	require.NoError(t, err)
	m, err := adaptive.Sample(act, 0.5, 0)
	require.NoError(t, err)
	assert.Len(t, m.NonZero(), 1)
	assert.InDelta(t, 2.0, m.Sum(), 1e-12)
}

func TestDPPProjectsIndefiniteKernel(t *testing.T) {
	// z1, z2 orthogonal; units z1, z2, z1+z2, z1-z2. The absolute
	// correlation matrix has eigenvalues 1+sqrt2, 1, 1 and 1-sqrt2.
	z1 := []float64{1, -1, 1, -1, 1, -1, 1, -1}
	z2 := []float64{1, 1, -1, -1, 1, 1, -1, -1}
	act := mat.NewDense(8, 4, nil)
	for r := range z1 {
		act.SetRow(r, []float64{z1[r], z2[r], z1[r] + z2[r], z1[r] - z2[r]})
	}

	tests := []struct {
		name     string
		strategy *DPPMask
	}{
		{"dpp", NewDPPMask(newRand(1))},
		{"adpp", NewDPPAdaptiveMask(newRand(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.strategy.Sample(act, 0.5, 0)
			require.NoError(t, err)
			assert.True(t, m.IsIdentity())
			assert.Equal(t, mask.Primed, tt.strategy.Phase(0))

			st := tt.strategy.layers.get(0).stats
			assert.InDelta(t, math.Sqrt2-1, st.spec.clipped, 1e-9)
			rank, ok := tt.strategy.Rank(0)
			require.True(t, ok)
			assert.Equal(t, 3, rank)

			// plain keeps round(4*0.5), adaptive round(3*0.5); both are 2
			for trial := 0; trial < 50; trial++ {
				m, err = tt.strategy.Sample(act, 0.5, 0)
				require.NoError(t, err)
				assert.Len(t, m.NonZero(), 2)
				assert.InDelta(t, 4.0, m.Sum(), 1e-12)
			}
		})
	}
}

func TestDecomposeRejectsZeroKernel(t *testing.T) {
	_, err := decompose(mat.NewSymDense(3, nil))
	assert.ErrorIs(t, err, core.ErrInvalidKernel)
}

func TestPrimingNeedsABatch(t *testing.T) {
	s := NewDecorrelationMask(false, newRand(1))
	_, err := s.Sample(independentActivations(1, 4, 1), 0.5, 0)
	assert.ErrorIs(t, err, core.ErrInsufficientData)
}

func TestKDPPSubsetsAreDistinct(t *testing.T) {
	act := independentActivations(400, 12, 5)
	kernel, err := absCorrelation(act)
	require.NoError(t, err)
	spec, err := decompose(kernel)
	require.NoError(t, err)
	sampler := newKDPP(spec, newRand(77))

	for _, k := range []int{0, 1, 5, 12} {
		for trial := 0; trial < 20; trial++ {
			ids, err := sampler.Sample(k)
			require.NoError(t, err)
			require.Len(t, ids, k)
			seen := make(map[int]bool)
			for _, id := range ids {
				assert.False(t, seen[id], "duplicate %d", id)
				assert.True(t, id >= 0 && id < 12)
				seen[id] = true
			}
		}
	}

	_, err = sampler.Sample(13)
	assert.ErrorIs(t, err, core.ErrInvalidKernel)
}

func TestKDPPRepulsion(t *testing.T) {
	// Units 0 and 1 are near duplicates; 2 and 3 are independent.
	// A 2-DPP should almost never keep both duplicates.
	rows := 400
	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: newRand(6)}
	act := mat.NewDense(rows, 4, nil)
	for r := 0; r < rows; r++ {
		x := norm.Rand()
		act.SetRow(r, []float64{x, x + 0.05*norm.Rand(), norm.Rand(), norm.Rand()})
	}
	kernel, err := absCorrelation(act)
	require.NoError(t, err)
	spec, err := decompose(kernel)
	require.NoError(t, err)
	sampler := newKDPP(spec, newRand(8))

	both := 0
	for trial := 0; trial < 500; trial++ {
		ids, err := sampler.Sample(2)
		require.NoError(t, err)
		if ids[0] == 0 && ids[1] == 1 {
			both++
		}
	}
	assert.Less(t, both, 10)
}

func TestFactory(t *testing.T) {
	tests := []struct {
		name        mask.Name
		expectNil   bool
		expectError bool
	}{
		{mask.Vanilla, true, false},
		{mask.Basic, false, false},
		{mask.LHS, false, false},
		{mask.LHSShuffled, false, false},
		{mask.Mirror, false, false},
		{mask.Decorrelation, false, false},
		{mask.DecorrelationSc, false, false},
		{mask.DPP, false, false},
		{mask.DPPAdaptive, false, false},
		{mask.Name("dropconnect"), true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			s, err := New(tt.name, Options{NNRuns: 10, Rand: newRand(1)})
			if tt.expectError {
				assert.ErrorIs(t, err, core.ErrUnknownStrategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectNil, s == nil)
			Reset(s)
		})
	}
}

type fixedStreams struct{}

func (fixedStreams) Stream(name string, seed uint64) *rand.Rand { return newRand(seed + uint64(len(name))) }

func TestBuildCreatesIndependentInstances(t *testing.T) {
	built, err := Build(mask.DefaultNames, 10, fixedStreams{}, 42)
	require.NoError(t, err)
	assert.Len(t, built, len(mask.DefaultNames))
	assert.Nil(t, built[mask.Vanilla])
	assert.NotSame(t, built[mask.Decorrelation], built[mask.DecorrelationSc])

	_, err = Build([]mask.Name{"nope"}, 10, fixedStreams{}, 42)
	assert.ErrorIs(t, err, core.ErrUnknownStrategy)
}

func TestBernoulliInvertedDropout(t *testing.T) {
	rng := newRand(31)
	const width, trials = 20, 4000
	rate := 0.3
	sum := 0.0
	for i := 0; i < trials; i++ {
		m := Bernoulli(width, rate, rng)
		for _, v := range m {
			assert.Contains(t, []float64{0, 1 / (1 - rate)}, v)
		}
		sum += m.Sum()
	}
	assert.InDelta(t, 1.0, sum/(width*trials), 0.02)
}
