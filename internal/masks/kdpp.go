package masks

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"

	"gouncertain/domain/core"
)

// kDPP draws exact-size subsets from the L-ensemble described by a spectrum.
// Sampling follows the two stage spectral algorithm: pick k eigenvectors with
// probabilities given by elementary symmetric polynomials of the eigenvalues,
// then sample the projection DPP they span one item at a time.
type kDPP struct {
	spec *spectrum
	rng  *rand.Rand
}

func newKDPP(spec *spectrum, rng *rand.Rand) *kDPP {
	return &kDPP{spec: spec, rng: rng}
}

// Sample returns k distinct item indices in ascending order
func (d *kDPP) Sample(k int) ([]int, error) {
	n := len(d.spec.values)
	if k < 0 || k > n {
		return nil, fmt.Errorf("%w: subset size %d outside [0, %d]", core.ErrInvalidKernel, k, n)
	}
	if k == 0 {
		return nil, nil
	}

	chosen, err := d.selectEigenvectors(k)
	if err != nil {
		return nil, err
	}
	return d.sampleProjection(chosen), nil
}

// selectEigenvectors picks k eigenvector indices. Column n of the polynomial
// table is rescaled by its max entry to keep large kernels from overflowing;
// only ratios of neighbouring columns are needed so the scale m[n] is enough.
func (d *kDPP) selectEigenvectors(k int) ([]int, error) {
	lambda := d.spec.values
	n := len(lambda)

	table := make([][]float64, n+1)
	scale := make([]float64, n+1)
	table[0] = make([]float64, k+1)
	table[0][0] = 1
	scale[0] = 1
	for i := 1; i <= n; i++ {
		prev := table[i-1]
		col := make([]float64, k+1)
		col[0] = prev[0]
		for l := 1; l <= k; l++ {
			col[l] = prev[l] + lambda[i-1]*prev[l-1]
		}
		m := floats.Max(col)
		if m <= 0 || !isFinite(m) {
			return nil, fmt.Errorf("%w: degenerate elementary symmetric polynomials", core.ErrInvalidKernel)
		}
		floats.Scale(1/m, col)
		table[i] = col
		scale[i] = m
	}

	if table[n][k] <= 0 {
		return nil, fmt.Errorf("%w: kernel rank below requested subset size %d", core.ErrInvalidKernel, k)
	}

	chosen := make([]int, 0, k)
	remaining := k
	for i := n; i >= 1 && remaining > 0; i-- {
		denom := table[i][remaining] * scale[i]
		if denom <= 0 {
			continue
		}
		p := lambda[i-1] * table[i-1][remaining-1] / denom
		if d.rng.Float64() < p {
			chosen = append(chosen, i-1)
			remaining--
		}
	}
	if remaining > 0 {
		return nil, fmt.Errorf("%w: selected %d of %d eigenvectors", core.ErrInvalidKernel, k-remaining, k)
	}
	return chosen, nil
}

// sampleProjection samples one item per chosen eigenvector, projecting the
// remaining basis away from each picked item.
func (d *kDPP) sampleProjection(chosen []int) []int {
	n, _ := d.spec.vectors.Dims()

	basis := make([][]float64, len(chosen))
	for c, idx := range chosen {
		basis[c] = make([]float64, n)
		for i := 0; i < n; i++ {
			basis[c][i] = d.spec.vectors.At(i, idx)
		}
	}

	picked := make([]bool, n)
	items := make([]int, 0, len(chosen))
	weights := make([]float64, n)
	for len(basis) > 0 {
		for i := range weights {
			weights[i] = 0
			if picked[i] {
				continue
			}
			for _, v := range basis {
				weights[i] += v[i] * v[i]
			}
		}
		item, ok := sampleuv.NewWeighted(weights, d.rng).Take()
		if !ok {
			break
		}
		picked[item] = true
		items = append(items, item)

		// Eliminate the basis vector with the largest component on item,
		// using it to zero that component in every other vector.
		pivot := 0
		for c := range basis {
			if math.Abs(basis[c][item]) > math.Abs(basis[pivot][item]) {
				pivot = c
			}
		}
		pv := basis[pivot]
		basis = append(basis[:pivot], basis[pivot+1:]...)
		for _, v := range basis {
			floats.AddScaled(v, -v[item]/pv[item], pv)
		}
		orthonormalize(basis)
	}

	sort.Ints(items)
	return items
}

// orthonormalize runs modified Gram-Schmidt in place
func orthonormalize(basis [][]float64) {
	for a := range basis {
		for b := 0; b < a; b++ {
			floats.AddScaled(basis[a], -floats.Dot(basis[a], basis[b]), basis[b])
		}
		if norm := floats.Norm(basis[a], 2); norm > 0 {
			floats.Scale(1/norm, basis[a])
		}
	}
}
