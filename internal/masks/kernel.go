package masks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gouncertain/domain/core"
)

// machineEpsilon is the float64 spacing at 1.0
const machineEpsilon = 0x1p-52

// absCorrelation returns |corr| between the units (columns) of activation,
// estimated across the batch rows. Units with zero variance are treated as
// uncorrelated with every other unit.
func absCorrelation(activation *mat.Dense) (*mat.SymDense, error) {
	rows, width := activation.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("%w: correlations need at least 2 batch rows, got %d", core.ErrInsufficientData, rows)
	}

	corr := mat.NewSymDense(width, nil)
	stat.CorrelationMatrix(corr, activation, nil)

	for i := 0; i < width; i++ {
		corr.SetSym(i, i, 1)
		for j := i + 1; j < width; j++ {
			v := corr.At(i, j)
			if !isFinite(v) {
				v = 0
			}
			corr.SetSym(i, j, math.Abs(v))
		}
	}
	return corr, nil
}

// spectrum is the eigendecomposition of a symmetric kernel projected onto the
// PSD cone. values are ascending; negative eigenvalues and those within the
// rank tolerance are clipped to zero. clipped is the total negative mass removed.
type spectrum struct {
	values  []float64
	vectors *mat.Dense
	tol     float64
	clipped float64
}

// decompose factorizes a kernel and projects it onto the nearest PSD kernel.
// An absolute correlation matrix is generally indefinite, so its negative
// eigenvalues are dropped rather than rejected.
func decompose(kernel *mat.SymDense) (*spectrum, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(kernel, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition did not converge", core.ErrInvalidKernel)
	}

	values := eig.Values(nil)
	for _, v := range values {
		if !isFinite(v) {
			return nil, fmt.Errorf("%w: non-finite eigenvalue", core.ErrInvalidKernel)
		}
	}

	n := len(values)
	maxAbs := 0.0
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	tol := maxAbs * float64(n) * machineEpsilon

	clipped := 0.0
	positive := false
	for i, v := range values {
		if v < -tol {
			clipped -= v
		}
		if v <= tol {
			values[i] = 0
			continue
		}
		positive = true
	}
	if !positive {
		return nil, fmt.Errorf("%w: kernel has no positive eigenvalue", core.ErrInvalidKernel)
	}

	vectors := mat.NewDense(n, n, nil)
	eig.VectorsTo(vectors)
	return &spectrum{values: values, vectors: vectors, tol: tol, clipped: clipped}, nil
}

// rank counts eigenvalues above max_eigenvalue * N * eps
func (s *spectrum) rank() int {
	if len(s.values) == 0 {
		return 0
	}
	tol := floats.Max(s.values) * float64(len(s.values)) * machineEpsilon
	count := 0
	for _, v := range s.values {
		if v > tol {
			count++
		}
	}
	return count
}
