package profiling

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// ScoreProfile summarizes the distribution of uncertainty scores over a pool
type ScoreProfile struct {
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	// HighUncertainty lists samples above Q75 + 1.5 IQR, highest score first
	HighUncertainty []int `json:"high_uncertainty"`
}

// ProfileScores computes the score profile; it fails only on empty input
func ProfileScores(scores []float64) (*ScoreProfile, error) {
	p := &ScoreProfile{}
	var err error

	if p.Mean, err = stats.Mean(scores); err != nil {
		return nil, err
	}
	if p.StdDev, err = stats.StandardDeviation(scores); err != nil {
		return nil, err
	}
	if p.Min, err = stats.Min(scores); err != nil {
		return nil, err
	}
	if p.Max, err = stats.Max(scores); err != nil {
		return nil, err
	}
	if p.Median, err = stats.Median(scores); err != nil {
		return nil, err
	}
	// Percentile rejects inputs it cannot split; fall back to the extremes
	if p.Q25, err = stats.Percentile(scores, 25); err != nil {
		p.Q25 = p.Min
	}
	if p.Q75, err = stats.Percentile(scores, 75); err != nil {
		p.Q75 = p.Max
	}
	p.Skewness = skewness(scores, p.Mean, p.StdDev)

	upper := p.Q75 + 1.5*(p.Q75-p.Q25)
	for i, s := range scores {
		if s > upper {
			p.HighUncertainty = append(p.HighUncertainty, i)
		}
	}
	sort.SliceStable(p.HighUncertainty, func(a, b int) bool {
		return scores[p.HighUncertainty[a]] > scores[p.HighUncertainty[b]]
	})
	return p, nil
}

// TopK returns the indices of the k highest scores, highest first. Ties keep
// pool order. This is the acquisition step of uncertainty-driven active
// learning.
func TopK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if k < 0 {
		k = 0
	}
	return idx[:min(k, len(idx))]
}

// skewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func skewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 || math.IsNaN(stdDev) {
		return 0
	}

	n := float64(len(data))
	sumCubedDeviations := 0.0
	for _, x := range data {
		deviation := (x - mean) / stdDev
		sumCubedDeviations += deviation * deviation * deviation
	}

	// Bias correction for sample skewness
	return sumCubedDeviations / n * math.Sqrt(n*(n-1)) / (n - 2)
}
