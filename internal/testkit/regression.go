package testkit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Synthetic regression datasets for exercising the estimators end to end.
// Every generator places part of the pool outside the training support, so a
// useful uncertainty score should rank those samples higher.

// DatasetName identifies a synthetic generator
type DatasetName string

const (
	DatasetSine     DatasetName = "sine"
	DatasetFriedman DatasetName = "friedman"
	DatasetLinear   DatasetName = "linear"
)

// DatasetNames lists every generator
var DatasetNames = []DatasetName{DatasetSine, DatasetFriedman, DatasetLinear}

// RegressionConfig configures the synthetic data generator
type RegressionConfig struct {
	Name      DatasetName `json:"name"`
	TrainSize int         `json:"train_size"`
	PoolSize  int         `json:"pool_size"`
	Noise     float64     `json:"noise"`
	Seed      uint64      `json:"seed"`
}

// DefaultRegressionConfig returns sensible defaults for the named dataset
func DefaultRegressionConfig(name DatasetName) RegressionConfig {
	return RegressionConfig{
		Name:      name,
		TrainSize: 200,
		PoolSize:  100,
		Noise:     0.1,
		Seed:      42,
	}
}

// Dataset is a train split with labels and a pool split whose labels are
// kept only for evaluation
type Dataset struct {
	Name   DatasetName
	TrainX *mat.Dense
	TrainY []float64
	PoolX  *mat.Dense
	PoolY  []float64
	// OutOfDomain marks pool rows drawn outside the training support
	OutOfDomain []bool
}

// Features returns the input width
func (d *Dataset) Features() int {
	_, c := d.TrainX.Dims()
	return c
}

// ParseDataset normalizes a dataset name
func ParseDataset(name string) (DatasetName, error) {
	n := DatasetName(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range DatasetNames {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown dataset: %s", name)
}

// Generate builds the configured dataset deterministically from its seed
func Generate(cfg RegressionConfig) (*Dataset, error) {
	if cfg.TrainSize <= 0 || cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("train and pool sizes must be positive, got %d and %d", cfg.TrainSize, cfg.PoolSize)
	}
	if cfg.Noise < 0 {
		return nil, fmt.Errorf("noise must be non-negative, got %g", cfg.Noise)
	}

	g := &generator{
		rng:   rand.New(rand.NewPCG(cfg.Seed, 0x5eed)),
		noise: cfg.Noise,
	}
	switch cfg.Name {
	case DatasetSine:
		return g.build(cfg, 1, sineTarget, g.sineInputs)
	case DatasetFriedman:
		return g.build(cfg, 5, friedmanTarget, g.boxInputs(0, 1, 0.5))
	case DatasetLinear:
		return g.build(cfg, 3, linearTarget, g.boxInputs(-1, 1, 1))
	default:
		return nil, fmt.Errorf("unknown dataset: %s", cfg.Name)
	}
}

type generator struct {
	rng   *rand.Rand
	noise float64
}

// inputFn fills x with one sample, in or out of the training domain
type inputFn func(x []float64, outOfDomain bool)

func (g *generator) build(cfg RegressionConfig, features int, target func([]float64) float64, inputs inputFn) (*Dataset, error) {
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: g.rng}
	d := &Dataset{
		Name:        cfg.Name,
		TrainX:      mat.NewDense(cfg.TrainSize, features, nil),
		TrainY:      make([]float64, cfg.TrainSize),
		PoolX:       mat.NewDense(cfg.PoolSize, features, nil),
		PoolY:       make([]float64, cfg.PoolSize),
		OutOfDomain: make([]bool, cfg.PoolSize),
	}

	for i := 0; i < cfg.TrainSize; i++ {
		x := d.TrainX.RawRowView(i)
		inputs(x, false)
		d.TrainY[i] = target(x) + g.noise*noise.Rand()
	}
	// every fourth pool row leaves the training domain
	for i := 0; i < cfg.PoolSize; i++ {
		ood := i%4 == 3
		x := d.PoolX.RawRowView(i)
		inputs(x, ood)
		d.PoolY[i] = target(x) + g.noise*noise.Rand()
		d.OutOfDomain[i] = ood
	}
	return d, nil
}

// sineInputs trains on [-3, 3]; out of domain samples come from 3 < |x| <= 5
func (g *generator) sineInputs(x []float64, ood bool) {
	if !ood {
		x[0] = -3 + 6*g.rng.Float64()
		return
	}
	v := 5 - 2*g.rng.Float64()
	if g.rng.IntN(2) == 0 {
		v = -v
	}
	x[0] = v
}

// boxInputs draws inside [lo, hi] per feature, or shifted past hi by up to
// span when out of domain
func (g *generator) boxInputs(lo, hi, span float64) inputFn {
	return func(x []float64, ood bool) {
		for j := range x {
			x[j] = lo + (hi-lo)*g.rng.Float64()
		}
		if ood {
			x[0] = hi + span*g.rng.Float64()
		}
	}
}

func sineTarget(x []float64) float64 {
	return math.Sin(x[0]) + 0.1*x[0]
}

// friedmanTarget is the Friedman #1 benchmark function
func friedmanTarget(x []float64) float64 {
	return 10*math.Sin(math.Pi*x[0]*x[1]) + 20*(x[2]-0.5)*(x[2]-0.5) + 10*x[3] + 5*x[4]
}

func linearTarget(x []float64) float64 {
	return 2*x[0] - x[1] + 0.5*x[2]
}
