package masks

import (
	"fmt"
	"math/rand/v2"

	"gouncertain/domain/core"
	"gouncertain/domain/mask"
	"gouncertain/ports"
)

// Options configures strategy construction
type Options struct {
	// NNRuns bounds the LHS design length; it should equal the estimator's run count
	NNRuns int
	Rand   *rand.Rand
}

// New constructs a fresh strategy for name. Vanilla yields a nil strategy,
// which tells the predictor to apply its own unstructured dropout.
func New(name mask.Name, opts Options) (ports.MaskStrategy, error) {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	switch name {
	case mask.Vanilla:
		return nil, nil
	case mask.Basic:
		return NewBasicMask(rng), nil
	case mask.LHS:
		return NewLHSMask(opts.NNRuns, false, rng), nil
	case mask.LHSShuffled:
		return NewLHSMask(opts.NNRuns, true, rng), nil
	case mask.Mirror:
		return NewMirrorMask(rng), nil
	case mask.Decorrelation:
		return NewDecorrelationMask(false, rng), nil
	case mask.DecorrelationSc:
		return NewDecorrelationMask(true, rng), nil
	case mask.DPP:
		return NewDPPMask(rng), nil
	case mask.DPPAdaptive:
		return NewDPPAdaptiveMask(rng), nil
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownStrategy, name)
	}
}

// Build constructs one independent instance per name, each drawing from its
// own named stream of rngs so instances can be driven from separate goroutines.
func Build(names []mask.Name, nnRuns int, rngs ports.RNGPort, seed uint64) (map[mask.Name]ports.MaskStrategy, error) {
	built := make(map[mask.Name]ports.MaskStrategy, len(names))
	for _, name := range names {
		s, err := New(name, Options{NNRuns: nnRuns, Rand: rngs.Stream(string(name), seed)})
		if err != nil {
			return nil, err
		}
		built[name] = s
	}
	return built, nil
}

// Reset clears a strategy's state; a nil strategy is a no-op
func Reset(s ports.MaskStrategy) {
	if s != nil {
		s.Reset()
	}
}
