package run

import (
	"fmt"
	"strconv"

	"gouncertain/domain/core"
	"gouncertain/domain/mask"
)

// Knobs are the determinism parameters of one estimation run
type Knobs struct {
	Strategy    mask.Name `json:"strategy"`
	Estimator   string    `json:"estimator"`
	NNRuns      int       `json:"nn_runs"`
	DropoutRate float64   `json:"dropout_rate"`
	DiagEps     float64   `json:"diag_eps"`
	Seed        uint64    `json:"seed"`
}

// Fingerprint hashes the knobs together with the shape of the inputs, so two
// runs with equal fingerprints drew from identical configurations
func (k Knobs) Fingerprint(poolLen, trainLen int) core.Hash {
	return core.HashParams(map[string]string{
		"strategy":     string(k.Strategy),
		"estimator":    k.Estimator,
		"nn_runs":      strconv.Itoa(k.NNRuns),
		"dropout_rate": strconv.FormatFloat(k.DropoutRate, 'g', -1, 64),
		"diag_eps":     strconv.FormatFloat(k.DiagEps, 'g', -1, 64),
		"seed":         strconv.FormatUint(k.Seed, 10),
		"pool_len":     strconv.Itoa(poolLen),
		"train_len":    strconv.Itoa(trainLen),
	})
}

// Manifest records what an estimation run did. It is returned alongside the
// scores by the CLI and HTTP surfaces.
type Manifest struct {
	RunID       core.RunID     `json:"run_id"`
	Knobs       Knobs          `json:"knobs"`
	PoolLen     int            `json:"pool_len"`
	TrainLen    int            `json:"train_len"`
	Fingerprint core.Hash      `json:"fingerprint"`
	CreatedAt   core.Timestamp `json:"created_at"`
}

// NewManifest stamps a fresh run
func NewManifest(knobs Knobs, poolLen, trainLen int) *Manifest {
	return &Manifest{
		RunID:       core.NewRunID(),
		Knobs:       knobs,
		PoolLen:     poolLen,
		TrainLen:    trainLen,
		Fingerprint: knobs.Fingerprint(poolLen, trainLen),
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if m.RunID.String() == "" {
		return fmt.Errorf("run manifest: run_id cannot be empty")
	}
	if m.Fingerprint.IsEmpty() {
		return fmt.Errorf("run manifest: fingerprint cannot be empty")
	}
	if m.Knobs.NNRuns <= 0 {
		return fmt.Errorf("run manifest: nn_runs must be positive")
	}
	if err := mask.ValidateRate(m.Knobs.DropoutRate); err != nil {
		return fmt.Errorf("run manifest: %w", err)
	}
	if m.PoolLen == 0 {
		return fmt.Errorf("run manifest: %w: empty pool", core.ErrInsufficientData)
	}
	return nil
}

// Result pairs a manifest with its per-sample scores, in pool order
type Result struct {
	Manifest *Manifest `json:"run"`
	Scores   []float64 `json:"scores"`
}
