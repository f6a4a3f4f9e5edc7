package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrInvalidDropoutRate = errors.New("dropout rate must lie in [0, 1)")
	ErrInsufficientData   = errors.New("insufficient data for estimation")
	ErrNonScalarOutput    = errors.New("predictor output is not scalar per sample")
	ErrUnknownStrategy    = errors.New("unknown mask strategy")
	ErrUnknownEstimator   = errors.New("unknown estimator")

	// Strategy state errors
	ErrSequenceExhausted = errors.New("mask sequence exhausted")
	ErrWidthMismatch     = errors.New("activation width does not match cached layer state")

	// Numeric errors
	ErrInvalidKernel      = errors.New("invalid DPP kernel")
	ErrSingularCovariance = errors.New("train covariance is singular")

	// Ledger errors
	ErrRunNotFound = errors.New("run not found")
)

// NewDropoutRateError reports an out-of-range dropout rate
func NewDropoutRateError(rate float64) error {
	return fmt.Errorf("%w: got %g", ErrInvalidDropoutRate, rate)
}

// NewWidthMismatchError reports a cached layer observed with a different width
func NewWidthMismatchError(layer, cached, got int) error {
	return fmt.Errorf("%w: layer %d cached width %d, got %d", ErrWidthMismatch, layer, cached, got)
}

// Error checking helpers
func IsNumericError(err error) bool {
	return errors.Is(err, ErrInvalidKernel) ||
		errors.Is(err, ErrSingularCovariance)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidDropoutRate) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrNonScalarOutput) ||
		errors.Is(err, ErrUnknownStrategy) ||
		errors.Is(err, ErrUnknownEstimator)
}

func IsStateError(err error) bool {
	return errors.Is(err, ErrSequenceExhausted) ||
		errors.Is(err, ErrWidthMismatch)
}
