package engine

import "errors"

// Error taxonomy. InsufficientData and UpstreamUnavailable degrade to
// neutral outcomes inside the cycle and never reach callers; these
// sentinels classify the failures that do.
var (
	// ErrInvalidInput rejects a malformed cycle request (empty asset,
	// non-positive portfolio value).
	ErrInvalidInput = errors.New("invalid input")

	// ErrCycleInFlight rejects an overlapping cycle for the same asset.
	ErrCycleInFlight = errors.New("cycle already in flight for asset")

	// ErrSafetyBreach marks a drawdown breach. The cycle that trips it
	// still returns its decision; subsequent entries are blocked.
	ErrSafetyBreach = errors.New("safety breach")
)
