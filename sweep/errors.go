package sweep

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSpec is returned by Run before any instrument I/O when the
	// Spec violates its invariants.  The configuration must be fixed by
	// the caller.
	ErrInvalidSpec = errors.New("invalid sweep specification")

	// ErrEngineFatal is returned when the stimulus cannot be configured at
	// all, e.g. the link to the generator is lost.  A sweep with no working
	// stimulus has no value, so this aborts rather than recording gaps.
	ErrEngineFatal = errors.New("stimulus could not be configured")
)

// OutOfRangeError indicates a captured value outside plausible bounds, e.g.
// a non-positive peak-peak voltage or an amplitude implying a gain beyond
// the configured maximum.  It is retryable; after the retry budget is spent
// the affected point is recorded invalid and the sweep continues.
type OutOfRangeError struct {
	Value float64
	Low   float64
	High  float64
}

func (e OutOfRangeError) Error() string {
	if e.High > e.Low {
		return fmt.Sprintf("measured %G V outside plausible range (%G, %G)", e.Value, e.Low, e.High)
	}
	return fmt.Sprintf("measured %G V, below the plausible floor of %G", e.Value, e.Low)
}
