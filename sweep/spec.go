package sweep

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Spacing determines how sweep frequencies are distributed between the
// start and stop frequency
type Spacing int

const (
	// Logarithmic spaces points as a geometric progression, the usual
	// choice for a Bode plot
	Logarithmic Spacing = iota

	// Linear spaces points as an arithmetic progression
	Linear
)

func (s Spacing) String() string {
	switch s {
	case Linear:
		return "linear"
	default:
		return "logarithmic"
	}
}

// ParseSpacing converts a string from a config file or HTTP request to a
// Spacing value
func ParseSpacing(s string) (Spacing, error) {
	switch strings.ToLower(s) {
	case "log", "logarithmic", "":
		return Logarithmic, nil
	case "lin", "linear":
		return Linear, nil
	}
	return Logarithmic, fmt.Errorf("unknown spacing %q, expected linear or logarithmic", s)
}

// Spec is the immutable configuration for one sweep.  It is passed by value;
// the engine never mutates it.
type Spec struct {
	// Start is the first frequency in Hz, > 0
	Start float64

	// Stop is the last frequency in Hz, > Start
	Stop float64

	// Points is the number of frequencies to visit, >= 2
	Points int

	// Spacing selects logarithmic or linear point distribution
	Spacing Spacing

	// Amplitude is the stimulus amplitude in volts peak-peak
	Amplitude float64

	// Settle is how long to wait after changing the stimulus before a
	// capture is trusted
	Settle time.Duration

	// MaxRetries is the number of additional attempts per point after the
	// first failure, for both stimulus commands and acquisitions
	MaxRetries int

	// MaxGain bounds plausible measurements: captures above
	// MaxGain*Amplitude are treated as instrument glitches and retried.
	// Zero means the default of 1000.
	MaxGain float64
}

// DefaultMaxGain is the plausibility bound used when Spec.MaxGain is zero
const DefaultMaxGain = 1000.0

// Validate checks the Spec invariants.  All violations are reported wrapped
// in ErrInvalidSpec, before any instrument I/O takes place.
func (s Spec) Validate() error {
	if s.Start <= 0 {
		return fmt.Errorf("%w: start frequency must be > 0 Hz, got %G", ErrInvalidSpec, s.Start)
	}
	if s.Stop <= s.Start {
		return fmt.Errorf("%w: stop frequency (%G) must exceed start (%G)", ErrInvalidSpec, s.Stop, s.Start)
	}
	if s.Points < 2 {
		return fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidSpec, s.Points)
	}
	if s.Amplitude <= 0 {
		return fmt.Errorf("%w: stimulus amplitude must be > 0 Vpp, got %G", ErrInvalidSpec, s.Amplitude)
	}
	if s.Settle < 0 {
		return fmt.Errorf("%w: settle time must be non-negative, got %v", ErrInvalidSpec, s.Settle)
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be non-negative, got %d", ErrInvalidSpec, s.MaxRetries)
	}
	if s.MaxGain < 0 {
		return fmt.Errorf("%w: max gain must be non-negative, got %G", ErrInvalidSpec, s.MaxGain)
	}
	return nil
}

// maxGain returns the plausibility bound, substituting the default for zero
func (s Spec) maxGain() float64 {
	if s.MaxGain == 0 {
		return DefaultMaxGain
	}
	return s.MaxGain
}

// Budget returns a deterministic upper bound on the sweep duration, given an
// estimate of per-command instrument latency.  Callers can use it for their
// own timeout policy; the engine imposes none of its own.
func (s Spec) Budget(perCall time.Duration) time.Duration {
	return time.Duration(s.Points) * time.Duration(s.MaxRetries+1) * (s.Settle + perCall)
}

// Sequence is a lazy, restartable generator of sweep frequencies in
// ascending order
type Sequence struct {
	spec Spec
	i    int
}

// NewSequence materializes the frequency sequence for a spec.  The spec is
// assumed to have passed Validate.
func NewSequence(spec Spec) *Sequence {
	return &Sequence{spec: spec}
}

// Len returns the total number of points the sequence will generate
func (q *Sequence) Len() int {
	return q.spec.Points
}

// Reset rewinds the sequence to the first frequency
func (q *Sequence) Reset() {
	q.i = 0
}

// Next returns the next frequency in Hz, or false when the sequence is
// exhausted.  The first and last values are exactly Start and Stop; interior
// points follow a geometric (logarithmic spacing) or arithmetic (linear)
// progression.
func (q *Sequence) Next() (float64, bool) {
	n := q.spec.Points
	if q.i >= n {
		return 0, false
	}
	i := q.i
	q.i++
	switch {
	case i == 0:
		return q.spec.Start, true
	case i == n-1:
		return q.spec.Stop, true
	}
	if q.spec.Spacing == Linear {
		step := (q.spec.Stop - q.spec.Start) / float64(n-1)
		return q.spec.Start + float64(i)*step, true
	}
	ratio := math.Pow(q.spec.Stop/q.spec.Start, 1/float64(n-1))
	return q.spec.Start * math.Pow(ratio, float64(i)), true
}
