/*Package sweep implements the frequency sweep measurement engine at the
core of this module.

The engine steps a stimulus generator through a sequence of frequencies,
waits for the circuit under test and the capture instrument to settle,
acquires an amplitude (and optionally phase) sample at each point, and
assembles an ordered frequency response curve.  Controllers are injected as
interfaces so the engine can be exercised against package sim without any
hardware on the bench.

Control flow is strictly sequential: both instruments share a narrow
request/response link with one command in flight at a time, so there is
nothing to interleave and no locking around the result series.  The only
waits are the settle delay and the acquisition-completion wait inside the
capture controller.
*/
package sweep

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/nasa-jpl/bodesweep/bode"
)

// Stimulus is the controller for the waveform generator.  Implementations
// are stateless per-call wrappers over an instrument link; set operations
// must verify by read-back that the setting took effect, since some
// instruments silently clamp out-of-range requests.
type Stimulus interface {
	// SetFunction selects the output waveform shape, e.g. "SIN"
	SetFunction(fcn string) error

	// SetFrequency commands the output frequency in Hz
	SetFrequency(hz float64) error

	// SetVoltage commands the output amplitude in volts peak-peak
	SetVoltage(voltsPP float64) error

	// EnableOutput begins outputting the signal on the front connector
	EnableOutput() error
}

// Capture is the controller for the response instrument (scope or DMM).
// Acquire must force a fresh trigger and wait for acquisition to complete
// before reading, so a stale buffer from the previous point can never be
// returned.
type Capture interface {
	// Prepare adjusts per-frequency acquisition settings (e.g. the scope
	// timebase) before the settle wait.  Instruments with nothing to
	// adjust return nil.
	Prepare(freqHz float64) error

	// Acquire triggers a one-shot acquisition and reads one measurement
	Acquire() (bode.Measurement, error)
}

// State is the engine's position in its lifecycle.  It is observable from
// other goroutines while Run blocks.
type State int32

// The engine states.  Failed is terminal and only reached when the stimulus
// cannot be configured at all; per-point failures record a gap and continue.
const (
	Idle State = iota
	Configuring
	Stepping
	Settling
	Acquiring
	Recording
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Stepping:
		return "stepping"
	case Settling:
		return "settling"
	case Acquiring:
		return "acquiring"
	case Recording:
		return "recording"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Engine drives one sweep at a time.  It owns the frequency sequence and is
// the sole constructor of the result series; the controllers own no sweep
// state.  Engines must be created with New.
type Engine struct {
	stim Stimulus
	cap  Capture

	state     int32
	cancelled int32
}

// New returns an Engine using the given controllers
func New(stim Stimulus, cap Capture) *Engine {
	return &Engine{stim: stim, cap: cap}
}

// State returns the engine's current state.  Safe to call from another
// goroutine while Run blocks.
func (e *Engine) State() State {
	return State(atomic.LoadInt32(&e.state))
}

func (e *Engine) setState(s State) {
	atomic.StoreInt32(&e.state, int32(s))
}

// Cancel requests that the running sweep stop.  The abort happens between
// points, never mid-point, so the stimulus is not left in an inconsistent
// state; Run then returns the partial series with its Cancelled flag set.
// Cancel when no sweep is running has no effect.
func (e *Engine) Cancel() {
	atomic.StoreInt32(&e.cancelled, 1)
}

func (e *Engine) cancelRequested() bool {
	return atomic.LoadInt32(&e.cancelled) == 1
}

// withRetry runs op up to retries+1 times, returning nil on the first
// success or the last error
func withRetry(retries int, op func() error) error {
	var err error
	for i := 0; i <= retries; i++ {
		err = op()
		if err == nil {
			return nil
		}
	}
	return err
}

// Run executes one sweep and blocks until it is done, failed, or cancelled.
//
// The returned series has exactly one entry per generated frequency, in
// strictly increasing frequency order; points that exhausted their retry
// budget are present with Valid=false.  Run only returns a non-nil error
// for an invalid spec (no instrument I/O performed) or a stimulus that
// could not be configured at all.
func (e *Engine) Run(spec Spec) (bode.ResultSeries, error) {
	var series bode.ResultSeries
	e.setState(Configuring)
	if err := spec.Validate(); err != nil {
		e.setState(Idle)
		return series, err
	}
	atomic.StoreInt32(&e.cancelled, 0)

	// put the generator in a known state before the first point; if this
	// cannot be done the whole sweep is worthless
	err := withRetry(spec.MaxRetries, func() error {
		if err := e.stim.SetFunction("SIN"); err != nil {
			return err
		}
		if err := e.stim.SetVoltage(spec.Amplitude); err != nil {
			return err
		}
		return e.stim.EnableOutput()
	})
	if err != nil {
		e.setState(Failed)
		return series, fmt.Errorf("%w: %v", ErrEngineFatal, err)
	}

	seq := NewSequence(spec)
	series.Points = make([]bode.ResultPoint, 0, seq.Len())
	maxVpp := spec.maxGain() * spec.Amplitude

	for {
		if e.cancelRequested() {
			series.Cancelled = true
			e.setState(Done)
			return series, nil
		}
		e.setState(Stepping)
		freq, ok := seq.Next()
		if !ok {
			break
		}
		err := withRetry(spec.MaxRetries, func() error {
			return e.stim.SetFrequency(freq)
		})
		if err != nil {
			// the generator is still controllable in general (it was
			// configured above), so record a gap and move on
			series.Points = append(series.Points, invalidPoint(freq, bode.Measurement{}))
			continue
		}

		m, ok := e.acquire(spec, freq, maxVpp)
		e.setState(Recording)
		if !ok {
			series.Points = append(series.Points, invalidPoint(freq, m))
			continue
		}
		if m.VIn == 0 {
			// reference channel not measured; the commanded amplitude
			// is the reference
			m.VIn = spec.Amplitude
		}
		m.Valid = true
		pt := bode.ResultPoint{
			Frequency: freq,
			GainDB:    bode.GainDB(m.VOut, m.VIn),
			HasPhase:  m.HasPhase,
			Valid:     true,
			Source:    m,
		}
		if m.HasPhase {
			pt.PhaseDeg = bode.WrapPhase(m.Phase)
		}
		series.Points = append(series.Points, pt)
	}
	e.setState(Done)
	return series, nil
}

// acquire runs the settle+capture loop for one point, retrying implausible
// or failed readings with a fresh settle each time
func (e *Engine) acquire(spec Spec, freq, maxVpp float64) (bode.Measurement, bool) {
	var last bode.Measurement
	for attempt := 0; attempt <= spec.MaxRetries; attempt++ {
		e.setState(Settling)
		if err := e.cap.Prepare(freq); err != nil {
			continue
		}
		time.Sleep(spec.Settle)
		e.setState(Acquiring)
		m, err := e.cap.Acquire()
		if err != nil {
			continue
		}
		last = m
		if m.VOut <= 0 || m.VOut >= maxVpp {
			// implausible reading; scopes occasionally produce garbage
			// peak-peak values, and a zero would put -Inf in the series
			continue
		}
		if m.VIn < 0 {
			// peak-peak is a magnitude; a negative reference reading is
			// garbage and would put NaN in the gain
			continue
		}
		return m, true
	}
	return last, false
}

func invalidPoint(freq float64, m bode.Measurement) bode.ResultPoint {
	return bode.ResultPoint{
		Frequency: freq,
		GainDB:    math.Inf(-1),
		Valid:     false,
		Source:    m,
	}
}
