// Package sim provides a simulated stimulus/capture instrument pair for
// development and tests without hardware on the bench
package sim

import (
	"errors"
	"math"

	"github.com/nasa-jpl/bodesweep/bode"
)

// Circuit is a first-order RC low-pass model of the device under test
type Circuit struct {
	// CutoffHz is the -3 dB corner frequency
	CutoffHz float64
}

// Gain returns the linear amplitude ratio at a frequency
func (c Circuit) Gain(hz float64) float64 {
	r := hz / c.CutoffHz
	return 1 / math.Sqrt(1+r*r)
}

// PhaseDeg returns the phase shift in degrees at a frequency
func (c Circuit) PhaseDeg(hz float64) float64 {
	return -math.Atan(hz/c.CutoffHz) * 180 / math.Pi
}

// Bench ties a simulated generator and scope to a circuit model, the way a
// real generator and scope share a device under test.  The zero Bench is
// not usable; create one with NewBench.
type Bench struct {
	circuit Circuit

	freq   float64
	amp    float64
	offset float64
	output bool

	// MaxAmplitude models a generator that silently clamps requests
	// beyond its range; zero means no clamping
	MaxAmplitude float64
}

// NewBench returns a bench with the given circuit under test
func NewBench(c Circuit) *Bench {
	return &Bench{circuit: c}
}

// Stimulus returns the generator side of the bench
func (b *Bench) Stimulus() *Stimulus {
	return &Stimulus{b: b}
}

// Capture returns the scope side of the bench
func (b *Bench) Capture() *Capture {
	return &Capture{b: b}
}

// Stimulus is the simulated function generator.  It satisfies the sweep
// engine's stimulus contract, including read-back verification semantics:
// a clamped amplitude is reported back clamped.
type Stimulus struct {
	b *Bench
}

// SetFunction accepts any waveform shape; the model is sine-only
func (s *Stimulus) SetFunction(string) error {
	return nil
}

// GetFunction reports the waveform shape, which is always sine
func (s *Stimulus) GetFunction() (string, error) {
	return "SIN", nil
}

// SetFrequency commands the bench frequency
func (s *Stimulus) SetFrequency(hz float64) error {
	if hz <= 0 {
		return errors.New("frequency out of range")
	}
	s.b.freq = hz
	return nil
}

// SetVoltage commands the stimulus amplitude, clamping at MaxAmplitude
// the way real generators do
func (s *Stimulus) SetVoltage(voltsPP float64) error {
	if s.b.MaxAmplitude > 0 && voltsPP > s.b.MaxAmplitude {
		voltsPP = s.b.MaxAmplitude
	}
	s.b.amp = voltsPP
	return nil
}

// GetFrequency reads back the commanded frequency
func (s *Stimulus) GetFrequency() (float64, error) {
	return s.b.freq, nil
}

// GetVoltage reads back the (possibly clamped) amplitude
func (s *Stimulus) GetVoltage() (float64, error) {
	return s.b.amp, nil
}

// SetOffset commands the DC offset
func (s *Stimulus) SetOffset(volts float64) error {
	s.b.offset = volts
	return nil
}

// GetOffset reads back the DC offset
func (s *Stimulus) GetOffset() (float64, error) {
	return s.b.offset, nil
}

// EnableOutput turns the simulated output on
func (s *Stimulus) EnableOutput() error {
	s.b.output = true
	return nil
}

// DisableOutput turns the simulated output off
func (s *Stimulus) DisableOutput() error {
	s.b.output = false
	return nil
}

// GetOutput reports whether the simulated output is on
func (s *Stimulus) GetOutput() (bool, error) {
	return s.b.output, nil
}

// Capture is the simulated response instrument
type Capture struct {
	b *Bench

	// FailFirst makes the next n acquisitions fail, to exercise the
	// engine's retry policy
	FailFirst int

	// FailAt schedules failures per stimulus frequency: acquisitions at a
	// listed frequency fail until its count is consumed
	FailAt map[float64]int
}

// Prepare has nothing to adjust on the simulated scope
func (c *Capture) Prepare(float64) error {
	return nil
}

// Acquire measures the circuit output for the current bench state
func (c *Capture) Acquire() (bode.Measurement, error) {
	if c.FailFirst > 0 {
		c.FailFirst--
		return bode.Measurement{}, errors.New("acquisition did not complete")
	}
	if n := c.FailAt[c.b.freq]; n > 0 {
		c.FailAt[c.b.freq] = n - 1
		return bode.Measurement{}, errors.New("acquisition did not complete")
	}
	if !c.b.output {
		// nothing driving the circuit; a real scope would read noise
		return bode.Measurement{}, nil
	}
	return bode.Measurement{
		VIn:      c.b.amp,
		VOut:     c.b.amp * c.b.circuit.Gain(c.b.freq),
		Phase:    c.b.circuit.PhaseDeg(c.b.freq),
		HasPhase: true,
	}, nil
}
