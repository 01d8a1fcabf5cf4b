// Package keysight provides remote interfaces to Keysight bench instruments
package keysight

import (
	"fmt"
	"math"
	"time"

	"github.com/nasa-jpl/bodesweep/bode"
	"github.com/nasa-jpl/bodesweep/comm"
	"github.com/nasa-jpl/bodesweep/scpi"
	"github.com/nasa-jpl/bodesweep/sweep"
)

// rmsToPkPk converts an AC RMS reading of a sinusoid to peak-peak
const rmsToPkPk = 2 * math.Sqrt2

// verifyTolerance is the relative mismatch between a commanded value and its
// read-back beyond which the set is considered to have failed
const verifyTolerance = 1e-3

// Multimeter is a remote interface to the 34470A and other DMMs with the
// same SCPI interface
type Multimeter struct {
	scpi.SCPI
}

// NewMultimeter creates a new multimeter instance talking to addr
func NewMultimeter(addr string) *Multimeter {
	maker := comm.BackingOffTCPConnMaker(addr, 1*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &Multimeter{scpi.SCPI{Pool: pool}}
}

// ConfigureACVolts sets up the meter for AC voltage measurement with
// autoranging
func (m *Multimeter) ConfigureACVolts() error {
	return m.Write("CONF:VOLT:AC")
}

// Read triggers a measurement and returns it in the configured function's
// units, volts RMS for AC voltage
func (m *Multimeter) Read() (float64, error) {
	return m.ReadFloat("READ?")
}

// Prepare implements the sweep capture contract.  A DMM has no timebase, so
// there is nothing frequency dependent to do.
func (m *Multimeter) Prepare(freqHz float64) error {
	return nil
}

// Acquire reads the AC voltage and converts RMS to peak-peak.  A DMM has no
// second channel, so the measurement never carries phase.
func (m *Multimeter) Acquire() (bode.Measurement, error) {
	var meas bode.Measurement
	rms, err := m.Read()
	if err != nil {
		return meas, err
	}
	if rms < 0 {
		return meas, sweep.OutOfRangeError{Value: rms, Low: 0}
	}
	meas.VOut = rms * rmsToPkPk
	return meas, nil
}

// PowerSupply is a remote interface to the E36234A and similar programmable
// supplies
type PowerSupply struct {
	scpi.SCPI
}

// NewPowerSupply creates a new power supply instance talking to addr
func NewPowerSupply(addr string) *PowerSupply {
	maker := comm.BackingOffTCPConnMaker(addr, 1*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &PowerSupply{scpi.SCPI{Pool: pool}}
}

// verified writes a set command and reads the value back, erroring if the
// instrument silently clamped or rejected it
func (p *PowerSupply) verified(cmd, query string, value float64) error {
	err := p.Write(fmt.Sprintf("%s %G", cmd, value))
	if err != nil {
		return err
	}
	got, err := p.ReadFloat(query)
	if err != nil {
		return err
	}
	if math.Abs(got-value) > verifyTolerance*math.Max(math.Abs(value), 1) {
		return fmt.Errorf("commanded %s %G but instrument reports %G", cmd, value, got)
	}
	return nil
}

// SetVoltage sets the output voltage setpoint in volts
func (p *PowerSupply) SetVoltage(volts float64) error {
	return p.verified("VOLT", "VOLT?", volts)
}

// GetVoltage returns the output voltage setpoint in volts
func (p *PowerSupply) GetVoltage() (float64, error) {
	return p.ReadFloat("VOLT?")
}

// SetCurrentLimit sets the current limit in amps
func (p *PowerSupply) SetCurrentLimit(amps float64) error {
	return p.verified("CURR", "CURR?", amps)
}

// GetCurrentLimit returns the current limit in amps
func (p *PowerSupply) GetCurrentLimit() (float64, error) {
	return p.ReadFloat("CURR?")
}

// EnableOutput turns the output on
func (p *PowerSupply) EnableOutput() error {
	return p.Write("OUTP ON")
}

// DisableOutput turns the output off
func (p *PowerSupply) DisableOutput() error {
	return p.Write("OUTP OFF")
}

// GetOutput returns whether the output is on
func (p *PowerSupply) GetOutput() (bool, error) {
	return p.ReadBool("OUTP?")
}
