// Package agilent provides an interface to Agilent/Keysight function
// generators, the 33500 series in particular
package agilent

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/tarm/serial"

	"github.com/nasa-jpl/bodesweep/comm"
	"github.com/nasa-jpl/bodesweep/scpi"
)

// VerifyTolerance is the relative mismatch between a commanded value and
// its read-back beyond which a set operation is reported failed.  Some
// generators silently clamp out-of-range requests, and a silent clamp must
// not be mistaken for success.
const VerifyTolerance = 1e-3

// makeSerConf makes a new serial.Config with correct parity, baud, etc, set.
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        57600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 1 * time.Minute}
}

// FunctionGenerator is an interface to hardware of the same name
type FunctionGenerator struct {
	scpi.SCPI
}

// NewFunctionGenerator creates a new FunctionGenerator instance talking
// TCP to addr
func NewFunctionGenerator(addr string) *FunctionGenerator {
	maker := comm.BackingOffTCPConnMaker(addr, time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &FunctionGenerator{scpi.SCPI{Pool: pool}}
}

// NewFunctionGeneratorSerial creates a new FunctionGenerator on an RS232
// port, e.g. /dev/ttyS4
func NewFunctionGeneratorSerial(addr string) *FunctionGenerator {
	maker := comm.SerialConnMaker(makeSerConf(addr))
	pool := comm.NewPool(1, time.Hour, maker)
	return &FunctionGenerator{scpi.SCPI{Pool: pool}}
}

// verified writes a set command, reads the value back with the matching
// query, and errors if the instrument did not land within VerifyTolerance
// of the commanded value
func (f *FunctionGenerator) verified(cmd, query string, value float64) error {
	s := strconv.FormatFloat(value, 'G', -1, 64)
	err := f.Write(cmd, s)
	if err != nil {
		return err
	}
	got, err := f.ReadFloat(query)
	if err != nil {
		return err
	}
	if math.Abs(got-value) > VerifyTolerance*math.Abs(value) {
		return fmt.Errorf("commanded %s %s but instrument reports %G", cmd, s, got)
	}
	return nil
}

// SetFunction configures the output function used by the generator
func (f *FunctionGenerator) SetFunction(fcn string) error {
	// FUNC <fcn>
	err := f.Write("FUNC", fcn)
	if err != nil {
		return err
	}
	got, err := f.GetFunction()
	if err != nil {
		return err
	}
	if got != fcn {
		return fmt.Errorf("commanded function %s but instrument reports %s", fcn, got)
	}
	return nil
}

// GetFunction returns the current function type used by the generator
func (f *FunctionGenerator) GetFunction() (string, error) {
	// FUNC?
	return f.ReadString("FUNC?")
}

// SetFrequency configures the output frequency of the generator in Hz,
// verifying the setting took effect
func (f *FunctionGenerator) SetFrequency(hz float64) error {
	// FREQ <Hz>
	return f.verified("FREQ", "FREQ?", hz)
}

// GetFrequency returns the frequency of the generator in Hz
func (f *FunctionGenerator) GetFrequency() (float64, error) {
	// FREQ?
	return f.ReadFloat("FREQ?")
}

// SetVoltage configures the output amplitude (Vpp) of the signal,
// verifying the setting took effect
func (f *FunctionGenerator) SetVoltage(volts float64) error {
	// VOLT <volts Vpp>
	return f.verified("VOLT", "VOLT?", volts)
}

// GetVoltage returns the current output voltage of the generator
func (f *FunctionGenerator) GetVoltage() (float64, error) {
	// VOLT?
	return f.ReadFloat("VOLT?")
}

// SetOffset configures the output voltage offset
func (f *FunctionGenerator) SetOffset(volts float64) error {
	// VOLT:OFFS <volts>
	s := strconv.FormatFloat(volts, 'G', -1, 64)
	return f.Write("VOLT:OFFS", s)
}

// GetOffset gets the current voltage offset
func (f *FunctionGenerator) GetOffset() (float64, error) {
	// VOLT:OFFS?
	return f.ReadFloat("VOLT:OFFS?")
}

// SetPhase configures the output phase of the generator in degrees
func (f *FunctionGenerator) SetPhase(deg float64) error {
	// PHAS <deg>
	s := strconv.FormatFloat(deg, 'G', -1, 64)
	return f.Write("PHAS", s)
}

// SetOutputLoad configures the adjustments inside the generator for the
// impedance of the load circuit
func (f *FunctionGenerator) SetOutputLoad(ohms float64) error {
	// OUTP:LOAD <ohms>
	s := strconv.FormatFloat(ohms, 'G', -1, 64)
	return f.Write("OUTP:LOAD", s)
}

// EnableOutput enables the output on the front connector of the function generator
func (f *FunctionGenerator) EnableOutput() error {
	// OUTP ON
	return f.Write("OUTP ON")
}

// DisableOutput disables the output on the front connector of the function generator
func (f *FunctionGenerator) DisableOutput() error {
	// OUTP OFF
	return f.Write("OUTP OFF")
}

// GetOutput returns True if the generator is currently outputting a signal
func (f *FunctionGenerator) GetOutput() (bool, error) {
	// OUTP?
	return f.ReadBool("OUTP?")
}
