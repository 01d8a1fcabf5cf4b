// Package rigol provides an interface to Rigol DS1000Z series oscilloscopes
package rigol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/bodesweep/bode"
	"github.com/nasa-jpl/bodesweep/comm"
	"github.com/nasa-jpl/bodesweep/scpi"
	"github.com/nasa-jpl/bodesweep/sweep"
)

const (
	minTimebase     = 100e-6
	cyclesPerRecord = 10

	pollInterval = 50 * time.Millisecond
	pollBudget   = 100
)

// Scope is an interface to a Rigol oscilloscope.  Channel is the channel
// number probing the circuit output, e.g. "1".  InputChannel optionally
// probes the stimulus for measured-input and phase readings.
type Scope struct {
	scpi.SCPI

	Channel      string
	InputChannel string

	limiter *rate.Limiter
}

// NewScope creates a new scope instance talking to addr
func NewScope(addr, channel string) *Scope {
	maker := comm.BackingOffTCPConnMaker(addr, 1*time.Second)
	pool := comm.NewPool(1, time.Hour, maker)
	return &Scope{
		SCPI:    scpi.SCPI{Pool: pool},
		Channel: channel,
		limiter: rate.NewLimiter(rate.Every(pollInterval), 1),
	}
}

// SetCoupling sets the coupling of a channel, e.g. "AC"
func (s *Scope) SetCoupling(channel, coupling string) error {
	return s.Write(fmt.Sprintf(":CHAN%s:COUP %s", channel, coupling))
}

// SetScale sets the vertical scale of a channel in volts per division
func (s *Scope) SetScale(channel string, volts float64) error {
	return s.Write(fmt.Sprintf(":CHAN%s:SCAL %G", channel, volts))
}

// SetTriggerLevel sets the edge trigger level in volts
func (s *Scope) SetTriggerLevel(volts float64) error {
	return s.Write(fmt.Sprintf(":TRIGger:EDGE:LEV %G", volts))
}

// SetTimebase sets the horizontal scale in seconds per division and
// returns the scale the scope actually selected
func (s *Scope) SetTimebase(secPerDiv float64) (float64, error) {
	err := s.Write(fmt.Sprintf(":TIM:SCAL %G", secPerDiv))
	if err != nil {
		return 0, err
	}
	return s.ReadFloat(":TIM:SCAL?")
}

// Single starts a single acquisition in normal mode
func (s *Scope) Single() error {
	err := s.Write("ACQ:TYPE NORM")
	if err != nil {
		return err
	}
	return s.Write("SING")
}

// ClearMeasurements discards measurement history so a read cannot return
// the previous acquisition's values
func (s *Scope) ClearMeasurements() error {
	return s.Write(":MEAS:CLEAR")
}

// WaitAcqComplete polls the trigger status until the scope reports STOP
func (s *Scope) WaitAcqComplete() error {
	for i := 0; i < pollBudget; i++ {
		if err := s.limiter.Wait(context.Background()); err != nil {
			return err
		}
		status, err := s.ReadString(":TRIG:STAT?")
		if err != nil {
			return err
		}
		if strings.TrimSpace(status) == "STOP" {
			return nil
		}
	}
	return fmt.Errorf("acquisition did not complete within %v", time.Duration(pollBudget)*pollInterval)
}

// PeakToPeak reads the peak-peak voltage measured on a channel
func (s *Scope) PeakToPeak(channel string) (float64, error) {
	return s.ReadFloat(fmt.Sprintf(":MEAS:ITEM? VPP,CHAN%s", channel))
}

// PhaseBetween reads the rising-edge phase in degrees between two channels
func (s *Scope) PhaseBetween(chA, chB string) (float64, error) {
	return s.ReadFloat(fmt.Sprintf(":MEAS:ITEM? RPH,CHAN%s,CHAN%s", chA, chB))
}

// Prepare implements the sweep capture contract by rescaling the timebase
// for the frequency about to be measured
func (s *Scope) Prepare(freqHz float64) error {
	tb := cyclesPerRecord / freqHz
	if tb < minTimebase {
		tb = minTimebase
	}
	_, err := s.SetTimebase(tb)
	return err
}

// Acquire triggers a fresh single acquisition, waits for completion, and
// reads the measurement
func (s *Scope) Acquire() (bode.Measurement, error) {
	var m bode.Measurement
	err := s.Single()
	if err != nil {
		return m, err
	}
	err = s.ClearMeasurements()
	if err != nil {
		return m, err
	}
	err = s.WaitAcqComplete()
	if err != nil {
		return m, err
	}
	vpp, err := s.PeakToPeak(s.Channel)
	if err != nil {
		return m, err
	}
	if vpp < 0 {
		return m, sweep.OutOfRangeError{Value: vpp, Low: 0}
	}
	m.VOut = vpp
	if s.InputChannel == "" {
		return m, nil
	}
	vin, err := s.PeakToPeak(s.InputChannel)
	if err != nil {
		return m, err
	}
	if vin < 0 {
		return m, sweep.OutOfRangeError{Value: vin, Low: 0}
	}
	m.VIn = vin
	phase, err := s.PhaseBetween(s.InputChannel, s.Channel)
	if err != nil {
		return m, err
	}
	m.Phase = phase
	m.HasPhase = true
	return m, nil
}
