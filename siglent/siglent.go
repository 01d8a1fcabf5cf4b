// Package siglent provides an interface to Siglent SDS series oscilloscopes
// using their native (non Tek-compatible) command set
package siglent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasa-jpl/bodesweep/bode"
	"github.com/nasa-jpl/bodesweep/comm"
	"github.com/nasa-jpl/bodesweep/scpi"
	"github.com/nasa-jpl/bodesweep/sweep"
)

const (
	// minTimebase is the shortest horizontal scale used for a capture;
	// below this the record holds too few cycles to measure reliably
	minTimebase = 100e-6

	// cyclesPerRecord sets the horizontal scale so roughly this many
	// stimulus cycles fit one division
	cyclesPerRecord = 10

	pollInterval = 50 * time.Millisecond
	pollBudget   = 100 // polls per acquisition before giving up
)

// Scope is an interface to a Siglent oscilloscope.  Channel is the channel
// probing the circuit output, e.g. "C1".  InputChannel optionally probes
// the stimulus; when set, acquisitions measure the actual input amplitude
// and the phase between the two channels.
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

// SetCoupling sets the coupling of a channel, e.g. "A1M" for AC 1MOhm
func (s *Scope) SetCoupling(channel, coupling string) error {
	return s.Write(fmt.Sprintf("%s:CPL %s", channel, coupling))
}

// SetVoltsPerDiv sets the vertical scale of a channel in volts per division
func (s *Scope) SetVoltsPerDiv(channel string, volts float64) error {
	return s.Write(fmt.Sprintf("%s:VDIV %GV", channel, volts))
}

// SetTriggerLevel sets the trigger level of a channel in volts
func (s *Scope) SetTriggerLevel(channel string, volts float64) error {
	return s.Write(fmt.Sprintf("%s:TRIG_LEVEL %GV", channel, volts))
}

// SetTimebase sets the horizontal scale in seconds per division and
// returns the scale the scope actually selected; scopes snap to their
// 1-2-5 sequence rather than honoring arbitrary values
func (s *Scope) SetTimebase(secPerDiv float64) (float64, error) {
	err := s.Write(fmt.Sprintf("TDIV %G", secPerDiv))
	if err != nil {
		return 0, err
	}
	resp, err := s.ReadString("TDIV?")
	if err != nil {
		return 0, err
	}
	return parseTimebase(resp)
}

// parseTimebase converts a TDIV reply like "TDIV 2.00E-04S" or "2.00E-04S"
// to seconds
func parseTimebase(resp string) (float64, error) {
	resp = strings.TrimSpace(resp)
	if idx := strings.LastIndexByte(resp, ' '); idx >= 0 {
		resp = resp[idx+1:]
	}
	resp = strings.TrimSuffix(resp, "S")
	return strconv.ParseFloat(resp, 64)
}

// Arm starts a single acquisition in sampling mode
func (s *Scope) Arm() error {
	err := s.Write("ACQW SAMPLING")
	if err != nil {
		return err
	}
	return s.Write("ARM")
}

// ClearMeasurements discards the scope's measurement statistics so a read
// cannot return the previous acquisition's values
func (s *Scope) ClearMeasurements() error {
	return s.Write("PARAMETER_CLR")
}

// WaitAcqComplete polls the trigger status until the scope reports Stop,
// at a rate-limited cadence so the command link is not flooded
func (s *Scope) WaitAcqComplete() error {
	for i := 0; i < pollBudget; i++ {
		if err := s.limiter.Wait(context.Background()); err != nil {
			return err
		}
		status, err := s.ReadString("TRIG:STAT?")
		if err != nil {
			return err
		}
		if strings.TrimSpace(status) == "Stop" {
			return nil
		}
	}
	return fmt.Errorf("acquisition did not complete within %v", time.Duration(pollBudget)*pollInterval)
}

// PeakToPeak reads the peak-peak voltage measured on a channel
func (s *Scope) PeakToPeak(channel string) (float64, error) {
	resp, err := s.ReadString(fmt.Sprintf("%s:PAVA? PKPK", channel))
	if err != nil {
		return 0, err
	}
	return parsePAVA(resp)
}

// parsePAVA converts a reply like "C1:PAVA PKPK,2.34E+00V" to volts
func parsePAVA(resp string) (float64, error) {
	pieces := strings.Split(strings.TrimSpace(resp), ",")
	if len(pieces) < 2 {
		return 0, fmt.Errorf("malformed PAVA reply %q", resp)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(pieces[1], "V"), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed PAVA reply %q: %v", resp, err)
	}
	return v, nil
}

// PhaseBetween reads the phase in degrees between two channels
func (s *Scope) PhaseBetween(chA, chB string) (float64, error) {
	resp, err := s.ReadString(fmt.Sprintf("%s-%s:MEAD? PHA", chA, chB))
	if err != nil {
		return 0, err
	}
	return parseMEAD(resp)
}

// parseMEAD converts a reply like "C1-C2:MEAD PHA,45.32degree" to degrees
func parseMEAD(resp string) (float64, error) {
	pieces := strings.Split(strings.TrimSpace(resp), ",")
	if len(pieces) < 2 {
		return 0, fmt.Errorf("malformed MEAD reply %q", resp)
	}
	return strconv.ParseFloat(strings.TrimSuffix(pieces[1], "degree"), 64)
}

// Prepare implements the sweep capture contract: rescale the timebase so a
// useful number of cycles lands in the record at this frequency
func (s *Scope) Prepare(freqHz float64) error {
	tb := cyclesPerRecord / freqHz
	if tb < minTimebase {
		tb = minTimebase
	}
	_, err := s.SetTimebase(tb)
	return err
}

// Acquire triggers a fresh single acquisition, waits for it to complete,
// and reads the measurement.  The fresh trigger plus the measurement clear
// guarantee a stale buffer from the previous point is never read.
func (s *Scope) Acquire() (bode.Measurement, error) {
	var m bode.Measurement
	err := s.Arm()
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
