// Package bode provides type definitions and units math for frequency
// response measurements
package bode

import "math"

// Measurement is a raw capture result at one frequency.  VIn is the reference
// (stimulus) amplitude and VOut the amplitude seen at the circuit output,
// both in volts peak-peak.  Phase is in degrees on the instrument's native
// range; HasPhase is false for instruments that cannot measure it (DMMs).
type Measurement struct {
	VIn      float64
	VOut     float64
	Phase    float64
	HasPhase bool
	Valid    bool
}

// GainDB computes the gain 20*log10(vout/vin) in decibels.  It is only
// defined for vin > 0 and vout >= 0; vout == 0 returns -Inf, which callers
// must flag invalid rather than propagate into downstream consumers.
func GainDB(vout, vin float64) float64 {
	return 20 * math.Log10(vout/vin)
}

// WrapPhase normalizes a phase angle in degrees onto [-180, 180).  Capture
// instruments report phase on different native ranges, e.g. [0, 360) or
// [-360, 360].
func WrapPhase(deg float64) float64 {
	m := math.Mod(deg+180, 360)
	if m < 0 {
		m += 360
	}
	return m - 180
}
