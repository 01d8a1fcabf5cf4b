// Package util contains misc internal utilities.
package util

import (
	"time"
)

// Clamp restricts x to the range [low, high]
func Clamp(x, low, high float64) float64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// SecsToDuration converts a quantity of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// Limiter is a pair of bounds on a value.  The zero value means unbounded.
type Limiter struct {
	// Min is the lower bound
	Min float64

	// Max is the upper bound
	Max float64
}

// Check returns true if x is within the limits.  A Limiter with Min == Max
// passes everything.
func (l Limiter) Check(x float64) bool {
	if l.Min == l.Max {
		return true
	}
	return x >= l.Min && x <= l.Max
}
