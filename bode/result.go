package bode

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
)

// ResultPoint is one derived point of a frequency response.  It is
// constructed once by the sweep engine and never mutated.  Invalid points
// carry a -Inf gain sentinel; the encoders below suppress it so it cannot
// leak into plotting or analysis tooling.
type ResultPoint struct {
	// Frequency is the stimulus frequency in Hz
	Frequency float64

	// GainDB is 20*log10(VOut/VIn); -Inf when the point is invalid
	GainDB float64

	// PhaseDeg is the phase shift in degrees, normalized to [-180, 180)
	PhaseDeg float64

	// HasPhase indicates whether the capture instrument measured phase
	HasPhase bool

	// Valid is false for points where no plausible measurement was obtained
	Valid bool

	// Source is the raw measurement this point was derived from
	Source Measurement
}

// resultPointJSON is the stable wire format: gain and phase are null for
// invalid or phaseless points (JSON has no encoding for -Inf)
type resultPointJSON struct {
	Frequency float64  `json:"frequency_hz"`
	GainDB    *float64 `json:"gain_db"`
	PhaseDeg  *float64 `json:"phase_deg"`
	Valid     bool     `json:"valid"`
}

// MarshalJSON implements json.Marshaler
func (p ResultPoint) MarshalJSON() ([]byte, error) {
	out := resultPointJSON{Frequency: p.Frequency, Valid: p.Valid}
	if p.Valid && !math.IsInf(p.GainDB, 0) {
		g := p.GainDB
		out.GainDB = &g
	}
	if p.Valid && p.HasPhase {
		ph := p.PhaseDeg
		out.PhaseDeg = &ph
	}
	return json.Marshal(out)
}

// ResultSeries is an ordered frequency response curve, strictly increasing
// in frequency, with one entry per swept point.  Points that failed all
// retries are present with Valid=false, not dropped.
type ResultSeries struct {
	Points []ResultPoint `json:"points"`

	// Cancelled is true if the sweep was aborted between points; the
	// series then holds only the points completed before the abort
	Cancelled bool `json:"cancelled"`
}

// Valid returns the number of valid points in the series
func (rs ResultSeries) Valid() int {
	n := 0
	for _, p := range rs.Points {
		if p.Valid {
			n++
		}
	}
	return n
}

// EncodeCSV writes the series to a CSV in streaming fashion.  Invalid
// points have empty gain and phase cells.
func (rs ResultSeries) EncodeCSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	record := []string{"frequency_hz", "gain_db", "phase_deg", "valid"}
	if err := cw.Write(record); err != nil {
		return err
	}
	for _, p := range rs.Points {
		record[0] = strconv.FormatFloat(p.Frequency, 'G', -1, 64)
		record[1] = ""
		record[2] = ""
		if p.Valid && !math.IsInf(p.GainDB, 0) {
			record[1] = strconv.FormatFloat(p.GainDB, 'G', -1, 64)
		}
		if p.Valid && p.HasPhase {
			record[2] = strconv.FormatFloat(p.PhaseDeg, 'G', -1, 64)
		}
		record[3] = strconv.FormatBool(p.Valid)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
