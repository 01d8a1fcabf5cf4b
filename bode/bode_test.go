package bode_test

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/nasa-jpl/bodesweep/bode"
)

const tol = 1e-9

func TestGainUnity(t *testing.T) {
	g := bode.GainDB(1.0, 1.0)
	if math.Abs(g) > tol {
		t.Errorf("expected 0 dB for unity gain, got %f", g)
	}
}

func TestGainTenthIsMinus20(t *testing.T) {
	g := bode.GainDB(0.1, 1.0)
	if math.Abs(g+20) > 1e-6 {
		t.Errorf("expected -20 dB, got %f", g)
	}
}

func TestGainZeroOutputIsNegInf(t *testing.T) {
	g := bode.GainDB(0, 1.0)
	if !math.IsInf(g, -1) {
		t.Errorf("expected -Inf for zero output, got %f", g)
	}
}

func TestWrapPhase(t *testing.T) {
	cases := []struct {
		raw, want float64
	}{
		{270, -90},
		{-200, 160},
		{0, 0},
		{-180, -180},
		{180, -180},
		{359.5, -0.5},
		{720, 0},
	}
	for _, c := range cases {
		got := bode.WrapPhase(c.raw)
		if math.Abs(got-c.want) > tol {
			t.Errorf("WrapPhase(%f): expected %f, got %f", c.raw, c.want, got)
		}
		if got < -180 || got >= 180 {
			t.Errorf("WrapPhase(%f)=%f outside [-180, 180)", c.raw, got)
		}
	}
}

func TestMarshalInvalidPointNullsGain(t *testing.T) {
	p := bode.ResultPoint{Frequency: 100, GainDB: math.Inf(-1), Valid: false}
	buf, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	s := string(buf)
	if !strings.Contains(s, `"gain_db":null`) {
		t.Errorf("expected null gain for invalid point, got %s", s)
	}
	if !strings.Contains(s, `"valid":false`) {
		t.Errorf("expected valid:false, got %s", s)
	}
	if !strings.Contains(s, `"frequency_hz":100`) {
		t.Errorf("expected frequency_hz:100, got %s", s)
	}
}

func TestMarshalValidPoint(t *testing.T) {
	p := bode.ResultPoint{Frequency: 1000, GainDB: -3, PhaseDeg: -45, HasPhase: true, Valid: true}
	buf, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	s := string(buf)
	for _, want := range []string{`"gain_db":-3`, `"phase_deg":-45`, `"valid":true`} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %s in %s", want, s)
		}
	}
}

func TestEncodeCSV(t *testing.T) {
	rs := bode.ResultSeries{Points: []bode.ResultPoint{
		{Frequency: 10, GainDB: 0, PhaseDeg: 0, HasPhase: true, Valid: true},
		{Frequency: 100, GainDB: math.Inf(-1), Valid: false},
	}}
	buf := &bytes.Buffer{}
	if err := rs.EncodeCSV(buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "frequency_hz,gain_db,phase_deg,valid" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[2] != "100,,,false" {
		t.Errorf("expected invalid row with empty cells, got %q", lines[2])
	}
}

func TestSeriesValidCount(t *testing.T) {
	rs := bode.ResultSeries{Points: []bode.ResultPoint{
		{Valid: true}, {Valid: false}, {Valid: true},
	}}
	if rs.Valid() != 2 {
		t.Errorf("expected 2 valid points, got %d", rs.Valid())
	}
}
