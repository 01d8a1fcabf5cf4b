package sim_test

import (
	"math"
	"testing"
	"time"

	"github.com/nasa-jpl/bodesweep/sim"
	"github.com/nasa-jpl/bodesweep/sweep"
)

func TestCircuitCorner(t *testing.T) {
	c := sim.Circuit{CutoffHz: 1000}
	g := 20 * math.Log10(c.Gain(1000))
	if math.Abs(g+3.0103) > 0.001 {
		t.Errorf("expected -3 dB at the corner, got %f", g)
	}
	if ph := c.PhaseDeg(1000); math.Abs(ph+45) > 1e-9 {
		t.Errorf("expected -45 deg at the corner, got %f", ph)
	}
}

func TestSweepAgainstBench(t *testing.T) {
	bench := sim.NewBench(sim.Circuit{CutoffHz: 1000})
	eng := sweep.New(bench.Stimulus(), bench.Capture())
	series, err := eng.Run(sweep.Spec{
		Start:      10,
		Stop:       100000,
		Points:     9,
		Spacing:    sweep.Logarithmic,
		Amplitude:  1.0,
		Settle:     time.Microsecond,
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Points) != 9 {
		t.Fatalf("expected 9 points, got %d", len(series.Points))
	}
	// well below the corner the response is flat and in phase
	first := series.Points[0]
	if !first.Valid || math.Abs(first.GainDB) > 0.01 {
		t.Errorf("expected ~0 dB at 10 Hz, got %f (valid=%v)", first.GainDB, first.Valid)
	}
	// two decades above the corner the rolloff is -40 dB and phase -90
	last := series.Points[len(series.Points)-1]
	if math.Abs(last.GainDB+40) > 0.1 {
		t.Errorf("expected ~-40 dB at 100 kHz, got %f", last.GainDB)
	}
	if math.Abs(last.PhaseDeg+89.4) > 0.5 {
		t.Errorf("expected ~-89 deg at 100 kHz, got %f", last.PhaseDeg)
	}
	// monotone rolloff for a low-pass
	for i := 1; i < len(series.Points); i++ {
		if series.Points[i].GainDB > series.Points[i-1].GainDB+1e-9 {
			t.Error("low-pass gain should be non-increasing with frequency")
		}
	}
}

func TestBenchFaultSchedule(t *testing.T) {
	bench := sim.NewBench(sim.Circuit{CutoffHz: 1000})
	cap := bench.Capture()
	// 20 Hz fails more times than the retry budget covers; its neighbors
	// must be untouched
	cap.FailAt = map[float64]int{20: 3}
	eng := sweep.New(bench.Stimulus(), cap)
	series, err := eng.Run(sweep.Spec{
		Start:      10,
		Stop:       30,
		Points:     3,
		Spacing:    sweep.Linear,
		Amplitude:  1.0,
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(series.Points))
	}
	for _, p := range series.Points {
		if p.Frequency == 20 {
			if p.Valid {
				t.Error("expected the scheduled fault to exhaust the retries at 20 Hz")
			}
		} else if !p.Valid {
			t.Errorf("expected point at %G Hz to be valid", p.Frequency)
		}
	}
}

func TestBenchFaultInjection(t *testing.T) {
	bench := sim.NewBench(sim.Circuit{CutoffHz: 1000})
	cap := bench.Capture()
	cap.FailFirst = 1
	eng := sweep.New(bench.Stimulus(), cap)
	series, err := eng.Run(sweep.Spec{
		Start:      10,
		Stop:       100,
		Points:     2,
		Amplitude:  1.0,
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range series.Points {
		if !p.Valid {
			t.Error("expected the retry budget to absorb a single failure")
		}
	}
}
