package rigol

import (
	"bufio"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/nasa-jpl/bodesweep/sweep"
)

// fakeDS1000Z scripts a Rigol scope: a single acquisition completes after a
// configurable number of status polls
type fakeDS1000Z struct {
	mu         sync.Mutex
	tscal      string
	singles    int
	cleared    int
	pollsLeft  int
	pollsUntil int
	vpp        string
	vin        string // CHAN2 reading, "1.00E+00" if unset
}

func (f *fakeDS1000Z) handle(line string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case line == ":TIM:SCAL?":
		return f.tscal, true
	case strings.HasPrefix(line, ":TIM:SCAL "):
		f.tscal = strings.TrimSpace(strings.TrimPrefix(line, ":TIM:SCAL "))
	case line == "SING":
		f.singles++
		f.pollsLeft = f.pollsUntil
	case line == ":MEAS:CLEAR":
		f.cleared++
	case line == ":TRIG:STAT?":
		if f.pollsLeft > 0 {
			f.pollsLeft--
			return "WAIT", true
		}
		return "STOP", true
	case strings.HasPrefix(line, ":MEAS:ITEM? VPP,"):
		ch := strings.TrimPrefix(line, ":MEAS:ITEM? VPP,")
		if ch == "CHAN2" {
			vin := f.vin
			if vin == "" {
				vin = "1.00E+00"
			}
			return vin, true
		}
		return f.vpp, true
	case strings.HasPrefix(line, ":MEAS:ITEM? RPH,"):
		return "2.70E+02", true
	}
	return "", false
}

func serveScope(t *testing.T, f *fakeDS1000Z) string {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				br := bufio.NewReader(c)
				for {
					line, err := br.ReadString('\n')
					if err != nil {
						return
					}
					if resp, reply := f.handle(strings.TrimSpace(line)); reply {
						io.WriteString(c, resp+"\n")
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestPrepareScalesTimebase(t *testing.T) {
	f := &fakeDS1000Z{tscal: "1.00E-03"}
	s := NewScope(serveScope(t, f), "1")
	if err := s.Prepare(100); err != nil {
		t.Fatal(err)
	}
	// 10 cycles / 100 Hz = 100 ms
	if f.tscal != "0.1" {
		t.Errorf("expected timebase 0.1, scope has %q", f.tscal)
	}
	if err := s.Prepare(10e6); err != nil {
		t.Fatal(err)
	}
	// clamped at the floor
	if f.tscal != "0.0001" {
		t.Errorf("expected timebase clamped to 0.0001, scope has %q", f.tscal)
	}
}

func TestAcquireForcesFreshTrigger(t *testing.T) {
	f := &fakeDS1000Z{tscal: "1.00E-03", vpp: "2.34E+00", pollsUntil: 2}
	s := NewScope(serveScope(t, f), "1")
	m, err := s.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if f.singles != 1 {
		t.Errorf("expected exactly one single acquisition, got %d", f.singles)
	}
	if f.cleared != 1 {
		t.Errorf("expected measurement history cleared, got %d", f.cleared)
	}
	if math.Abs(m.VOut-2.34) > 1e-12 {
		t.Errorf("expected 2.34 Vpp, got %G", m.VOut)
	}
	if m.HasPhase {
		t.Error("no input channel configured, phase should be absent")
	}
}

func TestAcquireWithInputChannel(t *testing.T) {
	f := &fakeDS1000Z{tscal: "1.00E-03", vpp: "5.00E-01"}
	s := NewScope(serveScope(t, f), "1")
	s.InputChannel = "2"
	m, err := s.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(m.VIn-1.0) > 1e-12 {
		t.Errorf("expected measured VIn 1.0, got %G", m.VIn)
	}
	if !m.HasPhase {
		t.Fatal("expected phase with an input channel configured")
	}
	// raw 270 from the scope; normalization happens downstream
	if math.Abs(m.Phase-270) > 1e-12 {
		t.Errorf("expected raw phase 270, got %G", m.Phase)
	}
}

func TestAcquireRejectsNegativeVpp(t *testing.T) {
	f := &fakeDS1000Z{tscal: "1.00E-03", vpp: "-1.00E+00"}
	s := NewScope(serveScope(t, f), "1")
	_, err := s.Acquire()
	if err == nil {
		t.Fatal("expected a negative peak-peak reading to error")
	}
}

func TestAcquireRejectsNegativeReferenceVpp(t *testing.T) {
	f := &fakeDS1000Z{tscal: "1.00E-03", vpp: "5.00E-01", vin: "-1.00E+00"}
	s := NewScope(serveScope(t, f), "1")
	s.InputChannel = "2"
	_, err := s.Acquire()
	if err == nil {
		t.Fatal("expected a negative reference peak-peak reading to error")
	}
	var oor sweep.OutOfRangeError
	if !errors.As(err, &oor) {
		t.Errorf("expected an out of range error, got %v", err)
	}
}
