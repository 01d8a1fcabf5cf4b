package keysight

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeBench scripts a Keysight DMM and power supply behind one reply table
type fakeBench struct {
	mu      sync.Mutex
	rms     float64
	volts   float64
	amps    float64
	maxAmps float64
	output  bool
}

func (f *fakeBench) handle(line string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case line == "READ?":
		return fmt.Sprintf("%E", f.rms), true
	case line == "VOLT?":
		return fmt.Sprintf("%E", f.volts), true
	case line == "CURR?":
		return fmt.Sprintf("%E", f.amps), true
	case line == "OUTP?":
		if f.output {
			return "1", true
		}
		return "0", true
	case strings.HasPrefix(line, "VOLT "):
		f.volts, _ = strconv.ParseFloat(strings.TrimPrefix(line, "VOLT "), 64)
	case strings.HasPrefix(line, "CURR "):
		f.amps, _ = strconv.ParseFloat(strings.TrimPrefix(line, "CURR "), 64)
		if f.maxAmps > 0 && f.amps > f.maxAmps {
			f.amps = f.maxAmps
		}
	case line == "OUTP ON":
		f.output = true
	case line == "OUTP OFF":
		f.output = false
	}
	return "", false
}

func serve(t *testing.T, f *fakeBench) string {
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

func TestAcquireConvertsRMSToPkPk(t *testing.T) {
	f := &fakeBench{rms: 1.0}
	m := NewMultimeter(serve(t, f))
	meas, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(meas.VOut-2*math.Sqrt2) > 1e-9 {
		t.Errorf("expected 1 Vrms to read as %G Vpp, got %G", 2*math.Sqrt2, meas.VOut)
	}
	if meas.HasPhase {
		t.Error("a DMM cannot measure phase")
	}
}

func TestAcquireRejectsNegativeReading(t *testing.T) {
	f := &fakeBench{rms: -0.5}
	m := NewMultimeter(serve(t, f))
	_, err := m.Acquire()
	if err == nil {
		t.Fatal("expected a negative reading to error")
	}
}

func TestPrepareIsFrequencyIndependent(t *testing.T) {
	f := &fakeBench{rms: 1.0}
	m := NewMultimeter(serve(t, f))
	if err := m.Prepare(1e6); err != nil {
		t.Fatal(err)
	}
}

func TestSupplySetpointsVerify(t *testing.T) {
	f := &fakeBench{}
	p := NewPowerSupply(serve(t, f))
	if err := p.SetVoltage(12.5); err != nil {
		t.Fatal(err)
	}
	if err := p.SetCurrentLimit(0.25); err != nil {
		t.Fatal(err)
	}
	v, err := p.GetVoltage()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v-12.5) > 1e-9 {
		t.Errorf("expected 12.5 V setpoint, got %G", v)
	}
}

func TestSupplySilentClampDetected(t *testing.T) {
	f := &fakeBench{maxAmps: 1.0}
	p := NewPowerSupply(serve(t, f))
	err := p.SetCurrentLimit(5.0)
	if err == nil {
		t.Fatal("expected clamped current limit to be detected")
	}
	if !strings.Contains(err.Error(), "instrument reports") {
		t.Errorf("unexpected error text %q", err)
	}
}

func TestSupplyOutputControl(t *testing.T) {
	f := &fakeBench{}
	p := NewPowerSupply(serve(t, f))
	if err := p.EnableOutput(); err != nil {
		t.Fatal(err)
	}
	on, err := p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Error("expected output on")
	}
	if err := p.DisableOutput(); err != nil {
		t.Fatal(err)
	}
	on, err = p.GetOutput()
	if err != nil {
		t.Fatal(err)
	}
	if on {
		t.Error("expected output off")
	}
}
