package scpi_test

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nasa-jpl/bodesweep/comm"
	"github.com/nasa-jpl/bodesweep/scpi"
)

// fakeInstrument answers queries out of a reply table, one line per command.
// unknown queries get an empty reply so parse errors surface in the test.
func fakeInstrument(t *testing.T, replies map[string]string) string {
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
					line = strings.TrimSpace(line)
					if !strings.Contains(line, "?") {
						continue
					}
					if resp, ok := replies[line]; ok {
						io.WriteString(c, resp+"\n")
					} else {
						io.WriteString(c, "\n")
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func newSCPI(addr string, handshaking bool) *scpi.SCPI {
	maker := comm.BackingOffTCPConnMaker(addr, time.Second)
	pool := comm.NewPool(1, time.Minute, maker)
	return &scpi.SCPI{Pool: pool, Handshaking: handshaking}
}

func TestReadFloat(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"FREQ?": "1.000000E+03",
	})
	s := newSCPI(addr, false)
	f, err := s.ReadFloat("FREQ?")
	if err != nil {
		t.Fatal(err)
	}
	if f != 1000 {
		t.Errorf("expected 1000, got %f", f)
	}
}

func TestReadStringStripsTerminators(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"*IDN?": "Agilent Technologies,33511B,0,5.03\r",
	})
	s := newSCPI(addr, false)
	id, err := s.Identification()
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasSuffix(id, "\r") || strings.HasSuffix(id, "\n") {
		t.Errorf("terminators not stripped from %q", id)
	}
	if !strings.Contains(id, "33511B") {
		t.Errorf("unexpected identification %q", id)
	}
}

func TestHandshakingRejectsDeviceError(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"*CLS; FREQ 1e20 ;:SYSTem:ERRor?": `-222,"Data out of range"`,
	})
	s := newSCPI(addr, true)
	err := s.Write("FREQ 1e20")
	if err == nil {
		t.Fatal("expected device error to surface through handshaking")
	}
	if !strings.Contains(err.Error(), "-222") {
		t.Errorf("expected device error code in %v", err)
	}
}

func TestHandshakingAcceptsOK(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"*CLS; FREQ 1000 ;:SYSTem:ERRor?": `+0,"No error"`,
	})
	s := newSCPI(addr, true)
	if err := s.Write("FREQ 1000"); err != nil {
		t.Fatal("expected +0 handshake to pass, got:", err)
	}
}

func TestRawRoutesQueries(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"FREQ?": "42",
	})
	s := newSCPI(addr, true) // Raw must bypass handshaking
	resp, err := s.Raw("FREQ?")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(resp) != "42" {
		t.Errorf("expected 42, got %q", resp)
	}
	if !s.Handshaking {
		t.Error("Raw did not restore the handshaking flag")
	}
}
