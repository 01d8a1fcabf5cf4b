/*Package comm provides connection plumbing for remote lab instruments.

Instruments in this module speak ASCII request/response protocols over TCP,
RS232, or USBTMC.  The pieces here are transport-neutral: connection makers
that produce io.ReadWriteClosers, a pool that leases them out one at a time,
and wrappers that handle message termination and deadlines.  Device drivers
(agilent, siglent, rigol, keysight) sit on top of these through package scpi.
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrNoDeadlineSupport is generated when a timeout is requested of a
	// connection that cannot enforce one
	ErrNoDeadlineSupport = errors.New("connection does not support deadlines")
)

// TCPSetup opens a new TCP connection and sets a timeout on connect
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// BackingOffTCPConnMaker returns a CreationFunc which dials addr with an
// exponential backoff.  Some instruments do not like being connection
// thrashed and refuse dials for a short window after a disconnect.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port
// described by conf
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return serial.OpenPort(conf)
	}
}

// Terminator wraps a ReadWriter, appending the Tx terminator to each write
// and consuming through the Rx terminator on each read.  The terminator is
// stripped from the data returned by Read.
type Terminator struct {
	rw io.ReadWriter
	br *bufio.Reader
	rx byte
	tx byte
}

// NewTerminator returns a Terminator wrapping rw
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, br: bufio.NewReader(rw), rx: rx, tx: tx}
}

func (t *Terminator) Write(b []byte) (int, error) {
	n, err := t.rw.Write(append(b, t.tx))
	if n > 0 {
		// do not report the terminator byte to the caller
		n--
	}
	return n, err
}

func (t *Terminator) Read(b []byte) (int, error) {
	buf, err := t.br.ReadBytes(t.rx)
	if err != nil {
		return 0, err
	}
	if !bytes.HasSuffix(buf, []byte{t.rx}) {
		return copy(b, buf), ErrTerminatorNotFound
	}
	return copy(b, buf[:len(buf)-1]), nil
}

// deadliner is the subset of net.Conn used to enforce timeouts
type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Timeout wraps a ReadWriter, bumping the read and write deadlines ahead of
// each call.  NewTimeout errors if no deadline-capable connection can be
// found under rw.
type Timeout struct {
	rw io.ReadWriter
	d  deadliner
	t  time.Duration
}

// NewTimeout returns a Timeout wrapping rw.  If rw is a Terminator, the
// deadline is applied to the connection underneath it.
func NewTimeout(rw io.ReadWriter, t time.Duration) (*Timeout, error) {
	probe := rw
	if term, ok := probe.(*Terminator); ok {
		probe = term.rw
	}
	d, ok := probe.(deadliner)
	if !ok {
		return nil, ErrNoDeadlineSupport
	}
	return &Timeout{rw: rw, d: d, t: t}, nil
}

func (t *Timeout) Write(b []byte) (int, error) {
	err := t.d.SetWriteDeadline(time.Now().Add(t.t))
	if err != nil {
		return 0, err
	}
	return t.rw.Write(b)
}

func (t *Timeout) Read(b []byte) (int, error) {
	err := t.d.SetReadDeadline(time.Now().Add(t.t))
	if err != nil {
		return 0, err
	}
	return t.rw.Read(b)
}
