/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices, exposing them as an io.ReadWriteCloser so the
same command plumbing used for TCP instruments can ride over USB.

Only single-packet bulk transfers are supported; the message must fit in
the remote's buffer.
*/
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/gousb"
)

const (
	reserved = 0x00

	// one TCP MTU; not related to USB but large enough for SCPI replies
	bufSize = 1500

	// bulk out payloads are padded to this boundary
	alignment = 4
)

// bTagGen is a concurrent-safe bTag generator.  Tags increment with each
// message and wrap within 1..255; zero is reserved.
type bTagGen struct {
	sync.Mutex

	value byte
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag computes the bitwise inversion of a bTag, per USBTMC Table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the DEV_DEP_MSG_OUT header defined in USBTMC Table 3
func encBulkOutHeader(tag byte, datalen int) [12]byte {
	out := [12]byte{}
	out[0] = 0x01 // DEV_DEP_MSG_OUT
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01 // EOM
	out[9] = reserved
	out[10] = reserved
	out[11] = reserved
	return out
}

// encBulkInHeader creates the REQUEST_DEV_DEP_MSG_IN header defined in USBTMC
// Table 4.  If terminator is nil the termination character bit is cleared and
// the device ignores byte 9.
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [12]byte {
	out := [12]byte{}
	out[0] = 0x02 // REQUEST_DEV_DEP_MSG_IN
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02 // TermCharEnabled
		out[9] = *terminator
	} else {
		out[8] = 0x00
		out[9] = 0x00
	}
	out[10] = reserved
	out[11] = reserved
	return out
}

// USBDevice hides the details of a USBTMC bulk transfer behind
// io.ReadWriteCloser
type USBDevice struct {
	tagger bTagGen
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	device *gousb.Device
	iface  *gousb.Interface
	closer func()
}

// NewUSBDevice creates a new USB device from its vendor and product ID
func NewUSBDevice(vid, pid uint16) (*USBDevice, error) {
	out := &USBDevice{}
	var err error
	ctx := gousb.NewContext()
	out.device, err = ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return out, err
	}
	err = out.device.SetAutoDetach(true)
	if err != nil {
		return out, err
	}
	out.iface, out.closer, err = out.device.DefaultInterface()
	if err != nil {
		return out, err
	}
	out.in, err = out.iface.InEndpoint(2)
	if err != nil {
		return out, err
	}
	out.out, err = out.iface.OutEndpoint(2)
	if err != nil {
		return out, err
	}
	return out, nil
}

// ConnMaker adapts NewUSBDevice to the signature the connection pool expects
func ConnMaker(vid, pid uint16) func() (io.ReadWriteCloser, error) {
	return func() (io.ReadWriteCloser, error) {
		return NewUSBDevice(vid, pid)
	}
}

// Read requests a datagram from the device and copies its payload into p.
// The 12 byte bulk-in header is stripped before the copy.
func (d *USBDevice) Read(p []byte) (int, error) {
	term := byte('\n')
	hdr := encBulkInHeader(d.tagger.next(), bufSize, &term)
	n, err := d.out.Write(hdr[:])
	if err != nil {
		return 0, err
	}
	if n < len(hdr) {
		// attempt to finish the partial transmission
		m, err := d.out.Write(hdr[n:])
		if err != nil {
			return 0, err
		}
		if n+m != len(hdr) {
			return 0, fmt.Errorf("wrote %d bytes, not the full 12 required to transmit read request", n+m)
		}
	}
	buf := make([]byte, bufSize)
	n, err = d.in.Read(buf)
	if err != nil {
		return 0, err
	}
	if n < 12 {
		return 0, fmt.Errorf("only received %d bytes, need at least 12 to form header", n)
	}
	return copy(p, buf[12:n]), nil
}

// Write sends b to the device as a single DEV_DEP_MSG_OUT datagram, padding
// to the transfer alignment
func (d *USBDevice) Write(b []byte) (int, error) {
	hdr := encBulkOutHeader(d.tagger.next(), len(b))
	msg := append(hdr[:], b...)
	if residual := len(msg) % alignment; residual > 0 {
		msg = append(msg, make([]byte, alignment-residual)...)
	}
	_, err := d.out.Write(msg)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close closes the device
func (d *USBDevice) Close() error {
	d.closer()
	return d.device.Close()
}
