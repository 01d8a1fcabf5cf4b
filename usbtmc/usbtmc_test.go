package usbtmc

import (
	"encoding/binary"
	"testing"
)

func TestBTagNeverZero(t *testing.T) {
	var g bTagGen
	g.value = 254
	for i := 0; i < 4; i++ {
		if tag := g.next(); tag == 0 {
			t.Fatal("bTag generator produced the reserved value 0")
		}
	}
}

func TestBulkOutHeader(t *testing.T) {
	hdr := encBulkOutHeader(7, 300)
	if hdr[0] != 0x01 {
		t.Errorf("expected MsgID DEV_DEP_MSG_OUT, got %#x", hdr[0])
	}
	if hdr[1] != 7 || hdr[2] != invbTag(7) {
		t.Errorf("bTag pair mismatch: %#x %#x", hdr[1], hdr[2])
	}
	if got := binary.LittleEndian.Uint32(hdr[4:8]); got != 300 {
		t.Errorf("expected transfer size 300, got %d", got)
	}
	if hdr[8] != 0x01 {
		t.Errorf("expected EOM set, got %#x", hdr[8])
	}
}

func TestBulkInHeaderTerminator(t *testing.T) {
	term := byte('\n')
	hdr := encBulkInHeader(3, 1500, &term)
	if hdr[0] != 0x02 {
		t.Errorf("expected MsgID REQUEST_DEV_DEP_MSG_IN, got %#x", hdr[0])
	}
	if hdr[8] != 0x02 || hdr[9] != '\n' {
		t.Errorf("expected terminator enabled with newline, got %#x %#x", hdr[8], hdr[9])
	}
	hdr = encBulkInHeader(3, 1500, nil)
	if hdr[8] != 0x00 || hdr[9] != 0x00 {
		t.Errorf("expected terminator disabled, got %#x %#x", hdr[8], hdr[9])
	}
}
