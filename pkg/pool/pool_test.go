package pool

import (
	"bytes"
	"strings"
	"testing"
)

func TestGetBufferIsEmpty(t *testing.T) {
	b := GetBuffer()
	b.WriteString("G1 X1 Y1 E1\n")
	PutBuffer(b)

	b = GetBuffer()
	defer PutBuffer(b)
	if b.Len() != 0 {
		t.Errorf("expected empty buffer, got %d bytes", b.Len())
	}
}

func TestPutBufferDropsOversized(t *testing.T) {
	before := GetStats().Drops
	big := bytes.NewBuffer(make([]byte, 0, MaxPooledSize+1))
	PutBuffer(big)
	if got := GetStats().Drops; got != before+1 {
		t.Errorf("Drops = %d, want %d", got, before+1)
	}
}

func TestPutBufferNil(t *testing.T) {
	PutBuffer(nil)
}

func TestStatsCountGets(t *testing.T) {
	before := GetStats().Gets
	for i := 0; i < 3; i++ {
		b := GetBuffer()
		b.WriteString(strings.Repeat(";", i))
		PutBuffer(b)
	}
	if got := GetStats().Gets; got != before+3 {
		t.Errorf("Gets = %d, want %d", got, before+3)
	}
}
