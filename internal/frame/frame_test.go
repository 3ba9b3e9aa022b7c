package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestDecodeHeader(t *testing.T) {
	buf := make([]byte, HeaderSize, HeaderSize+3)
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(1000.5))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(29.97))
	buf = append(buf, 0xFF, 0xD8, 0xFF)

	f, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if f.Timestamp != 1000.5 {
		t.Errorf("Timestamp = %v, want 1000.5", f.Timestamp)
	}
	if f.ServerFPS != 29.97 {
		t.Errorf("ServerFPS = %v, want 29.97", f.ServerFPS)
	}
	if !bytes.Equal(f.Image, []byte{0xFF, 0xD8, 0xFF}) {
		t.Errorf("Image = %x, want ffd8ff", f.Image)
	}
}

func TestDecodeHeaderOnly(t *testing.T) {
	f, err := Decode(Encode(Frame{Timestamp: 2, ServerFPS: 31}))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(f.Image) != 0 {
		t.Errorf("len(Image) = %d, want 0", len(f.Image))
	}
	if f.Timestamp != 2 || f.ServerFPS != 31 {
		t.Errorf("header = (%v, %v), want (2, 31)", f.Timestamp, f.ServerFPS)
	}
}

func TestDecodeTruncated(t *testing.T) {
	for _, n := range []int{0, 1, 8, 15} {
		_, err := Decode(make([]byte, n))
		if !errors.Is(err, ErrTruncatedFrame) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrTruncatedFrame", n, err)
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	buf := Encode(Frame{Timestamp: 1.0, ServerFPS: 30.0, Image: []byte("xyz")})
	if len(buf) != HeaderSize+3 {
		t.Fatalf("len = %d, want %d", len(buf), HeaderSize+3)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8])); got != 1.0 {
		t.Errorf("timestamp bytes decode to %v, want 1", got)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16])); got != 30.0 {
		t.Errorf("fps bytes decode to %v, want 30", got)
	}
	if string(buf[HeaderSize:]) != "xyz" {
		t.Errorf("payload = %q, want xyz", buf[HeaderSize:])
	}
}
