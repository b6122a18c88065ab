package ber

import (
	"bytes"
	"testing"
)

func TestDecodeLengthShortForm(t *testing.T) {
	v, n := DecodeLength([]byte{0x05, 0xff}, 0, 2)
	if v != 5 || n != 1 {
		t.Fatalf("got (%d, %d), want (5, 1)", v, n)
	}
}

func TestDecodeLengthLongForm(t *testing.T) {
	// content length 300 = 0x012C, encoded as 0x82 0x01 0x2C
	data := []byte{0x82, 0x01, 0x2c, 0xde, 0xad}
	v, n := DecodeLength(data, 0, len(data))
	if v != 300 || n != 3 {
		t.Fatalf("got (%d, %d), want (300, 3)", v, n)
	}
}

func TestDecodeLengthRejectsTruncated(t *testing.T) {
	data := []byte{0x82, 0x01} // claims 2 length bytes, only 1 present
	v, n := DecodeLength(data, 0, len(data))
	if v != 0 || n != 0 {
		t.Fatalf("got (%d, %d), want (0, 0) for truncated input", v, n)
	}
}

func TestDecodeLengthRejectsOversizedCount(t *testing.T) {
	data := make([]byte, 20)
	data[0] = 0x89 // claims 9 length octets, exceeds uint64 width
	v, n := DecodeLength(data, 0, len(data))
	if v != 0 || n != 0 {
		t.Fatalf("got (%d, %d), want (0, 0) for oversized length count", v, n)
	}
}

func TestEncodeLengthShortForm(t *testing.T) {
	got := EncodeLength(127)
	want := []byte{0x7f}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestEncodeLengthLongForm(t *testing.T) {
	got := EncodeLength(300)
	want := []byte{0x82, 0x01, 0x2c}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestEncodeLengthBoundary128(t *testing.T) {
	got := EncodeLength(128)
	want := []byte{0x81, 0x80}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 5, 127, 128, 255, 256, 300, 65535, 65536, 1 << 24}
	for _, v := range values {
		enc := EncodeLength(v)
		if Size(v) != len(enc) {
			t.Fatalf("Size(%d)=%d, len(EncodeLength)=%d", v, Size(v), len(enc))
		}
		buf := append(append([]byte{}, enc...), 0xaa, 0xbb)
		got, n := DecodeLength(buf, 0, len(buf))
		if got != v || n != len(enc) {
			t.Fatalf("round trip failed for %d: got (%d, %d)", v, got, n)
		}
	}
}
