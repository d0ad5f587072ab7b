package frame

import (
	"bytes"
	"testing"
)

func TestBuildParseRoundTrip(t *testing.T) {
	lengths := []int{1, 7, 8, 64, 128, 255}
	for _, cksum := range []Checksum{SingleByte, DoubleByte} {
		for _, l := range lengths {
			payload := make([]byte, l)
			for i := range payload {
				payload[i] = byte(i*7 + 3)
			}
			built := Build(cksum, DirHost, payload)
			dir, got, err := Parse(cksum, built)
			if err != nil {
				t.Fatalf("cksum=%v len=%d: parse: %v", cksum, l, err)
			}
			if dir != DirHost {
				t.Fatalf("cksum=%v len=%d: dir = %#x, want %#x", cksum, l, dir, DirHost)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("cksum=%v len=%d: payload mismatch", cksum, l)
			}
			rebuilt := Build(cksum, DirHost, got)
			if !bytes.Equal(rebuilt, built) {
				t.Fatalf("cksum=%v len=%d: rebuild mismatch", cksum, l)
			}
		}
	}
}

func TestParseAcceptsEitherDirection(t *testing.T) {
	for _, dir := range []byte{DirHost, DirMCU} {
		built := Build(DoubleByte, dir, []byte{0x50})
		got, _, err := Parse(DoubleByte, built)
		if err != nil {
			t.Fatalf("dir=%#x: %v", dir, err)
		}
		if got != dir {
			t.Fatalf("dir=%#x: got %#x", dir, got)
		}
	}
}

func TestChecksumBitFlipInvalidatesSingleByte(t *testing.T) {
	built := Build(SingleByte, DirHost, []byte{0x01, 0x02, 0x03, 0x04})
	for i := range built {
		flipped := append([]byte(nil), built...)
		flipped[i] ^= 0xFF
		_, _, err := Parse(SingleByte, flipped)
		if err == nil {
			t.Fatalf("flipping byte %d did not invalidate the frame", i)
		}
	}
}

func TestChecksumBitFlipInvalidatesDoubleByte(t *testing.T) {
	built := Build(DoubleByte, DirHost, []byte{0x01, 0x02, 0x03, 0x04})
	for i := range built {
		flipped := append([]byte(nil), built...)
		flipped[i] ^= 0xFF
		_, _, err := Parse(DoubleByte, flipped)
		if err == nil {
			t.Fatalf("flipping byte %d did not invalidate the frame", i)
		}
	}
}

func TestLengthFieldArithmetic(t *testing.T) {
	for _, cksum := range []Checksum{SingleByte, DoubleByte} {
		payload := make([]byte, 37)
		built := Build(cksum, DirHost, payload)
		lenField := int(built[3])<<8 | int(built[4])
		wantLenField := 1 + 2 + len(payload) + cksum.Len()
		if lenField != wantLenField {
			t.Fatalf("cksum=%v: len field = %d, want %d", cksum, lenField, wantLenField)
		}
		wantTotal := 2 + lenField + 1
		if len(built) != wantTotal {
			t.Fatalf("cksum=%v: total bytes = %d, want %d", cksum, len(built), wantTotal)
		}
	}
}

// Scenario 2 (spec §8): payload [0x50,0x00,0x00,0x36,0x01,0xF7,0xA1]
// under DoubleByte checksum. len_field = 1(dir)+2(len)+7(payload)+2(cksum)
// = 0x0C; the checksum spans dir+lenHi+lenLo+payload
// (0x6A+0x00+0x0C+0x021F = 0x0295), matching frame.Build's contract
// (frame.go's sum()) and the original stc_packet.c's len/checksum
// arithmetic.
func TestScenarioDoubleByteFrame(t *testing.T) {
	payload := []byte{0x50, 0x00, 0x00, 0x36, 0x01, 0xF7, 0xA1}
	got := Build(DoubleByte, DirHost, payload)
	want := []byte{0x46, 0xB9, 0x6A, 0x00, 0x0C, 0x50, 0x00, 0x00, 0x36, 0x01, 0xF7, 0xA1, 0x02, 0x95, 0x16}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

// Scenario 3 (spec §8): payload [0x80] under SingleByte checksum.
func TestScenarioSingleByteFrame(t *testing.T) {
	got := Build(SingleByte, DirHost, []byte{0x80})
	want := []byte{0x46, 0xB9, 0x6A, 0x00, 0x05, 0x80, 0xEF, 0x16}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

// Scenario 4 (spec §8): USB block checksum.
func TestScenarioUSBBlockChecksum(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	got := EncodeUSBBlocks(payload)
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xE4, 0x08, 0xF8}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
	decoded, err := DecodeUSBBlocks(got, len(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("decoded % x, want % x", decoded, payload)
	}
}

func TestUSBBlockChecksumCatchesCorruption(t *testing.T) {
	payload := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70, 0x80, 0x90}
	enc := EncodeUSBBlocks(payload)
	for i := range enc {
		corrupt := append([]byte(nil), enc...)
		corrupt[i] ^= 0x01
		_, err := DecodeUSBBlocks(corrupt, len(payload))
		if err == nil {
			t.Fatalf("corrupting byte %d went undetected", i)
		}
	}
}
