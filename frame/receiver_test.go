package frame

import (
	"bytes"
	"math/rand"
	"testing"
)

func feed(r *Receiver, data []byte) (completedAt int, state State) {
	for i, b := range data {
		s := r.Feed(b)
		if s == StateComplete || s == StateError {
			return i, s
		}
	}
	return -1, r.State()
}

func TestReceiverRoundTrip(t *testing.T) {
	for _, cksum := range []Checksum{SingleByte, DoubleByte} {
		for _, l := range []int{1, 7, 8, 64, 128, 255} {
			payload := make([]byte, l)
			for i := range payload {
				payload[i] = byte(i * 3)
			}
			built := Build(cksum, DirHost, payload)
			r := NewReceiver(cksum, 512)
			idx, state := feed(r, built)
			if state != StateComplete {
				t.Fatalf("cksum=%v len=%d: ended in %v, err=%v", cksum, l, state, r.Err())
			}
			if idx != len(built)-1 {
				t.Fatalf("cksum=%v len=%d: completed at %d, want %d", cksum, l, idx, len(built)-1)
			}
			if r.Direction() != DirHost {
				t.Fatalf("cksum=%v len=%d: direction = %#x", cksum, l, r.Direction())
			}
			if !bytes.Equal(r.Payload(), payload) {
				t.Fatalf("cksum=%v len=%d: payload mismatch", cksum, l)
			}
		}
	}
}

func TestReceiverRandomPrefixRobustness(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	built := Build(DoubleByte, DirHost, []byte{0x50, 0x01, 0x02, 0x03})
	for trial := 0; trial < 200; trial++ {
		prefixLen := rng.Intn(40)
		prefix := make([]byte, prefixLen)
		for i := range prefix {
			prefix[i] = byte(rng.Intn(256))
		}
		r := NewReceiver(DoubleByte, 512)
		for _, b := range prefix {
			r.Feed(b)
		}
		full := append(prefix, built...)
		_, state := feed(r, full[prefixLen:])
		if state != StateComplete {
			t.Fatalf("trial %d: prefix %x did not recover, ended %v (err=%v)", trial, prefix, state, r.Err())
		}
		if !bytes.Equal(r.Payload(), []byte{0x50, 0x01, 0x02, 0x03}) {
			t.Fatalf("trial %d: payload mismatch", trial)
		}
	}
}

func TestReceiverBackToBackFrames(t *testing.T) {
	f1 := Build(DoubleByte, DirHost, []byte{0xAA})
	f2 := Build(DoubleByte, DirMCU, []byte{0xBB, 0xCC})
	r := NewReceiver(DoubleByte, 512)

	var completions int
	for _, b := range append(append([]byte(nil), f1...), f2...) {
		switch r.Feed(b) {
		case StateComplete:
			completions++
			switch completions {
			case 1:
				if r.Direction() != DirHost || !bytes.Equal(r.Payload(), []byte{0xAA}) {
					t.Fatalf("first frame mismatch: dir=%#x payload=% x", r.Direction(), r.Payload())
				}
			case 2:
				if r.Direction() != DirMCU || !bytes.Equal(r.Payload(), []byte{0xBB, 0xCC}) {
					t.Fatalf("second frame mismatch: dir=%#x payload=% x", r.Direction(), r.Payload())
				}
			}
		case StateError:
			t.Fatalf("unexpected error: %v", r.Err())
		}
	}
	if completions != 2 {
		t.Fatalf("got %d completions, want 2", completions)
	}
}

func TestReceiverOversizedPayloadErrors(t *testing.T) {
	built := Build(SingleByte, DirHost, make([]byte, 16))
	r := NewReceiver(SingleByte, 4) // max payload smaller than the frame's 16 bytes
	_, state := feed(r, built)
	if state != StateError {
		t.Fatalf("got %v, want StateError", state)
	}
}

func TestReceiverResetDiscardsPartialFrame(t *testing.T) {
	r := NewReceiver(DoubleByte, 512)
	partial := []byte{Start1, Start2, DirHost, 0x00}
	for _, b := range partial {
		r.Feed(b)
	}
	if r.State() == StateIdle {
		t.Fatal("expected partial progress before Reset")
	}
	r.Reset()
	if r.State() != StateIdle {
		t.Fatalf("state after Reset = %v, want StateIdle", r.State())
	}
	built := Build(DoubleByte, DirHost, []byte{0x01})
	_, state := feed(r, built)
	if state != StateComplete {
		t.Fatalf("state after valid frame = %v, want StateComplete", state)
	}
}
