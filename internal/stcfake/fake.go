// Package stcfake implements an in-memory transport.Transport for
// tests: a scripted byte source that records every write and serves
// queued replies, standing in for a real STC bootloader on the other
// end of the wire.
package stcfake

import (
	"time"

	"stcisp.dev/transport"
)

// Transport is a transport.Transport fake. Tests queue reply byte
// slices with QueueReply (each becomes available to exactly the Read
// calls needed to drain it) and inspect Writes afterward.
type Transport struct {
	Baud   int
	Parity transport.Parity
	Writes [][]byte

	replies [][]byte
	rx      []byte
	tick    uint32

	// NoReply, if set, makes Read always return ErrTimeout -- used to
	// exercise fire-and-forget disconnect paths.
	NoReply bool
}

func (t *Transport) SetBaudRate(baud int) error {
	t.Baud = baud
	return nil
}

func (t *Transport) SetParity(p transport.Parity) error {
	t.Parity = p
	return nil
}

func (t *Transport) Write(data []byte, timeout time.Duration) (int, error) {
	t.Writes = append(t.Writes, append([]byte(nil), data...))
	return len(data), nil
}

// QueueReply appends a byte slice that will be handed back across one
// or more subsequent Read calls, in order.
func (t *Transport) QueueReply(b []byte) {
	t.replies = append(t.replies, append([]byte(nil), b...))
}

func (t *Transport) Read(buf []byte, timeout time.Duration) (int, error) {
	if t.NoReply {
		return 0, transport.ErrTimeout
	}
	if len(t.rx) == 0 {
		if len(t.replies) == 0 {
			return 0, transport.ErrTimeout
		}
		t.rx = t.replies[0]
		t.replies = t.replies[1:]
	}
	n := copy(buf, t.rx)
	t.rx = t.rx[n:]
	return n, nil
}

func (t *Transport) Flush() error {
	t.rx = nil
	return nil
}

func (t *Transport) DelayMs(ms int) {}

func (t *Transport) TickMs() uint32 {
	t.tick++
	return t.tick
}

var _ transport.Transport = (*Transport)(nil)
