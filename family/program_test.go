package family

import (
	"bytes"
	"testing"

	"stcisp.dev/frame"
	"stcisp.dev/internal/stcfake"
	"stcisp.dev/protocol"
)

func newTestState(cfg protocol.Config) (*State, *stcfake.Transport) {
	ft := &stcfake.Transport{}
	s := &State{Transport: ft, Config: cfg, Comm: DefaultCommConfig()}
	return s, ft
}

func mustParse(t *testing.T, cfg protocol.Config, raw []byte) []byte {
	t.Helper()
	_, payload, err := frame.Parse(cfg.Checksum, raw)
	if err != nil {
		t.Fatalf("parse outgoing frame: %v", err)
	}
	return payload
}

// Scenario 6 (spec §8): firmware of length 100, block_size=64,
// bsl_magic_72=true => two program_block calls: first
// "0x22 00 00 5A A5 <64 bytes>", second
// "0x02 00 40 5A A5 <36 bytes + 28 zero pad>".
func TestScenarioStc8ProgramBlocking(t *testing.T) {
	cfg := protocol.Config{
		ID: protocol.Stc8, Checksum: frame.DoubleByte,
		BlockSize: 64, BslMagic72: true,
	}
	s, ft := newTestState(cfg)
	ft.QueueReply(frame.Build(cfg.Checksum, frame.DirMCU, []byte{0x02, 0x54}))
	ft.QueueReply(frame.Build(cfg.Checksum, frame.DirMCU, []byte{0x02, 0x54}))

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	ops := stc8Ops{}
	first := data[0:64]
	if err := ops.ProgramBlock(s, 0, first, true); err != nil {
		t.Fatalf("first block: %v", err)
	}
	second := make([]byte, 64)
	copy(second, data[64:100])
	if err := ops.ProgramBlock(s, 0x40, second, false); err != nil {
		t.Fatalf("second block: %v", err)
	}

	if len(ft.Writes) != 2 {
		t.Fatalf("got %d writes, want 2", len(ft.Writes))
	}
	p1 := mustParse(t, cfg, ft.Writes[0])
	wantP1 := append([]byte{0x22, 0x00, 0x00, 0x5A, 0xA5}, data[0:64]...)
	if !bytes.Equal(p1, wantP1) {
		t.Fatalf("first payload:\ngot  % x\nwant % x", p1, wantP1)
	}

	p2 := mustParse(t, cfg, ft.Writes[1])
	wantTail := make([]byte, 64)
	copy(wantTail, data[64:100])
	wantP2 := append([]byte{0x02, 0x00, 0x40, 0x5A, 0xA5}, wantTail...)
	if !bytes.Equal(p2, wantP2) {
		t.Fatalf("second payload:\ngot  % x\nwant % x", p2, wantP2)
	}
}

// Scenario 5 (spec §8): size=4096 => blks=16, payload ends with a
// descending countdown 0x80, 0x7F, ..., down to the family's
// EraseCountdown tail value (0x0D for STC12).
func TestScenarioStc12EraseCountdown(t *testing.T) {
	cfg, ok := protocol.Lookup(protocol.Stc12)
	if !ok {
		t.Fatal("no Stc12 config row")
	}
	s, ft := newTestState(cfg)
	reply := append([]byte{0x00}, make([]byte, 7)...) // opcode + UID
	ft.QueueReply(frame.Build(cfg.Checksum, frame.DirMCU, reply))

	if err := (stc12Ops{}).EraseFlash(s, 4096); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if len(ft.Writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(ft.Writes))
	}
	payload := mustParse(t, cfg, ft.Writes[0])

	const blks = 16 // ceil(4096/512) * 2
	if payload[3] != blks {
		t.Fatalf("blks byte = %d, want %d", payload[3], blks)
	}

	var countdown []byte
	for v := 0x80; v >= int(cfg.EraseCountdown); v-- {
		countdown = append(countdown, byte(v))
	}
	tail := payload[len(payload)-len(countdown):]
	if !bytes.Equal(tail, countdown) {
		t.Fatalf("countdown tail:\ngot  % x\nwant % x", tail, countdown)
	}
	if countdown[len(countdown)-1] != cfg.EraseCountdown {
		t.Fatalf("countdown does not end at EraseCountdown %#x", cfg.EraseCountdown)
	}
}

// spec §4.E.5: STC89 additionally verifies the echoed sum byte equals
// the sum of the block's data modulo 256; a mismatch is a VerifyFail.
func TestStc89ProgramBlockVerifyFail(t *testing.T) {
	cfg, ok := protocol.Lookup(protocol.Stc89)
	if !ok {
		t.Fatal("no Stc89 config row")
	}
	s, ft := newTestState(cfg)
	data := []byte{0x01, 0x02, 0x03}
	ft.QueueReply(frame.Build(cfg.Checksum, frame.DirMCU, []byte{0xAA, 0xBB, 0x00 /* wrong sum */}))

	err := (stc89Ops{}).ProgramBlock(s, 0, data, true)
	if err == nil {
		t.Fatal("expected a verify failure")
	}
	if !isErr(err, ErrVerifyFail) {
		t.Fatalf("got %v, want ErrVerifyFail", err)
	}
}

// A correct echoed sum byte programs successfully.
func TestStc89ProgramBlockVerifyOk(t *testing.T) {
	cfg, ok := protocol.Lookup(protocol.Stc89)
	if !ok {
		t.Fatal("no Stc89 config row")
	}
	s, ft := newTestState(cfg)
	data := []byte{0x01, 0x02, 0x03}
	var want byte
	for _, b := range data {
		want += b
	}
	ft.QueueReply(frame.Build(cfg.Checksum, frame.DirMCU, []byte{want}))

	if err := (stc89Ops{}).ProgramBlock(s, 0, data, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func isErr(err error, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}
