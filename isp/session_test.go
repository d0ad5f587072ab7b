package isp

import (
	"testing"

	"stcisp.dev/frame"
	"stcisp.dev/internal/stcfake"
	"stcisp.dev/protocol"
)

// statusPayloadFor builds a minimal but valid connect() status payload
// for an STC12 target: freq-counter words at 1..15 (value is
// irrelevant to this test), BSL version bytes at 17/18, and the magic
// at 20:22 (spec §4.E.1).
func statusPayloadFor(magicHi, magicLo byte) []byte {
	p := make([]byte, 23)
	for i := 1; i <= 15; i += 2 {
		p[i], p[i+1] = 0x01, 0x00
	}
	p[17], p[18] = 0x71, 'A'
	p[20], p[21] = magicHi, magicLo
	return p
}

// TestSessionFullLifecycleStc12 drives Connect -> SelectProtocol ->
// Program end to end against a scripted fake transport for magic
// 0xF002 (STC12C5410AD, protocol.Stc12), a family whose handshake
// needs no frequency calibration round trip -- keeping the
// scripted reply sequence tractable (spec §3's full life cycle).
func TestSessionFullLifecycleStc12(t *testing.T) {
	ft := &stcfake.Transport{}
	const cksum = frame.DoubleByte

	// connect(): one status frame carrying magic 0xF002.
	ft.QueueReply(frame.Build(cksum, frame.DirMCU, statusPayloadFor(0xF0, 0x02)))

	// handshake(): 0x8F existence check, 0x8F at transfer baud, 0x84 commit.
	ft.QueueReply(frame.Build(cksum, frame.DirMCU, []byte{0x8F}))
	ft.QueueReply(frame.Build(cksum, frame.DirMCU, []byte{0x8F}))
	ft.QueueReply(frame.Build(cksum, frame.DirMCU, []byte{0x84}))

	// erase_flash(): 0x00 plus a 7-byte UID.
	ft.QueueReply(frame.Build(cksum, frame.DirMCU, append([]byte{0x00}, make([]byte, 7)...)))

	// program_block(): one block (firmware is shorter than BlockSize).
	ft.QueueReply(frame.Build(cksum, frame.DirMCU, []byte{0x00}))

	// program_finish(): 0x8D.
	ft.QueueReply(frame.Build(cksum, frame.DirMCU, []byte{0x8D}))

	s := NewSession(ft)

	var progressCalls []int
	s.SetProgress(func(current, total int) { progressCalls = append(progressCalls, current) })
	var logged []string
	s.SetLog(func(msg string) { logged = append(logged, msg) })

	if err := s.Connect(500); err != nil {
		t.Fatalf("connect: %v", err)
	}
	proto, ok := s.DetectedProtocol()
	if !ok {
		t.Fatal("expected a bound protocol after connect")
	}
	if proto != protocol.Stc12 {
		t.Fatalf("detected protocol = %v, want Stc12", proto)
	}
	if s.McuInfo().ModelName != "STC12C5410AD" {
		t.Fatalf("model name = %q, want STC12C5410AD", s.McuInfo().ModelName)
	}

	if err := s.SelectProtocol(); err != nil {
		t.Fatalf("select_protocol: %v", err)
	}

	firmware := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := s.Program(firmware, nil, nil); err != nil {
		t.Fatalf("program: %v", err)
	}

	if len(progressCalls) != 1 || progressCalls[0] != len(firmware) {
		t.Fatalf("progress calls = %v, want one call with %d", progressCalls, len(firmware))
	}
	if len(logged) == 0 {
		t.Fatal("expected at least one log message")
	}
	if s.phase != phaseDisconnected {
		t.Fatalf("phase after program = %v, want phaseDisconnected", s.phase)
	}
}

// TestSessionProgramBeforeSelectFails enforces spec §3's lifecycle
// gate: Program cannot run before SelectProtocol.
func TestSessionProgramBeforeSelectFails(t *testing.T) {
	ft := &stcfake.Transport{}
	s := NewSession(ft)
	if err := s.Program([]byte{0x01}, nil, nil); err == nil {
		t.Fatal("expected an error calling Program before select_protocol")
	}
}

// TestSessionManualModeSkipsModelLookup exercises spec §4.D: manual
// mode binds a protocol.ID directly and Connect does not need the
// magic to be present in the model database.
func TestSessionManualModeSkipsModelLookup(t *testing.T) {
	ft := &stcfake.Transport{}
	const cksum = frame.DoubleByte
	ft.QueueReply(frame.Build(cksum, frame.DirMCU, statusPayloadFor(0xFF, 0xFF)))

	s := NewSession(ft)
	if err := s.SetModeManual(protocol.Stc12); err != nil {
		t.Fatalf("set_mode_manual: %v", err)
	}
	if err := s.Connect(500); err != nil {
		t.Fatalf("connect: %v", err)
	}
	proto, ok := s.DetectedProtocol()
	if !ok || proto != protocol.Stc12 {
		t.Fatalf("detected protocol = %v, %v; want Stc12, true", proto, ok)
	}
}
