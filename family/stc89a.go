package family

import (
	"fmt"

	"stcisp.dev/protocol"
	"stcisp.dev/transport"
)

// stc89aOps implements protocol.Stc89a: DoubleByte checksum, a parity
// switch to Even after the baud test, whole-chip-only erase with UID
// readback, and a fixed 0x46 0xB9 marker in place of STC89's BSL
// magic (spec §4.E). Its status-parser clock formula is reproduced
// verbatim from spec §9's flagged ambiguity: it omits the /7 the
// other families apply.
type stc89aOps struct{}

func (stc89aOps) ParseStatusPacket(s *State, payload []byte) error {
	if len(payload) < 15 {
		return fmt.Errorf("%w: status payload too short (%d bytes)", ErrHandshakeFail, len(payload))
	}
	// STC89A places its single period counter at offsets 13..14,
	// instead of averaging eight counters like the rest of the
	// family (spec §4.E.1).
	counter := float64(be16(payload[13:15]))
	s.Mcu.FreqCounter = counter
	// Reproduced verbatim: no /7, unlike every other family's clock
	// formula (spec §9 flags this as a latent inconsistency to verify
	// against real hardware before shipping, not to "fix").
	s.Mcu.ClockHz = uint32(12 * counter * float64(s.Comm.BaudHandshake))
	if len(payload) >= 22 {
		s.Mcu.Magic = be16(payload[20:22])
	}
	var minor byte
	if len(payload) > 22 {
		minor = payload[22]
	}
	if len(payload) > 18 {
		s.Mcu.BslVersion = renderBslVersion(payload[17], payload[18], minor)
	}
	s.RawStatus = append([]byte(nil), payload...)
	return nil
}

func (stc89aOps) Handshake(s *State) error {
	if s.Config.BrtWidth != protocol.BrtSixteen {
		return fmt.Errorf("%w: STC89A handshake requires a 16-bit BRT config", ErrHandshakeFail)
	}
	t := s.Comm.defaultTimeout()

	brt := stc89Brt(s.Mcu.ClockHz, s.Comm.BaudTransfer, 32)
	iapWait := iapWaitCoarse(s.Mcu.ClockHz)

	test := []byte{0x8F, 0xC0, byte(brt >> 8), byte(brt), 0x3F, 0x80, iapWait}
	if err := s.Send(test, t); err != nil {
		return err
	}
	if err := s.Transport.SetBaudRate(s.Comm.BaudTransfer); err != nil {
		return err
	}
	reply, err := s.Recv(t)
	if err != nil {
		return err
	}
	if len(reply) == 0 || reply[0] != 0x8F {
		return fmt.Errorf("%w: expected 0x8F at transfer baud, got %#x", ErrHandshakeFail, reply)
	}

	// Config.ParitySwitchAfterHandshake (spec §4.C) is what makes this
	// the one family that switches parity here instead of at connect
	// time; every other DoubleByte family's Config.Parity already
	// took effect before Handshake ran (isp.Session.Connect).
	if s.Config.ParitySwitchAfterHandshake {
		if err := s.Transport.SetParity(transport.ParityEven); err != nil {
			return err
		}
	}

	if err := s.Transport.SetBaudRate(s.Comm.BaudHandshake); err != nil {
		return err
	}
	commit := []byte{0x8E, 0xC0, byte(brt >> 8), byte(brt), 0x3F, 0x80, iapWait}
	if err := s.Send(commit, t); err != nil {
		return err
	}
	if err := s.Transport.SetBaudRate(s.Comm.BaudTransfer); err != nil {
		return err
	}
	reply, err = s.Recv(t)
	if err != nil {
		return err
	}
	if len(reply) == 0 || reply[0] != 0x84 {
		return fmt.Errorf("%w: expected 0x84 commit reply, got %#x", ErrHandshakeFail, reply)
	}
	return nil
}

func (stc89aOps) EraseFlash(s *State, sizeBytes int) error {
	payload := []byte{0x03, 0x00, 0x00, 0x46, 0xB9}
	reply, err := s.Exchange(payload, s.Comm.eraseTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEraseFail, err)
	}
	if len(reply) < 8 || reply[0] != 0x03 {
		return fmt.Errorf("%w: unexpected erase reply %#x", ErrEraseFail, reply)
	}
	if s.Config.HasUID && !s.Mcu.UIDValid {
		copy(s.Mcu.UID[:], reply[1:8])
		s.Mcu.UIDValid = true
	}
	return nil
}

func (stc89aOps) ProgramBlock(s *State, addr int, data []byte, isFirst bool) error {
	var payload []byte
	if isFirst {
		payload = []byte{0x22, 0x00, 0x00, 0x46, 0xB9}
	} else {
		payload = []byte{0x02, byte(addr >> 8), byte(addr), 0x46, 0xB9}
	}
	payload = append(payload, data...)
	reply, err := s.Exchange(payload, s.Comm.defaultTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProgramFail, err)
	}
	if len(reply) == 0 {
		return fmt.Errorf("%w: no program reply", ErrProgramFail)
	}
	return nil
}

func (stc89aOps) Disconnect(s *State) error {
	_ = s.Send([]byte{0xFF}, s.Comm.defaultTimeout())
	return nil
}
