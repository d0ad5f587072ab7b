package family

import (
	"fmt"

	"stcisp.dev/protocol"
)

// stc12Ops implements protocol.Stc12 (spec §4.E): 8-bit BRT, DoubleByte
// checksum, erase countdown, BSL-magic-free block programming.
type stc12Ops struct{}

func (stc12Ops) ParseStatusPacket(s *State, payload []byte) error {
	return parseStatusCommon(s, payload, 12)
}

func (stc12Ops) Handshake(s *State) error {
	if s.Config.BrtWidth != protocol.BrtEight {
		return fmt.Errorf("%w: STC12 handshake requires an 8-bit BRT config", ErrHandshakeFail)
	}
	t := s.Comm.defaultTimeout()

	magic := make([]byte, 2)
	putBe16(magic, s.Mcu.Magic)
	req := append([]byte{0x50, 0x00, 0x00, 0x36, 0x01}, magic...)
	reply, err := s.Exchange(req, t)
	if err != nil {
		return err
	}
	if len(reply) == 0 || reply[0] != 0x8F {
		return fmt.Errorf("%w: expected 0x8F, got %#x", ErrHandshakeFail, reply)
	}

	brt := stc12Brt(s.Mcu.ClockHz, s.Comm.BaudTransfer)
	brtCsum := byte((2 * (256 - int(brt))) & 0xFF)
	iapWait := iapWaitFine(s.Mcu.ClockHz)

	test := []byte{0x8F, 0xC0, brt, 0x3F, brtCsum, 0x80, iapWait}
	if err := s.Send(test, t); err != nil {
		return err
	}
	if err := s.Transport.SetBaudRate(s.Comm.BaudTransfer); err != nil {
		return err
	}
	reply, err = s.Recv(t)
	if err != nil {
		return err
	}
	if len(reply) == 0 || reply[0] != 0x8F {
		return fmt.Errorf("%w: expected 0x8F at transfer baud, got %#x", ErrHandshakeFail, reply)
	}

	if err := s.Transport.SetBaudRate(s.Comm.BaudHandshake); err != nil {
		return err
	}
	commit := []byte{0x8E, 0xC0, brt, 0x3F, brtCsum, 0x80, iapWait}
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

// stc12Brt computes the 8-bit baud-rate-timer reload value (spec §4.E.2).
func stc12Brt(clockHz uint32, baudTransfer int) byte {
	v := 256 - roundDiv(float64(clockHz), float64(baudTransfer)*16)
	return clampByte(v, 1, 255)
}

func (stc12Ops) EraseFlash(s *State, sizeBytes int) error {
	if !s.Config.HasCountdown {
		return fmt.Errorf("%w: family has no erase countdown", ErrEraseFail)
	}
	blks := eraseBlocks(sizeBytes)
	totalBlks := blks
	payload := []byte{0x84, 0xFF, 0x00, byte(blks), 0x00, 0x00, byte(totalBlks)}
	payload = append(payload, make([]byte, 19)...)
	for v := 0x80; v >= int(s.Config.EraseCountdown); v-- {
		payload = append(payload, byte(v))
	}
	reply, err := s.Exchange(payload, s.Comm.eraseTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEraseFail, err)
	}
	if len(reply) == 0 || reply[0] != 0x00 {
		return fmt.Errorf("%w: unexpected erase reply %#x", ErrEraseFail, reply)
	}
	if s.Config.HasUID && len(reply) >= 8 && !s.Mcu.UIDValid {
		copy(s.Mcu.UID[:], reply[1:8])
		s.Mcu.UIDValid = true
	}
	return nil
}

func (stc12Ops) ProgramBlock(s *State, addr int, data []byte, isFirst bool) error {
	n := len(data)
	payload := []byte{0x00, 0x00, 0x00, byte(addr >> 8), byte(addr), byte(n >> 8), byte(n)}
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

func (stc12Ops) ProgramFinish(s *State) error {
	magic := make([]byte, 2)
	putBe16(magic, s.Mcu.Magic)
	req := append([]byte{0x69, 0x00, 0x00, 0x36, 0x01}, magic...)
	reply, err := s.Exchange(req, s.Comm.defaultTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProgramFail, err)
	}
	if len(reply) == 0 || reply[0] != 0x8D {
		return fmt.Errorf("%w: expected 0x8D finish reply, got %#x", ErrProgramFail, reply)
	}
	return nil
}

func (stc12Ops) SetOptions(s *State, optionBytes []byte) error {
	payload := append([]byte{0x8D}, padOptions(optionBytes)...)
	reply, err := s.Exchange(payload, s.Comm.defaultTimeout())
	if err != nil {
		return err
	}
	if len(reply) == 0 || reply[0] != 0x8D {
		return fmt.Errorf("%w: expected 0x8D options reply, got %#x", ErrProgramFail, reply)
	}
	return nil
}

func (stc12Ops) Disconnect(s *State) error {
	_ = s.Send([]byte{0x82}, s.Comm.defaultTimeout())
	return nil
}
