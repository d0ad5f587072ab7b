package family

import (
	"fmt"

	"stcisp.dev/protocol"
)

// stc89Ops implements protocol.Stc89: SingleByte checksum, no parity,
// 16-bit BRT, a coarser IAP wait table, and a cpu_6t-dependent clock
// formula (spec §4.E).
type stc89Ops struct{}

func (stc89Ops) ParseStatusPacket(s *State, payload []byte) error {
	if len(payload) < 22 {
		return fmt.Errorf("%w: status payload too short (%d bytes)", ErrHandshakeFail, len(payload))
	}
	fc := computeFreqCounter(payload)
	s.Mcu.FreqCounter = fc
	s.Mcu.Cpu6T = payload[19]&0x01 == 0
	k := 12
	if s.Mcu.Cpu6T {
		k = 6
	}
	s.Mcu.ClockHz = uint32(float64(s.Comm.BaudHandshake) * fc * float64(k) / 7)
	s.Mcu.Magic = be16(payload[20:22])
	var minor byte
	if len(payload) > 22 {
		minor = payload[22]
	}
	s.Mcu.BslVersion = renderBslVersion(payload[17], payload[18], minor)
	s.RawStatus = append([]byte(nil), payload...)
	return nil
}

// stc89Brt computes the 16-bit baud-rate-timer reload value (spec
// §4.E.2). sampleRate is 16 for 6T parts, 32 for 12T parts.
func stc89Brt(clockHz uint32, baudTransfer, sampleRate int) uint16 {
	v := 65536 - roundDiv(float64(clockHz), float64(baudTransfer*sampleRate))
	if v < 1 {
		v = 1
	}
	if v > 65535 {
		v = 65535
	}
	return uint16(v)
}

func (stc89Ops) Handshake(s *State) error {
	if s.Config.BrtWidth != protocol.BrtSixteen {
		return fmt.Errorf("%w: STC89 handshake requires a 16-bit BRT config", ErrHandshakeFail)
	}
	t := s.Comm.defaultTimeout()

	sampleRate := 32
	if s.Mcu.Cpu6T {
		sampleRate = 16
	}
	brt := stc89Brt(s.Mcu.ClockHz, s.Comm.BaudTransfer, sampleRate)
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

	// Four ping-pong rounds confirm the new baud is stable before any
	// erase/program traffic (spec §4.E.2).
	for i := 0; i < 4; i++ {
		reply, err := s.Exchange([]byte{0x80}, t)
		if err != nil {
			return err
		}
		if len(reply) == 0 || reply[0] != 0x80 {
			return fmt.Errorf("%w: ping-pong round %d failed", ErrHandshakeFail, i)
		}
	}
	return nil
}

func (stc89Ops) EraseFlash(s *State, sizeBytes int) error {
	blks := eraseBlocks(sizeBytes)
	payload := []byte{0x84, byte(blks), 0x33, 0x33, 0x33, 0x33, 0x33, 0x33}
	reply, err := s.Exchange(payload, s.Comm.eraseTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEraseFail, err)
	}
	if len(reply) == 0 || reply[0] != 0x80 {
		return fmt.Errorf("%w: unexpected erase reply %#x", ErrEraseFail, reply)
	}
	return nil
}

func (stc89Ops) ProgramBlock(s *State, addr int, data []byte, isFirst bool) error {
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
	var want byte
	for _, b := range data {
		want += b
	}
	if reply[len(reply)-1] != want {
		return fmt.Errorf("%w: block sum mismatch at addr %d", ErrVerifyFail, addr)
	}
	return nil
}

func (stc89Ops) Disconnect(s *State) error {
	_ = s.Send([]byte{0xFF}, s.Comm.defaultTimeout())
	return nil
}
