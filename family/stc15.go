package family

import (
	"fmt"

	"stcisp.dev/family/trim"
)

// stc15Ops implements protocol.Stc15 (and is embedded by stc15aOps,
// which overrides only CalibrateFrequency and EraseFlash -- spec
// §4.E's STC15A deltas). DoubleByte checksum, no BRT (baud derives
// from the calibrated oscillator), BSL-magic-72 block programming.
type stc15Ops struct{}

const stc15ProgramFreqHz = 22_118_400

func stc15Round1() []trim.Challenge {
	const rng = 0x00
	challenges := make([]trim.Challenge, 0, 17)
	for v := 1; v <= 241; v += 15 {
		challenges = append(challenges, trim.Challenge{Value: v, Range: rng})
	}
	return challenges
}

func (stc15Ops) ParseStatusPacket(s *State, payload []byte) error {
	return parseStatusCommon(s, payload, 12)
}

func (stc15Ops) Handshake(s *State) error {
	// STC15 and newer calibrate before switching baud; the handshake
	// itself is only the 0x50 existence check (spec §4.E.2).
	magic := make([]byte, 2)
	putBe16(magic, s.Mcu.Magic)
	req := append([]byte{0x50, 0x00, 0x00, 0x36, 0x01}, magic...)
	reply, err := s.Exchange(req, s.Comm.defaultTimeout())
	if err != nil {
		return err
	}
	if len(reply) == 0 || reply[0] != 0x8F {
		return fmt.Errorf("%w: expected 0x8F, got %#x", ErrHandshakeFail, reply)
	}
	return nil
}

func (stc15Ops) CalibrateFrequency(s *State, targetHz uint32) error {
	return calibrateGeneric(s, targetHz, calibParams{
		SyncByte:      0x7F,
		Dividers:      []int{1, 2, 3, 4, 5},
		Round1:        stc15Round1(),
		FineSpread:    1,
		ProgramFreqHz: stc15ProgramFreqHz,
		IapWait:       iapWaitFine,
	})
}

func (stc15Ops) EraseFlash(s *State, sizeBytes int) error {
	payload := []byte{0x03, 0x00, 0x00, 0x5A, 0xA5}
	reply, err := s.Exchange(payload, s.Comm.eraseTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEraseFail, err)
	}
	if len(reply) == 0 || reply[0] != 0x03 {
		return fmt.Errorf("%w: unexpected erase reply %#x", ErrEraseFail, reply)
	}
	return nil
}

// programBlockBslMagic is the block-write shape every BslMagic72
// family shares (spec §4.E.5): opcode, address, a fixed 0x5A 0xA5
// marker gated on Config.BslMagic72 (spec §4.C is the single source
// of truth for whether this marker is sent at all), then the block
// padded to the family's block size.
func programBlockBslMagic(s *State, addr int, data []byte, isFirst bool) error {
	op := byte(0x02)
	if isFirst {
		op = 0x22
	}
	data = padTo(data, s.Config.BlockSize)
	payload := []byte{op, byte(addr >> 8), byte(addr)}
	if s.Config.BslMagic72 {
		payload = append(payload, 0x5A, 0xA5)
	}
	payload = append(payload, data...)
	reply, err := s.Exchange(payload, s.Comm.defaultTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProgramFail, err)
	}
	if len(reply) < 2 || reply[0] != 0x02 || reply[1] != 0x54 {
		return fmt.Errorf("%w: unexpected program reply %#x", ErrProgramFail, reply)
	}
	return nil
}

func (stc15Ops) ProgramBlock(s *State, addr int, data []byte, isFirst bool) error {
	return programBlockBslMagic(s, addr, data, isFirst)
}

// finishBslMagic is the explicit program-finish step BslMagic72
// families send (spec §4.E.6). It is only ever bound as a
// family.Finisher for those families, but still asserts
// Config.BslMagic72 so a config/ops mismatch fails loudly instead of
// silently sending the wrong wire shape.
func finishBslMagic(s *State) error {
	if !s.Config.BslMagic72 {
		return fmt.Errorf("%w: program finish requires bsl_magic_72", ErrProgramFail)
	}
	payload := []byte{0x07, 0x00, 0x00, 0x5A, 0xA5}
	reply, err := s.Exchange(payload, s.Comm.defaultTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProgramFail, err)
	}
	if len(reply) < 2 || reply[0] != 0x07 || reply[1] != 0x54 {
		return fmt.Errorf("%w: unexpected finish reply %#x", ErrProgramFail, reply)
	}
	return nil
}

func (stc15Ops) ProgramFinish(s *State) error { return finishBslMagic(s) }

// optionsFreqTrim builds the spec §4.E.7 option-byte placement every
// STC15/STC8 family shares at minimum: final_frequency (BE u32) at
// 24..28, user_trim (BE u16) at 28..30, trim_divider at byte 30.
func optionsFreqTrim(s *State, optionBytes []byte) []byte {
	buf := padOptions(optionBytes)
	putBe32(buf[24:28], s.Trim.FinalFrequency)
	putBe16(buf[28:30], uint16(s.Trim.UserTrim))
	buf[30] = byte(s.Trim.TrimDivider)
	return buf
}

func setOptionsGeneric(s *State, optionBytes []byte) error {
	buf := optionsFreqTrim(s, optionBytes)
	payload := append([]byte{0x04}, buf...)
	reply, err := s.Exchange(payload, s.Comm.defaultTimeout())
	if err != nil {
		return err
	}
	if len(reply) == 0 || reply[0] != 0x04 {
		return fmt.Errorf("%w: expected 0x04 options reply, got %#x", ErrProgramFail, reply)
	}
	return nil
}

func (stc15Ops) SetOptions(s *State, optionBytes []byte) error { return setOptionsGeneric(s, optionBytes) }

func disconnectFireAndForget(s *State, payload []byte) error {
	_ = s.Send(payload, s.Comm.defaultTimeout())
	return nil
}

func (stc15Ops) Disconnect(s *State) error { return disconnectFireAndForget(s, []byte{0x82}) }

// stc15aOps implements protocol.Stc15a: same block/finish/options/
// disconnect shape as STC15, but its own erase (countdown style, like
// STC12) and its own calibration opcode, echo bytes and commit shape
// (spec §4.E.3's STC15A deltas).
type stc15aOps struct{ stc15Ops }

func (stc15aOps) EraseFlash(s *State, sizeBytes int) error {
	if !s.Config.HasCountdown {
		return fmt.Errorf("%w: family has no erase countdown", ErrEraseFail)
	}
	blks := eraseBlocks(sizeBytes)
	payload := []byte{0x84, 0xFF, 0x00, byte(blks), 0x00, 0x00, byte(blks)}
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

func stc15aRound1() []trim.Challenge {
	challenges := make([]trim.Challenge, 0, 12)
	for _, rng := range []int{0x00, 0x40, 0x80} {
		for v := 10; v <= 240; v += 60 {
			challenges = append(challenges, trim.Challenge{Value: v, Range: rng})
		}
	}
	return challenges
}

// CalibrateFrequency implements STC15A's variant of the shared search:
// opcode 0x65 instead of 0x00, 7 echoed calibration bytes from the
// saved status payload (offsets 18..24), and an extended 0x8E commit
// instead of 0x01 (spec §4.E.3).
func (stc15aOps) CalibrateFrequency(s *State, targetHz uint32) error {
	if targetHz == 0 {
		targetHz = stc15ProgramFreqHz
	}
	if s.Mcu.ClockHz == 0 {
		return fmt.Errorf("%w: unknown mcu clock", ErrCalibrationFail)
	}
	if len(s.RawStatus) < 25 {
		return fmt.Errorf("%w: missing saved status payload for echo bytes", ErrCalibrationFail)
	}
	echo := append([]byte(nil), s.RawStatus[18:25]...)
	target := s.Mcu.FreqCounter * (float64(targetHz) / float64(s.Mcu.ClockHz))

	round1 := stc15aRound1()
	counts1, err := s.runChallengeRoundOpcode(0x65, echo, 0x7F, round1)
	if err != nil {
		return err
	}
	approxTrim, pairIdx, ok := trim.Bracket(round1, counts1, target)
	if !ok {
		return fmt.Errorf("%w: no bracketing pair for target count %.1f", ErrCalibrationFail, target)
	}
	rng := round1[pairIdx].Range

	round2 := fineChallenges(approxTrim, 1, rng)
	counts2, err := s.runChallengeRoundOpcode(0x65, echo, 0x7F, round2)
	if err != nil {
		return err
	}
	chosen, bestCount := trim.Finest(round2, counts2, target)

	brt := calibBrt(stc15ProgramFreqHz, s.Comm.BaudTransfer)
	iapWait := iapWaitFine(s.Mcu.ClockHz)
	commit := []byte{0x8E, 0x00, 0x00, byte(brt >> 8), byte(brt), byte(chosen.Range), byte(chosen.Value), iapWait}
	commit = append(commit, echo...)
	reply, err := s.Exchange(commit, s.Comm.defaultTimeout())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCalibrationFail, err)
	}
	if len(reply) == 0 {
		return fmt.Errorf("%w: no commit reply", ErrCalibrationFail)
	}
	if err := s.Transport.SetBaudRate(s.Comm.BaudTransfer); err != nil {
		return err
	}

	s.Trim = TrimResult{
		UserTrim:       chosen.Value,
		ProgramTrim:    chosen.Value,
		TrimDivider:    1,
		TrimRange:      chosen.Range,
		FinalFrequency: uint32(float64(bestCount) * float64(s.Comm.BaudHandshake) / 2),
	}
	return nil
}
