package family

import (
	"fmt"

	"stcisp.dev/family/trim"
)

// stc8Ops implements protocol.Stc8 and is embedded by stc8dOps/
// stc8gOps, which override only CalibrateFrequency for their own
// challenge grids (spec §4.E.3's STC8d/STC8g deltas). Handshake,
// erase, block programming, finish, options and disconnect are shared
// across the whole STC8 family and with STC15, since both generations
// share the same later-model bootloader shape (BSL-magic-72 block
// programming, no BRT, baud negotiated during calibration).
type stc8Ops struct{}

const stc8ProgramFreqHz = 24_000_000

func stc8Round1() []trim.Challenge {
	const rng = 0x00
	challenges := make([]trim.Challenge, 0, 17)
	for v := 1; v <= 241; v += 15 {
		challenges = append(challenges, trim.Challenge{Value: v, Range: rng})
	}
	return challenges
}

func (stc8Ops) ParseStatusPacket(s *State, payload []byte) error {
	return parseStatusCommon(s, payload, 12)
}

func (stc8Ops) Handshake(s *State) error {
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

func (stc8Ops) CalibrateFrequency(s *State, targetHz uint32) error {
	return calibrateGeneric(s, targetHz, calibParams{
		SyncByte:      0xFE,
		Dividers:      []int{1, 2, 3, 4, 5},
		Round1:        stc8Round1(),
		FineSpread:    1,
		ProgramFreqHz: stc8ProgramFreqHz,
		IapWait:       iapWaitFine,
	})
}

func (stc8Ops) EraseFlash(s *State, sizeBytes int) error {
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

func (stc8Ops) ProgramBlock(s *State, addr int, data []byte, isFirst bool) error {
	return programBlockBslMagic(s, addr, data, isFirst)
}

func (stc8Ops) ProgramFinish(s *State) error { return finishBslMagic(s) }

func (stc8Ops) SetOptions(s *State, optionBytes []byte) error { return setOptionsGeneric(s, optionBytes) }

func (stc8Ops) Disconnect(s *State) error { return disconnectFireAndForget(s, []byte{0x82}) }

// stc8dOps implements protocol.Stc8d: two challenge groups of 4 trims
// each at ranges {0x00,0x10,0x20,0x30}, fine round at +/-6 (spec
// §4.E.3).
type stc8dOps struct{ stc8Ops }

func stc8dRound1() []trim.Challenge {
	ranges := []int{0x00, 0x10, 0x20, 0x30}
	values := []int{1, 64, 128, 192}
	challenges := make([]trim.Challenge, 0, len(ranges)*len(values))
	for _, rng := range ranges {
		for _, v := range values {
			challenges = append(challenges, trim.Challenge{Value: v, Range: rng})
		}
	}
	return challenges
}

func (stc8dOps) CalibrateFrequency(s *State, targetHz uint32) error {
	return calibrateGeneric(s, targetHz, calibParams{
		SyncByte:      0xFE,
		Dividers:      []int{1},
		Round1:        stc8dRound1(),
		FineSpread:    6,
		ProgramFreqHz: stc8ProgramFreqHz,
		IapWait:       iapWaitFine,
	})
}

// stc8gOps implements protocol.Stc8g: challenges at ranges
// {0x00,0x80}, each payload followed by a 0x66 epilogue (spec
// §4.E.3).
type stc8gOps struct{ stc8Ops }

func stc8gRound1() []trim.Challenge {
	ranges := []int{0x00, 0x80}
	values := []int{1, 32, 64, 96, 128, 160, 192, 224}
	challenges := make([]trim.Challenge, 0, len(ranges)*len(values))
	for _, rng := range ranges {
		for _, v := range values {
			challenges = append(challenges, trim.Challenge{Value: v, Range: rng})
		}
	}
	return challenges
}

func (stc8gOps) CalibrateFrequency(s *State, targetHz uint32) error {
	return calibrateGeneric(s, targetHz, calibParams{
		SyncByte:      0xFE,
		Dividers:      []int{1},
		Round1:        stc8gRound1(),
		FineSpread:    1,
		Epilogue1:     12,
		Epilogue2:     19,
		ProgramFreqHz: stc8ProgramFreqHz,
		IapWait:       iapWaitFine,
	})
}

// stc32Ops implements protocol.Stc32. Spec §4.E gives no family-
// specific deltas for STC32 beyond the table row (needs_freq_calib,
// bsl_magic_72, double-byte checksum); it shares STC8's operations
// wholesale.
type stc32Ops struct{ stc8Ops }
