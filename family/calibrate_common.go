package family

import (
	"fmt"

	"stcisp.dev/family/trim"
)

// sendChallengesAndMeasure sends payload, pauses to let the target
// settle, streams ~1000 sync bytes, then parses one 16-bit period
// counter per challenge from the reply (spec §4.E.3).
func (s *State) sendChallengesAndMeasure(payload []byte, syncByte byte, nChallenges int) ([]int, error) {
	if err := s.Send(payload, s.Comm.defaultTimeout()); err != nil {
		return nil, err
	}
	s.Transport.DelayMs(100)
	sync := make([]byte, 1000)
	for i := range sync {
		sync[i] = syncByte
	}
	if err := s.SendRaw(sync, s.Comm.defaultTimeout()); err != nil {
		return nil, err
	}
	reply, err := s.Recv(s.Comm.defaultTimeout())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalibrationFail, err)
	}
	if len(reply) < nChallenges*2 {
		return nil, fmt.Errorf("%w: short calibration reply (%d bytes for %d challenges)", ErrCalibrationFail, len(reply), nChallenges)
	}
	counts := make([]int, nChallenges)
	for i := 0; i < nChallenges; i++ {
		counts[i] = int(be16(reply[i*2 : i*2+2]))
	}
	return counts, nil
}

// runChallengeRound sends one calibration challenge set under the
// common {cmd, count, (value,range)...} shape (spec §4.E.3) used by
// every calibrating family except STC15A.
func (s *State) runChallengeRound(cmd, syncByte byte, challenges []trim.Challenge, epilogue int) ([]int, error) {
	payload := []byte{cmd, byte(len(challenges))}
	for _, c := range challenges {
		payload = append(payload, byte(c.Value), byte(c.Range))
	}
	for i := 0; i < epilogue; i++ {
		payload = append(payload, 0x66)
	}
	return s.sendChallengesAndMeasure(payload, syncByte, len(challenges))
}

// runChallengeRoundOpcode is STC15A's variant: opcode, the 7 echoed
// calibration bytes from the saved status payload, then the usual
// count + (value,range) pairs (spec §4.E.3's STC15A delta).
func (s *State) runChallengeRoundOpcode(opcode byte, echo []byte, syncByte byte, challenges []trim.Challenge) ([]int, error) {
	payload := append([]byte{opcode}, echo...)
	payload = append(payload, byte(len(challenges)))
	for _, c := range challenges {
		payload = append(payload, byte(c.Value), byte(c.Range))
	}
	return s.sendChallengesAndMeasure(payload, syncByte, len(challenges))
}

// fineChallenges builds the round-2 refinement grid: the coarse
// trim +/- spread, all at rng (spec §4.E.3: "±1" normally, "±6" for
// STC8d/STC8g).
func fineChallenges(center, spread, rng int) []trim.Challenge {
	out := make([]trim.Challenge, 0, 2*spread+1)
	for v := center - spread; v <= center+spread; v++ {
		out = append(out, trim.Challenge{Value: v, Range: rng})
	}
	return out
}

// calibBrt computes the program-frequency BRT spec §4.E.3 step 4
// describes: round(65536 - program_freq/(baud_transfer*4)).
func calibBrt(programFreqHz float64, baudTransfer int) uint16 {
	v := 65536 - roundDiv(programFreqHz, float64(baudTransfer*4))
	if v < 0 {
		v = 0
	}
	if v > 65535 {
		v = 65535
	}
	return uint16(v)
}

// calibParams bundles the per-family knobs the shared round1/round2/
// commit search (calibrateGeneric) needs.
type calibParams struct {
	SyncByte      byte
	Dividers      []int // {1} where the family has no divider support
	Round1        []trim.Challenge
	FineSpread    int
	Epilogue1     int
	Epilogue2     int
	ProgramFreqHz float64
	IapWait       func(uint32) byte
}

// calibrateGeneric implements the shared two-round search (spec
// §4.E.3) every calibrating family but STC15A runs: STC15A echoes
// saved status bytes and uses its own opcode/commit shape, so it has
// its own CalibrateFrequency instead of calling this.
func calibrateGeneric(s *State, targetHz uint32, p calibParams) error {
	if targetHz == 0 {
		targetHz = uint32(p.ProgramFreqHz)
	}
	if s.Mcu.ClockHz == 0 {
		return fmt.Errorf("%w: unknown mcu clock", ErrCalibrationFail)
	}
	target := s.Mcu.FreqCounter * (float64(targetHz) / float64(s.Mcu.ClockHz))

	counts1, err := s.runChallengeRound(0x00, p.SyncByte, p.Round1, p.Epilogue1)
	if err != nil {
		return err
	}

	var approxTrim, pairIdx, divider int
	found := false
	for _, d := range p.Dividers {
		if at, idx, ok := trim.Bracket(p.Round1, counts1, target*float64(d)); ok {
			approxTrim, pairIdx, divider, found = at, idx, d, true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: no bracketing pair for target count %.1f", ErrCalibrationFail, target)
	}
	rng := p.Round1[pairIdx].Range

	round2 := fineChallenges(approxTrim, p.FineSpread, rng)
	counts2, err := s.runChallengeRound(0x00, p.SyncByte, round2, p.Epilogue2)
	if err != nil {
		return err
	}
	chosen, bestCount := trim.Finest(round2, counts2, target*float64(divider))

	brt := calibBrt(p.ProgramFreqHz, s.Comm.BaudTransfer)
	iapWait := p.IapWait(s.Mcu.ClockHz)
	commit := []byte{0x01, 0x00, 0x00, byte(brt >> 8), byte(brt), byte(chosen.Range), byte(chosen.Value), iapWait}
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
		TrimDivider:    divider,
		TrimRange:      chosen.Range,
		FinalFrequency: uint32(float64(bestCount) * float64(s.Comm.BaudHandshake) / 2 / float64(divider)),
	}
	return nil
}
