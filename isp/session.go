// Package isp implements the session controller and public façade
// spec §4.F/§4.G describe: the stateful driver that takes a target
// through Connect -> Select -> Handshake -> (Calibrate) -> Erase ->
// Program -> (Options) -> Disconnect, routing each step to the
// family.Ops the identified (or manually selected) protocol binds.
package isp

import (
	"errors"
	"fmt"
	"time"

	"stcisp.dev/family"
	"stcisp.dev/frame"
	"stcisp.dev/model"
	"stcisp.dev/protocol"
	"stcisp.dev/transport"
)

// Mode selects how a Session identifies its target (spec §3).
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
)

// ProgressFunc is invoked with (current, total) bytes after each
// completed program block (spec §4.F). It must not perform transport
// I/O or call back into the Session (spec §5: no reentrancy).
type ProgressFunc func(current, total int)

// LogFunc receives free-form progress/diagnostic text.
type LogFunc func(msg string)

type phase int

const (
	phaseDisconnected phase = iota
	phaseConnected
	phaseSelected
)

// Session owns one target programming act: one protocol.Config
// reference, one family.Ops reference, one McuInfo, one TrimResult,
// one CommConfig, and the raw status payload connect() captured
// (spec §3). A Session must be discarded (or explicitly Reset) after
// use; it is not safe to drive two distinct targets without a Reset
// between them (spec §5: the transport is exclusively owned by the
// session for the session's duration).
type Session struct {
	state family.State

	mode     Mode
	manualID protocol.ID
	ops      family.Ops
	bound    bool

	phase phase

	targetFreqHz uint32

	progress ProgressFunc
	log      LogFunc
}

// NewSession creates a Session bound to t with spec §3's default
// CommConfig and Auto family selection.
func NewSession(t transport.Transport) *Session {
	return &Session{
		state: family.State{Transport: t, Comm: family.DefaultCommConfig()},
		mode:  ModeAuto,
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.log != nil {
		s.log(fmt.Sprintf(format, args...))
	}
}

// SetProgress installs the block-progress callback.
func (s *Session) SetProgress(f ProgressFunc) { s.progress = f }

// SetLog installs the optional log callback.
func (s *Session) SetLog(f LogFunc) { s.log = f }

// CommConfig returns the negotiable communication parameters in
// effect (spec §3's defaults, or whatever Program's override set).
func (s *Session) CommConfig() family.CommConfig { return s.state.Comm }

// SetCommConfig overrides the negotiable communication parameters
// before Connect/Program.
func (s *Session) SetCommConfig(c family.CommConfig) { s.state.Comm = c }

// SetTargetFreq overrides the run frequency calibration targets for
// families with Config.NeedsFreqCalib (spec §4.E.3). Zero selects the
// family's own default (22.1184MHz for STC15, 24MHz for STC8).
func (s *Session) SetTargetFreq(hz uint32) { s.targetFreqHz = hz }

// SetModeAuto selects magic-database identification (spec §3, §4.D).
func (s *Session) SetModeAuto() {
	s.mode = ModeAuto
	s.bound = false
	s.ops = nil
}

// SetModeManual bypasses the model database and binds id's protocol
// config and operations directly (spec §4.D: "Manual mode bypasses
// this failure").
func (s *Session) SetModeManual(id protocol.ID) error {
	cfg, ok := protocol.Lookup(id)
	if !ok {
		return newErr(InvalidParam, "unknown protocol id %v", int(id))
	}
	ops, ok := family.Lookup(id)
	if !ok {
		return newErr(InvalidParam, "no operations table for protocol id %v", id)
	}
	s.mode = ModeManual
	s.manualID = id
	s.state.Config = cfg
	s.ops = ops
	s.bound = true
	return nil
}

// Reset returns the Session to its pre-Connect state so the same
// transport, CommConfig and callbacks can drive a fresh target (spec
// §3). Manual-mode binding survives a Reset; Auto-mode binding is
// cleared so the next Connect re-identifies the (possibly different)
// target.
func (s *Session) Reset() {
	t := s.state.Transport
	comm := s.state.Comm
	mode := s.mode

	s.state = family.State{Transport: t, Comm: comm}
	s.phase = phaseDisconnected
	s.mode = mode

	if mode == ModeManual {
		cfg, _ := protocol.Lookup(s.manualID)
		ops, _ := family.Lookup(s.manualID)
		s.state.Config = cfg
		s.ops = ops
		s.bound = true
	} else {
		s.ops = nil
		s.bound = false
	}
}

// Connect streams the sync byte (spec §6: "up to 3s of sustained
// streaming is expected") until the target's status packet arrives,
// identifies it in Auto mode, and fills McuInfo (spec §4.F).
func (s *Session) Connect(timeoutMs int) error {
	t := s.state.Transport
	if err := t.SetParity(transport.ParityNone); err != nil {
		return wrapErr(Protocol, err)
	}
	if err := t.SetBaudRate(s.state.Comm.BaudHandshake); err != nil {
		return wrapErr(Protocol, err)
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	var payload []byte
	for {
		if !time.Now().Before(deadline) {
			return newErr(Timeout, "no status packet within %dms", timeoutMs)
		}
		if err := t.Flush(); err != nil {
			return wrapErr(Protocol, err)
		}
		if _, err := t.Write([]byte{frame.Sync}, 50*time.Millisecond); err != nil {
			return wrapErr(Protocol, err)
		}
		t.DelayMs(30)
		p, err := readStatusFrame(t, 50*time.Millisecond)
		if err == nil && len(p) >= 20 {
			payload = p
			break
		}
	}

	magic := uint16(payload[20])<<8 | uint16(payload[21])
	s.state.Mcu.Magic = magic

	if s.mode == ModeAuto {
		info, ok := model.ByMagic(magic)
		if !ok {
			return newErr(UnknownModel, "magic %#04x is not in the model database", magic)
		}
		cfg, ok := protocol.Lookup(info.Protocol)
		if !ok {
			return newErr(Internal, "protocol table missing a row for %v", info.Protocol)
		}
		ops, ok := family.Lookup(info.Protocol)
		if !ok {
			return newErr(Internal, "no operations table for %v", info.Protocol)
		}
		s.state.Config = cfg
		s.ops = ops
		s.bound = true
		s.state.Mcu.ModelName = info.Name
		s.state.Mcu.FlashSize = info.FlashSize
		s.state.Mcu.EepromSize = info.EepromSize
	}
	if !s.bound {
		return newErr(InvalidParam, "no protocol family selected")
	}

	// Config.Parity is the single source of truth for which families
	// start even (spec §6: "all DoubleByte families start even");
	// ParitySwitchAfterHandshake (STC89A) defers this to the family's
	// own Handshake instead (spec §4.E.2).
	if s.state.Config.Parity && !s.state.Config.ParitySwitchAfterHandshake {
		if err := t.SetParity(transport.ParityEven); err != nil {
			return wrapErr(Protocol, err)
		}
	}

	if err := s.ops.ParseStatusPacket(&s.state, payload); err != nil {
		return translateFamilyErr(err)
	}
	s.phase = phaseConnected
	s.logf("connected: magic=%#04x model=%s bsl=%s clock=%dHz", s.state.Mcu.Magic, s.state.Mcu.ModelName, s.state.Mcu.BslVersion, s.state.Mcu.ClockHz)
	return nil
}

// SelectProtocol advances Connected -> ProtoSelected (spec §4.F). The
// family binding itself happens during Connect (Auto: from the magic
// lookup; Manual: from SetModeManual); SelectProtocol is the explicit
// gate the life cycle requires before Handshake/Program/EraseOnly run.
func (s *Session) SelectProtocol() error {
	if s.phase != phaseConnected {
		return newErr(InvalidParam, "select_protocol requires a prior successful connect")
	}
	if !s.bound {
		return newErr(UnknownModel, "no protocol family bound")
	}
	s.phase = phaseSelected
	return nil
}

// Program drives Handshake -> (Calibrate) -> Erase -> Program blocks
// -> (Finish) -> (Options) -> Disconnect (spec §3 Lifecycle, §4.F).
// comm, if non-nil, overrides the negotiated baud parameters before
// Handshake. optionBytes, if non-nil, is written via SetOptions after
// ProgramFinish and before Disconnect; it is an error to pass option
// bytes to a family with no OptionSetter.
func (s *Session) Program(data []byte, comm *family.CommConfig, optionBytes []byte) error {
	if s.phase != phaseSelected {
		return newErr(InvalidParam, "program requires select_protocol first")
	}
	if comm != nil {
		s.state.Comm = *comm
	}

	if err := s.ops.Handshake(&s.state); err != nil {
		return translateFamilyErr(err)
	}
	s.logf("handshake ok, transfer baud %d", s.state.Comm.BaudTransfer)

	if s.state.Config.NeedsFreqCalib {
		cal, ok := s.ops.(family.FrequencyCalibrator)
		if !ok {
			return newErr(Internal, "%v requires calibration but has no calibrator", s.state.Config.ID)
		}
		if err := cal.CalibrateFrequency(&s.state, s.targetFreqHz); err != nil {
			return translateFamilyErr(err)
		}
		s.logf("calibrated: trim=%d range=%d divider=%d final=%dHz",
			s.state.Trim.UserTrim, s.state.Trim.TrimRange, s.state.Trim.TrimDivider, s.state.Trim.FinalFrequency)
	}

	if err := s.ops.EraseFlash(&s.state, len(data)); err != nil {
		return translateFamilyErr(err)
	}
	s.logf("erase ok")

	block := s.state.Config.BlockSize
	total := len(data)
	addr := 0
	for {
		end := addr + block
		if end > total {
			end = total
		}
		chunk := make([]byte, block)
		copy(chunk, data[addr:end])
		if err := s.ops.ProgramBlock(&s.state, addr, chunk, addr == 0); err != nil {
			return translateFamilyErr(err)
		}
		done := end
		if s.progress != nil {
			s.progress(done, total)
		}
		if end >= total {
			break
		}
		addr += block
	}

	if fin, ok := s.ops.(family.Finisher); ok {
		if err := fin.ProgramFinish(&s.state); err != nil {
			return translateFamilyErr(err)
		}
	}

	if optionBytes != nil {
		setter, ok := s.ops.(family.OptionSetter)
		if !ok {
			return newErr(InvalidParam, "%v does not support option bytes", s.state.Config.ID)
		}
		// Config.OptionBytesLen (spec §4.C, §3 "option_bytes_len: 1..13")
		// is the family's valid option-byte length; anything longer is
		// almost certainly the caller passing the wrong buffer.
		if len(optionBytes) > s.state.Config.OptionBytesLen {
			return newErr(InvalidParam, "%v option bytes: got %d bytes, family allows at most %d",
				s.state.Config.ID, len(optionBytes), s.state.Config.OptionBytesLen)
		}
		if err := setter.SetOptions(&s.state, optionBytes); err != nil {
			return translateFamilyErr(err)
		}
	}

	_ = s.ops.Disconnect(&s.state)
	s.phase = phaseDisconnected
	return nil
}

// EraseOnly drives Handshake -> (Calibrate) -> Erase -> Disconnect
// with no programming step (spec §4.F). eepromBit adds EepromSize to
// the erased region when set.
func (s *Session) EraseOnly(eepromBit bool) error {
	if s.phase != phaseSelected {
		return newErr(InvalidParam, "erase_only requires select_protocol first")
	}
	if err := s.ops.Handshake(&s.state); err != nil {
		return translateFamilyErr(err)
	}
	if s.state.Config.NeedsFreqCalib {
		cal, ok := s.ops.(family.FrequencyCalibrator)
		if !ok {
			return newErr(Internal, "%v requires calibration but has no calibrator", s.state.Config.ID)
		}
		if err := cal.CalibrateFrequency(&s.state, s.targetFreqHz); err != nil {
			return translateFamilyErr(err)
		}
	}
	size := s.state.Mcu.FlashSize
	if eepromBit {
		size += s.state.Mcu.EepromSize
	}
	if err := s.ops.EraseFlash(&s.state, size); err != nil {
		return translateFamilyErr(err)
	}
	_ = s.ops.Disconnect(&s.state)
	s.phase = phaseDisconnected
	return nil
}

// Disconnect sends the family's disconnect opcode, if any. Failure to
// send is not fatal (spec §4.E.8); the Session always transitions to
// Disconnected.
func (s *Session) Disconnect() error {
	if s.ops != nil {
		_ = s.ops.Disconnect(&s.state)
	}
	s.phase = phaseDisconnected
	return nil
}

// McuInfo returns what Connect discovered about the target.
func (s *Session) McuInfo() family.McuInfo { return s.state.Mcu }

// TrimResult returns the last frequency calibration result, if any.
func (s *Session) TrimResult() family.TrimResult { return s.state.Trim }

// DetectedProtocol returns the bound protocol family, if any.
func (s *Session) DetectedProtocol() (protocol.ID, bool) {
	if !s.bound {
		return 0, false
	}
	return s.state.Config.ID, true
}

// translateFamilyErr maps a family/frame/transport error into the
// stable ErrorKind taxonomy spec §7 fixes.
func translateFamilyErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, family.ErrHandshakeFail):
		return wrapErr(HandshakeFail, err)
	case errors.Is(err, family.ErrCalibrationFail):
		return wrapErr(CalibrationFail, err)
	case errors.Is(err, family.ErrEraseFail):
		return wrapErr(EraseFail, err)
	case errors.Is(err, family.ErrVerifyFail):
		return wrapErr(VerifyFail, err)
	case errors.Is(err, family.ErrProgramFail):
		return wrapErr(ProgramFail, err)
	case errors.Is(err, family.ErrNoResponse):
		return wrapErr(NoResponse, err)
	case errors.Is(err, family.ErrUnsupported):
		return wrapErr(Protocol, err)
	case errors.Is(err, frame.ErrChecksum):
		return wrapErr(Checksum, err)
	case errors.Is(err, frame.ErrFrame):
		return wrapErr(Frame, err)
	case errors.Is(err, transport.ErrTimeout):
		return wrapErr(Timeout, err)
	default:
		return wrapErr(Protocol, err)
	}
}
