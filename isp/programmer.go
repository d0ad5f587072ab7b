package isp

import (
	"stcisp.dev/family"
	"stcisp.dev/protocol"
	"stcisp.dev/transport"
)

// Programmer is the public façade spec §4.G describes: a thin wrapper
// over Session with no business logic of its own. Every error bubbles
// verbatim from the Session method it delegates to.
type Programmer struct {
	session *Session
}

// New constructs a Programmer bound to t, in Auto mode.
func New(t transport.Transport) *Programmer {
	return &Programmer{session: NewSession(t)}
}

// SetModeAuto selects magic-database identification.
func (p *Programmer) SetModeAuto() { p.session.SetModeAuto() }

// SetModeManual bypasses the model database and binds id directly.
func (p *Programmer) SetModeManual(id protocol.ID) error { return p.session.SetModeManual(id) }

// SetProgress installs the block-progress callback.
func (p *Programmer) SetProgress(f ProgressFunc) { p.session.SetProgress(f) }

// SetLog installs the optional log callback.
func (p *Programmer) SetLog(f LogFunc) { p.session.SetLog(f) }

// SetCommConfig overrides the negotiable communication parameters.
func (p *Programmer) SetCommConfig(c family.CommConfig) { p.session.SetCommConfig(c) }

// SetTargetFreq overrides the run frequency calibration target for
// families that calibrate. Zero selects the family's own default.
func (p *Programmer) SetTargetFreq(hz uint32) { p.session.SetTargetFreq(hz) }

// Connect identifies the target and fills its MCU info.
func (p *Programmer) Connect(timeoutMs int) error { return p.session.Connect(timeoutMs) }

// SelectProtocol advances Connected -> ProtoSelected.
func (p *Programmer) SelectProtocol() error { return p.session.SelectProtocol() }

// Program writes data to flash, optionally overriding comm parameters
// and/or writing option bytes.
func (p *Programmer) Program(data []byte, comm *family.CommConfig, optionBytes []byte) error {
	return p.session.Program(data, comm, optionBytes)
}

// EraseOnly erases flash (and EEPROM, if eepromBit is set) without
// programming.
func (p *Programmer) EraseOnly(eepromBit bool) error { return p.session.EraseOnly(eepromBit) }

// Disconnect ends the session. Program and EraseOnly disconnect on
// their own when they succeed; when one of them returns an error it
// does not disconnect.
func (p *Programmer) Disconnect() error { return p.session.Disconnect() }

// Reset prepares the Programmer to drive a fresh target over the same
// transport (spec §3).
func (p *Programmer) Reset() { p.session.Reset() }

// GetMcuInfo returns what Connect discovered about the target.
func (p *Programmer) GetMcuInfo() family.McuInfo { return p.session.McuInfo() }

// GetDetectedProtocol returns the bound protocol family, if any.
func (p *Programmer) GetDetectedProtocol() (protocol.ID, bool) { return p.session.DetectedProtocol() }

// GetErrorString renders a short, caller-displayable description for
// an ErrorKind (spec §7: "no localization inside the core").
func (p *Programmer) GetErrorString(k ErrorKind) string { return k.String() }
