// Package family implements the per-protocol-family operations spec
// §4.E describes: parse-status, handshake, calibrate, erase,
// program-block, program-finish, set-options and disconnect, one
// implementation per protocol.ID. The shape is grounded on
// mjolnir/driver.go's per-opcode closures (wr/expect/atleast pairs),
// generalized here into one Ops implementation per family dispatched
// by a registry instead of inlined into a single driver function.
package family

import (
	"errors"
	"time"

	"stcisp.dev/protocol"
	"stcisp.dev/transport"
)

// Sentinel errors a family operation can return. isp.Session
// classifies these (and transport/frame errors) into the stable
// ErrorKind enumeration; family itself stays independent of isp to
// avoid an import cycle, exactly as protocol and frame stay
// independent of the session that uses them.
var (
	ErrHandshakeFail   = errors.New("family: handshake failed")
	ErrCalibrationFail = errors.New("family: frequency calibration failed")
	ErrEraseFail       = errors.New("family: erase failed")
	ErrProgramFail     = errors.New("family: program failed")
	ErrVerifyFail      = errors.New("family: verify failed")
	ErrNoResponse      = errors.New("family: no response")
	ErrUnsupported     = errors.New("family: unsupported protocol")
)

// CommConfig holds the negotiable communication parameters (spec §3).
type CommConfig struct {
	BaudHandshake    int
	BaudTransfer     int
	DefaultTimeoutMs int
	EraseTimeoutMs   int
}

// DefaultCommConfig matches spec §3's defaults.
func DefaultCommConfig() CommConfig {
	return CommConfig{
		BaudHandshake:    2400,
		BaudTransfer:     115200,
		DefaultTimeoutMs: 2000,
		EraseTimeoutMs:   15000,
	}
}

func (c CommConfig) defaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}

func (c CommConfig) eraseTimeout() time.Duration {
	return time.Duration(c.EraseTimeoutMs) * time.Millisecond
}

// McuInfo is what connect() discovers about the target (spec §3).
type McuInfo struct {
	Magic       uint16
	ModelName   string
	FlashSize   int
	EepromSize  int
	ClockHz     uint32
	BslVersion  string
	Cpu6T       bool
	FreqCounter float64
	UID         [7]byte
	UIDValid    bool
}

// TrimResult is produced by frequency calibration (spec §3).
type TrimResult struct {
	UserTrim       int
	ProgramTrim    int
	TrimDivider    int
	TrimRange      int
	FinalFrequency uint32
}

// State is the mutable protocol state one family's Ops operate on. It
// corresponds to the parts of spec §3's Session that the protocol
// operations themselves read and write; the selection mode, progress
// callback and public surface live one layer up, in isp.Session.
type State struct {
	Transport transport.Transport
	Config    protocol.Config
	Comm      CommConfig
	Mcu       McuInfo
	Trim      TrimResult

	// RawStatus is a retained copy of the bytes connect() first
	// parsed. STC15A calibration re-emits bytes 18..24 from it rather
	// than recomputing them from derived fields; the STC15/STC8-family
	// option-byte write does not read it.
	RawStatus []byte
}

const maxFramePayload = 512

// Exchange writes a request frame and waits for a reply frame,
// returning its payload. It is the common request/response primitive
// every family's handshake/erase/program/options step is built from
// (grounded on mjolnir/driver.go's wr+expect pairing).
func (s *State) Exchange(payload []byte, timeout time.Duration) ([]byte, error) {
	if err := s.Send(payload, timeout); err != nil {
		return nil, err
	}
	return s.Recv(timeout)
}

// Send frames and writes payload to the transport.
func (s *State) Send(payload []byte, timeout time.Duration) error {
	f := buildFrame(s.Config, payload)
	_, err := s.Transport.Write(f, timeout)
	return err
}

// Recv reads and parses one frame from the transport, returning its
// payload. It returns ErrNoResponse if the deadline elapses before a
// complete frame arrives.
func (s *State) Recv(timeout time.Duration) ([]byte, error) {
	return recvFrame(s.Transport, s.Config, timeout)
}

// SendRaw streams raw bytes with no envelope, used for the sync-byte
// bursts calibration emits (spec §4.E.3).
func (s *State) SendRaw(data []byte, timeout time.Duration) error {
	_, err := s.Transport.Write(data, timeout)
	return err
}
