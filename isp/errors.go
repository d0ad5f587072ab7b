package isp

import "fmt"

// ErrorKind is the stable error enumeration spec §6/§7 fixes, so a
// caller built against an older version of this library can still
// switch on it.
type ErrorKind int

const (
	Ok ErrorKind = iota
	Timeout
	Checksum
	Frame
	Protocol
	UnknownModel
	EraseFail
	ProgramFail
	VerifyFail
	HandshakeFail
	CalibrationFail
	InvalidParam
	NoResponse
	McuLocked
	Internal
)

var errorStrings = map[ErrorKind]string{
	Ok:              "ok",
	Timeout:         "timed out waiting for a reply",
	Checksum:        "checksum mismatch",
	Frame:           "malformed frame",
	Protocol:        "transport reported an error",
	UnknownModel:    "target model is not in the database",
	EraseFail:       "flash erase failed",
	ProgramFail:     "flash programming failed",
	VerifyFail:      "programmed data failed verification",
	HandshakeFail:   "baud rate handshake failed",
	CalibrationFail: "frequency calibration failed",
	InvalidParam:    "invalid parameter",
	NoResponse:      "target did not respond",
	McuLocked:       "target is locked",
	Internal:        "internal error",
}

// String renders a short, caller-displayable description. There is no
// localization inside the core (spec §7).
func (k ErrorKind) String() string {
	if s, ok := errorStrings[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is the error type every core operation returns. It always
// carries a stable Kind a caller can switch on, plus a free-form
// message for logs.
type Error struct {
	Kind ErrorKind
	Msg  string
	// Err, if non-nil, is the underlying cause (e.g. a transport or
	// frame error) this Error wraps.
	Err error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Msg: err.Error(), Err: err}
}
