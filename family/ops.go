package family

// Ops is the capability set every protocol family implements (spec
// §4.E): the operations present for all families. Operations a family
// does not use are expressed as separate optional interfaces below
// rather than no-op methods, so a type assertion -- not a sentinel
// return value -- tells the session whether the step applies.
type Ops interface {
	// ParseStatusPacket fills s.Mcu from the raw status payload
	// captured at connect() and retains a copy in s.RawStatus.
	ParseStatusPacket(s *State, payload []byte) error

	// Handshake negotiates the transfer baud rate. On return,
	// s.Transport's baud is s.Comm.BaudTransfer for every family
	// except the calibrating ones, where the final baud switch
	// happens inside CalibrateFrequency instead (spec §4.E.2).
	Handshake(s *State) error

	// EraseFlash erases at least sizeBytes of flash.
	EraseFlash(s *State, sizeBytes int) error

	// ProgramBlock writes one block of data at addr. data is already
	// padded to s.Config.BlockSize by the caller.
	ProgramBlock(s *State, addr int, data []byte, isFirst bool) error

	// Disconnect ends the session. Failure to send is not fatal (spec
	// §4.E.8); callers should not abort the rest of their cleanup over
	// a Disconnect error.
	Disconnect(s *State) error
}

// FrequencyCalibrator is implemented by families with
// Config.NeedsFreqCalib (spec §4.E.3). targetHz of zero selects the
// family's default run frequency.
type FrequencyCalibrator interface {
	CalibrateFrequency(s *State, targetHz uint32) error
}

// Finisher is implemented by families with an explicit program-finish
// step (spec §4.E.6).
type Finisher interface {
	ProgramFinish(s *State) error
}

// OptionSetter is implemented by families that support writing option
// bytes (spec §4.E.7).
type OptionSetter interface {
	SetOptions(s *State, optionBytes []byte) error
}
