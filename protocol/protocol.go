// Package protocol holds the static per-family parameter table (spec
// §4.C) that the rest of the core reads to pick framing, parity, BRT
// width, block size, and erase/option-byte shape for a given family.
// The table is the single source of truth for those parameters; it
// has no behavior beyond lookup.
package protocol

import "stcisp.dev/frame"

// ID is the closed enumeration of protocol families spec §3 names.
type ID int

const (
	Stc89 ID = iota
	Stc89a
	Stc12
	Stc15a
	Stc15
	Stc8
	Stc8d
	Stc8g
	Stc32
	Usb15
)

func (id ID) String() string {
	switch id {
	case Stc89:
		return "STC89"
	case Stc89a:
		return "STC89A"
	case Stc12:
		return "STC12"
	case Stc15a:
		return "STC15A"
	case Stc15:
		return "STC15"
	case Stc8:
		return "STC8"
	case Stc8d:
		return "STC8D"
	case Stc8g:
		return "STC8G"
	case Stc32:
		return "STC32"
	case Usb15:
		return "USB15"
	default:
		return "unknown"
	}
}

// BrtWidth is the width of the family's baud-rate-timer reload value,
// or None where baud derives from the programming oscillator instead
// (STC15 and newer).
type BrtWidth int

const (
	BrtNone BrtWidth = iota
	BrtEight
	BrtSixteen
)

// Config is one immutable row of the protocol table (spec §3, §4.C).
type Config struct {
	ID ID

	Checksum frame.Checksum
	Parity   bool // true => Even at connect time (DoubleByte families)
	BrtWidth BrtWidth
	BlockSize int
	OptionBytesLen int

	NeedsFreqCalib bool
	// EraseCountdown is the tail value of the STC12/STC15A erase
	// countdown sequence; zero means the family has no countdown.
	EraseCountdown byte
	HasCountdown   bool

	HasUID bool
	// ParitySwitchAfterHandshake, when set, defers the Parity switch
	// spec §6 otherwise applies at connect time until after the baud
	// test step of Handshake (STC89A only).
	ParitySwitchAfterHandshake bool
	BslMagic72 bool
}

// Table is the ordered, immutable per-family parameter table (spec
// §4.C). STC89 is the only SingleByte/no-parity row; STC12 is the
// only 8-bit-BRT row; rows with NeedsFreqCalib are
// {Stc15a,Stc15,Stc8,Stc8d,Stc8g,Stc32}; EraseCountdown is set only
// for {Stc12: 0x0D, Stc15a: 0x5E}; BslMagic72 families prefix
// programming payloads with 0x5A 0xA5 after the address; Stc89a is
// the only row with ParitySwitchAfterHandshake set (spec §6: "STC89A
// after baud test; all DoubleByte families start even").
var Table = map[ID]Config{
	Stc89: {
		ID: Stc89, Checksum: frame.SingleByte, Parity: false,
		BrtWidth: BrtSixteen, BlockSize: 128, OptionBytesLen: 13,
	},
	Stc89a: {
		ID: Stc89a, Checksum: frame.DoubleByte, Parity: true,
		BrtWidth: BrtSixteen, BlockSize: 128, OptionBytesLen: 13,
		HasUID: true, ParitySwitchAfterHandshake: true,
	},
	Stc12: {
		ID: Stc12, Checksum: frame.DoubleByte, Parity: true,
		BrtWidth: BrtEight, BlockSize: 128, OptionBytesLen: 13,
		EraseCountdown: 0x0D, HasCountdown: true, HasUID: true,
	},
	Stc15a: {
		ID: Stc15a, Checksum: frame.DoubleByte, Parity: true,
		BrtWidth: BrtNone, BlockSize: 64, OptionBytesLen: 13,
		NeedsFreqCalib: true, EraseCountdown: 0x5E, HasCountdown: true,
		BslMagic72: true,
	},
	Stc15: {
		ID: Stc15, Checksum: frame.DoubleByte, Parity: true,
		BrtWidth: BrtNone, BlockSize: 128, OptionBytesLen: 13,
		NeedsFreqCalib: true, BslMagic72: true,
	},
	Stc8: {
		ID: Stc8, Checksum: frame.DoubleByte, Parity: true,
		BrtWidth: BrtNone, BlockSize: 128, OptionBytesLen: 13,
		NeedsFreqCalib: true, BslMagic72: true, HasUID: true,
	},
	Stc8d: {
		ID: Stc8d, Checksum: frame.DoubleByte, Parity: true,
		BrtWidth: BrtNone, BlockSize: 128, OptionBytesLen: 13,
		NeedsFreqCalib: true, BslMagic72: true, HasUID: true,
	},
	Stc8g: {
		ID: Stc8g, Checksum: frame.DoubleByte, Parity: true,
		BrtWidth: BrtNone, BlockSize: 128, OptionBytesLen: 13,
		NeedsFreqCalib: true, BslMagic72: true, HasUID: true,
	},
	Stc32: {
		ID: Stc32, Checksum: frame.DoubleByte, Parity: true,
		BrtWidth: BrtNone, BlockSize: 128, OptionBytesLen: 13,
		NeedsFreqCalib: true, BslMagic72: true, HasUID: true,
	},
	Usb15: {
		ID: Usb15, Checksum: frame.UsbBlock, Parity: false,
		BrtWidth: BrtNone, BlockSize: 64, OptionBytesLen: 13,
	},
}

// Lookup returns the config row for id. The table is complete over
// the ID enumeration, so this never fails for a valid ID.
func Lookup(id ID) (Config, bool) {
	c, ok := Table[id]
	return c, ok
}
