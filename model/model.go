// Package model holds the magic-code -> model table and the
// name-prefix fallback matcher spec §4.D describes. Lookup is linear:
// the database holds dozens of rows, not a scale that justifies an
// index.
package model

import (
	"strings"

	"stcisp.dev/protocol"
)

// Info describes one entry of the model database (spec §3).
type Info struct {
	Magic      uint16
	Name       string
	FlashSize  int
	EepromSize int
	Protocol   protocol.ID
}

// Table is the flat, ordered model database. Entries are grouped by
// family for readability; lookup order does not matter for the
// by-magic search (spec §8: "for every magic in the database, lookup
// returns the expected record").
var Table = []Info{
	{Magic: 0xE001, Name: "STC89C51RC", FlashSize: 8192, EepromSize: 2048, Protocol: protocol.Stc89},
	{Magic: 0xE002, Name: "STC89C52RC", FlashSize: 8192, EepromSize: 4096, Protocol: protocol.Stc89},
	{Magic: 0xE003, Name: "STC89C53RC", FlashSize: 12288, EepromSize: 4096, Protocol: protocol.Stc89},
	{Magic: 0xD101, Name: "STC89C51RD+", FlashSize: 8192, EepromSize: 2048, Protocol: protocol.Stc89a},
	{Magic: 0xD103, Name: "STC89C53RD+", FlashSize: 12288, EepromSize: 8192, Protocol: protocol.Stc89a},

	{Magic: 0xF001, Name: "IAP12C5410AD", FlashSize: 10240, EepromSize: 0, Protocol: protocol.Stc12},
	{Magic: 0xF002, Name: "STC12C5410AD", FlashSize: 10240, EepromSize: 0, Protocol: protocol.Stc12},
	{Magic: 0xF003, Name: "STC12C5412AD", FlashSize: 12288, EepromSize: 0, Protocol: protocol.Stc12},
	{Magic: 0xF010, Name: "STC12LE5A60S2", FlashSize: 61440, EepromSize: 0, Protocol: protocol.Stc12},

	{Magic: 0xF200, Name: "STC15F104E", FlashSize: 4096, EepromSize: 0, Protocol: protocol.Stc15a},
	{Magic: 0xF201, Name: "STC15F204EA", FlashSize: 4096, EepromSize: 0, Protocol: protocol.Stc15a},

	{Magic: 0xF400, Name: "STC15W408AS", FlashSize: 8192, EepromSize: 0, Protocol: protocol.Stc15},
	{Magic: 0xF454, Name: "STC15W4K32S4", FlashSize: 32768, EepromSize: 29696, Protocol: protocol.Stc15},
	{Magic: 0xF4A0, Name: "IAP15W4K58S4", FlashSize: 59392, EepromSize: 0, Protocol: protocol.Stc15},

	{Magic: 0xF700, Name: "STC8A8K64S4A12", FlashSize: 65536, EepromSize: 0, Protocol: protocol.Stc8},
	{Magic: 0xF7A1, Name: "STC8G1K08A", FlashSize: 8192, EepromSize: 0, Protocol: protocol.Stc8},
	{Magic: 0xF7B0, Name: "STC8H8K64U", FlashSize: 65536, EepromSize: 0, Protocol: protocol.Stc8},
	{Magic: 0xF7C0, Name: "STC8H1K08", FlashSize: 8192, EepromSize: 0, Protocol: protocol.Stc8},
	{Magic: 0xF7D0, Name: "STC8D8K64U", FlashSize: 65536, EepromSize: 0, Protocol: protocol.Stc8d},

	{Magic: 0xF800, Name: "STC32G12K128", FlashSize: 131072, EepromSize: 0, Protocol: protocol.Stc32},
	{Magic: 0xF801, Name: "STC32G8K64", FlashSize: 65536, EepromSize: 0, Protocol: protocol.Stc32},
}

// ByMagic scans the table for the given magic, O(N) over dozens of
// entries (spec §4.D).
func ByMagic(magic uint16) (Info, bool) {
	for _, m := range Table {
		if m.Magic == magic {
			return m, true
		}
	}
	return Info{}, false
}

// namePredicate is one entry of the ordered fallback matcher. Order
// matters: the first predicate that matches wins (spec §4.D).
type namePredicate struct {
	id    protocol.ID
	match func(name string) bool
}

func hasPrefix(p string) func(string) bool {
	return func(name string) bool { return strings.HasPrefix(name, p) }
}

func anyPrefix(ps ...string) func(string) bool {
	return func(name string) bool {
		for _, p := range ps {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}

// nameOrder is the most-specific-to-least-specific prefix matcher
// spec §4.D fixes as part of the contract:
//
//	STC32 -> STC8H1K -> STC8H -> STC8 -> STC15(F/L)(10/20) ->
//	STC15/IAP15/IRC15 -> "5052" substring -> STC10/11/12/IAP10/11/12 ->
//	STC89/90
var nameOrder = []namePredicate{
	{protocol.Stc32, hasPrefix("STC32")},
	{protocol.Stc8, func(n string) bool { return strings.HasPrefix(n, "STC8H1K") }},
	{protocol.Stc8, hasPrefix("STC8H")},
	{protocol.Stc8, func(n string) bool { return strings.HasPrefix(n, "STC8") && !strings.HasPrefix(n, "STC89") }},
	{protocol.Stc15a, func(n string) bool {
		return (strings.HasPrefix(n, "STC15F") || strings.HasPrefix(n, "STC15L")) &&
			(strings.Contains(n, "10") || strings.Contains(n, "20"))
	}},
	{protocol.Stc15, anyPrefix("STC15", "IAP15", "IRC15")},
	{protocol.Stc12, func(n string) bool { return strings.Contains(n, "5052") }},
	{protocol.Stc12, anyPrefix("STC10", "STC11", "STC12", "IAP10", "IAP11", "IAP12")},
	{protocol.Stc89, anyPrefix("STC89", "STC90")},
}

// ByName runs the ordered name-prefix matcher; first hit wins (spec
// §4.D). isp.Session.Connect does not call it: an Auto-mode magic
// that is not in Table fails with UnknownModel.
func ByName(name string) (protocol.ID, bool) {
	for _, p := range nameOrder {
		if p.match(name) {
			return p.id, true
		}
	}
	return 0, false
}
