package model

import (
	"testing"

	"stcisp.dev/protocol"
)

func TestByMagicAllTableEntries(t *testing.T) {
	for _, entry := range Table {
		got, ok := ByMagic(entry.Magic)
		if !ok {
			t.Errorf("magic %#04x not found", entry.Magic)
			continue
		}
		if got != entry {
			t.Errorf("magic %#04x: got %+v, want %+v", entry.Magic, got, entry)
		}
	}
}

func TestByMagicUnknown(t *testing.T) {
	if _, ok := ByMagic(0x0000); ok {
		t.Fatal("expected magic 0x0000 to be absent")
	}
}

// Scenario 7 (spec §8): fixed magic -> family mappings.
func TestScenarioKnownMagics(t *testing.T) {
	cases := []struct {
		magic uint16
		name  string
		proto protocol.ID
	}{
		{0xE001, "STC89C51RC", protocol.Stc89},
		{0xF454, "STC15W4K32S4", protocol.Stc15},
		{0xF7A1, "STC8G1K08A", protocol.Stc8},
		{0xF800, "STC32G12K128", protocol.Stc32},
	}
	for _, c := range cases {
		info, ok := ByMagic(c.magic)
		if !ok {
			t.Errorf("magic %#04x: not found", c.magic)
			continue
		}
		if info.Name != c.name || info.Protocol != c.proto {
			t.Errorf("magic %#04x: got name=%s proto=%v, want name=%s proto=%v",
				c.magic, info.Name, info.Protocol, c.name, c.proto)
		}
	}
}

func TestByNameUnambiguousPrefixes(t *testing.T) {
	// Names whose prefix uniquely identifies their own row's family
	// under the spec §4.D matcher order; STC89 vs STC89A ("RD+" suffix)
	// and the F-series/10-20 STC15A carve-out share a bare "STC89"/
	// "STC15F" prefix with other rows and are intentionally excluded
	// here -- the matcher is a best-effort fallback for when the magic
	// lookup misses, not a full reimplementation of the magic table.
	cases := []struct {
		name  string
		proto protocol.ID
	}{
		{"STC89C51RC", protocol.Stc89},
		{"IAP12C5410AD", protocol.Stc12},
		{"STC12LE5A60S2", protocol.Stc12},
		{"STC15W408AS", protocol.Stc15},
		{"IAP15W4K58S4", protocol.Stc15},
		{"STC8A8K64S4A12", protocol.Stc8},
		{"STC8H8K64U", protocol.Stc8},
		{"STC32G12K128", protocol.Stc32},
	}
	for _, c := range cases {
		id, ok := ByName(c.name)
		if !ok {
			t.Errorf("name %q: no match", c.name)
			continue
		}
		if id != c.proto {
			t.Errorf("name %q: got %v, want %v", c.name, id, c.proto)
		}
	}
}

func TestByNameMatchOrderSTC32BeforeSTC8H(t *testing.T) {
	// spec §4.D: STC32 must win over the STC8H*/STC8* branches even
	// though "STC32..." shares no literal overlap with "STC8" -- this
	// guards against a future reordering regressing the contract.
	id, ok := ByName("STC32G12K128")
	if !ok || id != protocol.Stc32 {
		t.Fatalf("got %v, %v; want Stc32, true", id, ok)
	}
}

func TestByName5052Fallback(t *testing.T) {
	id, ok := ByName("IAP5052RD")
	if !ok || id != protocol.Stc12 {
		t.Fatalf("got %v, %v; want Stc12, true", id, ok)
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, ok := ByName("UNKNOWNCHIP"); ok {
		t.Fatal("expected no match")
	}
}
