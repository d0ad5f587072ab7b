package family

import "stcisp.dev/protocol"

// registry is the immutable protocol.ID -> Ops table. It is built
// once at package init and never mutated, matching spec §9's "no
// global mutable state" note.
var registry = map[protocol.ID]Ops{
	protocol.Stc89:  stc89Ops{},
	protocol.Stc89a: stc89aOps{},
	protocol.Stc12:  stc12Ops{},
	protocol.Stc15a: stc15aOps{},
	protocol.Stc15:  stc15Ops{},
	protocol.Stc8:   stc8Ops{},
	protocol.Stc8d:  stc8dOps{},
	protocol.Stc8g:  stc8gOps{},
	protocol.Stc32:  stc32Ops{},
	protocol.Usb15:  usbOps{},
}

// Lookup returns the operations table for id.
func Lookup(id protocol.ID) (Ops, bool) {
	ops, ok := registry[id]
	return ops, ok
}
