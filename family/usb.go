package family

// usbOps implements protocol.Usb15. Spec §9 records this as a stub:
// the USB variant's wire format (frame.UsbBlock, §4.B) is specified,
// but no family operations are defined for it, and this preserves
// that behavior verbatim rather than inventing a handshake.
type usbOps struct{}

func (usbOps) ParseStatusPacket(s *State, payload []byte) error { return ErrUnsupported }
func (usbOps) Handshake(s *State) error                         { return ErrUnsupported }
func (usbOps) EraseFlash(s *State, sizeBytes int) error         { return ErrUnsupported }
func (usbOps) ProgramBlock(s *State, addr int, data []byte, isFirst bool) error {
	return ErrUnsupported
}
func (usbOps) Disconnect(s *State) error { return ErrUnsupported }
