package family

import (
	"time"

	"stcisp.dev/frame"
	"stcisp.dev/protocol"
	"stcisp.dev/transport"
)

// buildFrame assembles a host request for the family's checksum
// discipline. Usb15 has no envelope of this kind; callers must not
// reach here for it (usbOps.Disconnect etc. return ErrUnsupported
// before ever building a frame).
func buildFrame(cfg protocol.Config, payload []byte) []byte {
	return frame.Build(cfg.Checksum, frame.DirHost, payload)
}

// recvFrame reads from t in chunks of up to 64 bytes and feeds each
// byte to the streaming receiver spec §4.B describes, until a complete
// frame parses or timeout elapses. Short reads (transport.Transport's
// contract allows them) are fed byte-by-byte as they arrive.
func recvFrame(t transport.Transport, cfg protocol.Config, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	rc := frame.NewReceiver(cfg.Checksum, maxFramePayload)
	var buf [64]byte
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNoResponse
		}
		n, err := t.Read(buf[:], remaining)
		if err != nil && n == 0 {
			if err == transport.ErrTimeout {
				return nil, ErrNoResponse
			}
			return nil, err
		}
		for _, b := range buf[:n] {
			switch rc.Feed(b) {
			case frame.StateComplete:
				payload := rc.Payload()
				out := make([]byte, len(payload))
				copy(out, payload)
				return out, nil
			case frame.StateError:
				return nil, rc.Err()
			}
		}
	}
}
