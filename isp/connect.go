package isp

import (
	"time"

	"stcisp.dev/frame"
	"stcisp.dev/transport"
)

// readStatusFrame scans t for one raw envelope: spec §4.F's connect()
// step reads "a framed payload at least 20 bytes long prefixed by
// 0x46 0xB9". The checksum discipline is unknown at this point -- the
// family hasn't been identified yet -- so this does not validate a
// checksum the way frame.Receiver does; it only locates the
// length-delimited content between the start bytes and the
// terminator. The generic status parser (family.parseStatusCommon)
// only reads from the front of that content, so 1-2 trailing checksum
// bytes folded into it are harmless.
func readStatusFrame(t transport.Transport, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	const (
		stIdle = iota
		stGotStart1
		stGotDir
		stLenHi
		stLenLo
		stBody
	)

	state := stIdle
	var lenHi byte
	var lenField int
	var body []byte

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, transport.ErrTimeout
		}
		var b [1]byte
		n, err := t.Read(b[:], remaining)
		if n == 0 {
			if err == nil || err == transport.ErrTimeout {
				continue
			}
			return nil, err
		}
		c := b[0]
		switch state {
		case stIdle:
			if c == frame.Start1 {
				state = stGotStart1
			}
		case stGotStart1:
			switch c {
			case frame.Start2:
				state = stGotDir
			case frame.Start1:
				// restart the prefix without loss
			default:
				state = stIdle
			}
		case stGotDir:
			// direction byte itself is not needed by the caller.
			state = stLenHi
		case stLenHi:
			lenHi = c
			state = stLenLo
		case stLenLo:
			lenField = int(lenHi)<<8 | int(c)
			if lenField < 3 {
				return nil, frame.ErrFrame
			}
			body = make([]byte, 0, lenField-3)
			state = stBody
		case stBody:
			if len(body) < lenField-3 {
				body = append(body, c)
				continue
			}
			if c != frame.End {
				return nil, frame.ErrFrame
			}
			return body, nil
		}
	}
}
