// Package stcserial implements transport.Transport over a real serial
// port using github.com/tarm/serial, the way mjolnir/driver.go and
// driver/mjolnir/device.go open and drive the teacher's engraver
// device. tarm/serial only applies baud/parity at Open time, so
// SetBaudRate/SetParity here reopen the underlying port rather than
// reconfiguring it in place -- the STC bootloaders tolerate the brief
// gap because they are idle between frames anyway.
package stcserial

import (
	"errors"
	"io"
	"runtime"
	"time"

	"github.com/tarm/serial"

	"stcisp.dev/transport"
)

// Port is a transport.Transport backed by an OS serial device.
type Port struct {
	dev    string
	baud   int
	parity transport.Parity

	port io.ReadWriteCloser
	// buffered holds bytes Read has pulled off the OS but not yet
	// delivered to a caller, so Flush can discard them without racing
	// a concurrent kernel-level read.
	buffered []byte
}

// DefaultDevices guesses a serial device name per platform, mirroring
// driver/mjolnir/device.go's Open.
func DefaultDevices() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"COM3"}
	case "linux":
		return []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0"}
	case "darwin":
		return []string{"/dev/tty.usbserial", "/dev/tty.usbmodem"}
	default:
		return nil
	}
}

// Open opens dev (or, if empty, the first of DefaultDevices() that
// succeeds) at the given initial baud rate, 8 data bits, 1 stop bit,
// no parity (spec §6).
func Open(dev string, baud int) (*Port, error) {
	var devices []string
	if dev != "" {
		devices = []string{dev}
	} else {
		devices = DefaultDevices()
	}
	if len(devices) == 0 {
		return nil, errors.New("stcserial: no device specified")
	}
	p := &Port{baud: baud, parity: transport.ParityNone}
	var firstErr error
	for _, d := range devices {
		if err := p.reopen(d, baud, transport.ParityNone); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.dev = d
		return p, nil
	}
	return nil, firstErr
}

func (p *Port) reopen(dev string, baud int, parity transport.Parity) error {
	if p.port != nil {
		p.port.Close()
		p.port = nil
	}
	cfg := &serial.Config{
		Name:        dev,
		Baud:        baud,
		ReadTimeout: 50 * time.Millisecond,
		Size:        8,
		StopBits:    serial.Stop1,
		Parity:      serialParity(parity),
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return err
	}
	p.port = port
	p.dev = dev
	p.baud = baud
	p.parity = parity
	p.buffered = nil
	return nil
}

func serialParity(p transport.Parity) serial.Parity {
	if p == transport.ParityEven {
		return serial.ParityEven
	}
	return serial.ParityNone
}

// SetBaudRate reopens the port at baud (spec §4.A).
func (p *Port) SetBaudRate(baud int) error {
	if p.port == nil {
		return errors.New("stcserial: port not open")
	}
	return p.reopen(p.dev, baud, p.parity)
}

// SetParity reopens the port with the given parity (spec §4.A).
func (p *Port) SetParity(parity transport.Parity) error {
	if p.port == nil {
		return errors.New("stcserial: port not open")
	}
	return p.reopen(p.dev, p.baud, parity)
}

// Write writes all of data. timeout is advisory only: the underlying
// OS write call is assumed short-bounded (spec §5).
func (p *Port) Write(data []byte, timeout time.Duration) (int, error) {
	if p.port == nil {
		return 0, errors.New("stcserial: port not open")
	}
	return p.port.Write(data)
}

// Read fills buf with whatever arrives before timeout elapses,
// returning a short read if the deadline elapses with some bytes
// already buffered (spec §4.A).
func (p *Port) Read(buf []byte, timeout time.Duration) (int, error) {
	if p.port == nil {
		return 0, errors.New("stcserial: port not open")
	}
	deadline := time.Now().Add(timeout)
	total := 0
	for total < len(buf) {
		if len(p.buffered) > 0 {
			n := copy(buf[total:], p.buffered)
			p.buffered = p.buffered[n:]
			total += n
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		var chunk [256]byte
		n, err := p.port.Read(chunk[:])
		if n > 0 {
			p.buffered = append(p.buffered, chunk[:n]...)
			continue
		}
		if err != nil && err != io.EOF {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
	}
	if total == 0 {
		return 0, transport.ErrTimeout
	}
	return total, nil
}

// Flush discards any buffered but undelivered bytes.
func (p *Port) Flush() error {
	p.buffered = nil
	if f, ok := p.port.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// DelayMs sleeps for ms milliseconds.
func (p *Port) DelayMs(ms int) { time.Sleep(time.Duration(ms) * time.Millisecond) }

// TickMs returns a monotonic millisecond counter.
func (p *Port) TickMs() uint32 { return uint32(time.Now().UnixMilli()) }

// Close closes the underlying port.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	return err
}

var _ transport.Transport = (*Port)(nil)
