// command stcisp is a flag-driven front end for programming STC
// microcontrollers over their factory serial bootloader, grounded on
// cmd/cli/main.go's flag-vars + run() error + os.Exit(1) shape.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"stcisp.dev/family"
	"stcisp.dev/isp"
	"stcisp.dev/protocol"
	"stcisp.dev/stcserial"
)

var (
	device        = flag.String("device", "", "serial device (autodetected if empty)")
	firmwarePath  = flag.String("file", "", "firmware image to program (required unless -erase)")
	protoFlag     = flag.String("protocol", "auto", "protocol family: auto, stc89, stc89a, stc12, stc15a, stc15, stc8, stc8d, stc8g, stc32")
	eraseOnly     = flag.Bool("erase", false, "erase flash and exit, without programming")
	eraseEeprom   = flag.Bool("erase-eeprom", false, "with -erase, also erase EEPROM")
	baudHandshake = flag.Int("handshake-baud", 2400, "initial handshake baud rate")
	baudTransfer  = flag.Int("transfer-baud", 115200, "negotiated transfer baud rate")
	connectMs     = flag.Int("connect-timeout", 10000, "milliseconds to wait for the target's status packet")
	targetFreq    = flag.Uint("freq", 0, "target oscillator frequency in Hz, for families that calibrate (0 = family default)")
	optionsPath   = flag.String("options", "", "path to an option-byte file of at most 13 bytes, padded with 0xFF to the 40-byte option block (optional)")
	verbose       = flag.Bool("v", false, "print progress and log messages")
)

var protocolNames = map[string]protocol.ID{
	"stc89":  protocol.Stc89,
	"stc89a": protocol.Stc89a,
	"stc12":  protocol.Stc12,
	"stc15a": protocol.Stc15a,
	"stc15":  protocol.Stc15,
	"stc8":   protocol.Stc8,
	"stc8d":  protocol.Stc8d,
	"stc8g":  protocol.Stc8g,
	"stc32":  protocol.Stc32,
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if !*eraseOnly && *firmwarePath == "" {
		return errors.New("specify -file, or pass -erase to erase without programming")
	}

	var data []byte
	if !*eraseOnly {
		b, err := os.ReadFile(*firmwarePath)
		if err != nil {
			return err
		}
		data = b
	}

	port, err := stcserial.Open(*device, *baudHandshake)
	if err != nil {
		return fmt.Errorf("open serial port: %w", err)
	}
	defer port.Close()

	p := isp.New(port)
	p.SetCommConfig(family.CommConfig{
		BaudHandshake:    *baudHandshake,
		BaudTransfer:     *baudTransfer,
		DefaultTimeoutMs: 2000,
		EraseTimeoutMs:   15000,
	})
	p.SetTargetFreq(uint32(*targetFreq))
	if *verbose {
		p.SetLog(func(msg string) { fmt.Fprintln(os.Stderr, msg) })
		p.SetProgress(func(current, total int) {
			fmt.Fprintf(os.Stderr, "\rprogramming %d/%d bytes", current, total)
			if current >= total {
				fmt.Fprintln(os.Stderr)
			}
		})
	}

	if *protoFlag != "auto" {
		id, ok := protocolNames[*protoFlag]
		if !ok {
			return fmt.Errorf("unknown -protocol %q", *protoFlag)
		}
		if err := p.SetModeManual(id); err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stderr, "waiting for target (power-cycle it now)...")
	if err := p.Connect(*connectMs); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	info := p.GetMcuInfo()
	id, _ := p.GetDetectedProtocol()
	fmt.Fprintf(os.Stderr, "found %s (%s), magic %#04x, flash %d bytes, bsl %s\n",
		info.ModelName, id, info.Magic, info.FlashSize, info.BslVersion)

	if err := p.SelectProtocol(); err != nil {
		return err
	}

	if *eraseOnly {
		if err := p.EraseOnly(*eraseEeprom); err != nil {
			return fmt.Errorf("erase: %w", err)
		}
		fmt.Fprintln(os.Stderr, "erase complete")
		return nil
	}

	var optionBytes []byte
	if *optionsPath != "" {
		b, err := os.ReadFile(*optionsPath)
		if err != nil {
			return fmt.Errorf("read -options file: %w", err)
		}
		optionBytes = b
	}

	if err := p.Program(data, nil, optionBytes); err != nil {
		return fmt.Errorf("program: %w", err)
	}
	fmt.Fprintln(os.Stderr, "program complete")
	return nil
}
