package printer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.bug.st/serial"
)

// SerialDialer opens the printer's serial port (COM3, /dev/ttyUSB0, ...) for
// each copy, 8N1 at the configured baud rate.
type SerialDialer struct {
	Port     string
	BaudRate int
}

func (d *SerialDialer) Addr() string {
	return fmt.Sprintf("%s@%d", d.Port, d.BaudRate)
}

func (d *SerialDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	if !slices.Contains(ports, d.Port) {
		return nil, fmt.Errorf("serial port %s not found", d.Port)
	}

	mode := &serial.Mode{
		BaudRate: d.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", d.Port, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial port %s: %w", d.Port, err)
	}

	// serial.Port implements Drain, so Close waits for the output buffer
	return &RawTransport{conn: port}, nil
}
