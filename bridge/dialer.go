package bridge

import (
	"fmt"
	"log/slog"

	"github.com/google/gousb"

	"github.com/AlexStarov/escpos-print-bridge/config"
	"github.com/AlexStarov/escpos-print-bridge/printer"
)

// NewDialer builds the printer link named by cfg.Link.
func NewDialer(cfg config.Printer, logger *slog.Logger) (printer.Dialer, error) {
	switch cfg.Link {
	case config.LinkTCP, "":
		return &printer.TCPDialer{Host: cfg.Host, Port: cfg.Port, Linger: cfg.Linger}, nil
	case config.LinkLPD:
		return &printer.LPDDialer{Host: cfg.Host, Port: cfg.Port, Queue: cfg.LPDQueue, Logger: logger}, nil
	case config.LinkSerial:
		return &printer.SerialDialer{Port: cfg.SerialPort, BaudRate: cfg.SerialBaud}, nil
	case config.LinkUSB:
		return &printer.USBDialer{VendorID: gousb.ID(cfg.USBVendor), ProductID: gousb.ID(cfg.USBProduct)}, nil
	case config.LinkSpooler:
		return &printer.SpoolerDialer{Name: cfg.SpoolerName}, nil
	}
	return nil, fmt.Errorf("unknown printer link %q", cfg.Link)
}
