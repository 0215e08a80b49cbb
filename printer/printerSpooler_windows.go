//go:build windows

package printer

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// spoolerConn writes one RAW document through the Windows Spooler API.
type spoolerConn struct {
	hPrinter windows.Handle
	once     sync.Once
}

func (s *spoolerConn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var written uint32
	r1, _, err := procWritePrinter.Call(
		uintptr(s.hPrinter),
		uintptr(unsafe.Pointer(&p[0])),
		uintptr(len(p)),
		uintptr(unsafe.Pointer(&written)),
	)
	if r1 == 0 {
		return int(written), fmt.Errorf("WritePrinter: %w", err)
	}
	return int(written), nil
}

func (s *spoolerConn) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("read not supported for Windows spooler connection")
}

// Close ends the page and document, which hands the job to the spooler.
func (s *spoolerConn) Close() error {
	var err error
	s.once.Do(func() {
		procEndPagePrinter.Call(uintptr(s.hPrinter))
		if r1, _, e := procEndDocPrinter.Call(uintptr(s.hPrinter)); r1 == 0 {
			err = fmt.Errorf("EndDocPrinter: %w", e)
		}
		procClosePrinter.Call(uintptr(s.hPrinter))
	})
	return err
}

func (d *SpoolerDialer) Dial(ctx context.Context, name string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hPrinter windows.Handle
	pname, err := windows.UTF16PtrFromString(d.Name)
	if err != nil {
		return nil, err
	}
	r1, _, err := procOpenPrinter.Call(
		uintptr(unsafe.Pointer(pname)),
		uintptr(unsafe.Pointer(&hPrinter)),
		0,
	)
	if r1 == 0 {
		return nil, fmt.Errorf("failed to open printer %q: %w", d.Name, err)
	}

	if name == "" {
		name = "ESC/POS RAW Document"
	}
	docName, _ := windows.UTF16PtrFromString(name)
	dataType, _ := windows.UTF16PtrFromString("RAW")
	di := docInfo1{
		pDocName:    docName,
		pOutputFile: nil,
		pDatatype:   dataType,
	}

	r1, _, err = procStartDocPrinter.Call(
		uintptr(hPrinter),
		1,
		uintptr(unsafe.Pointer(&di)),
	)
	if r1 == 0 {
		procClosePrinter.Call(uintptr(hPrinter))
		return nil, fmt.Errorf("StartDocPrinter failed: %w", err)
	}

	procStartPagePrinter.Call(uintptr(hPrinter))

	return &spoolerConn{hPrinter: hPrinter}, nil
}

// --- WinAPI binding ---
var (
	modwinspool          = windows.NewLazySystemDLL("winspool.drv")
	procOpenPrinter      = modwinspool.NewProc("OpenPrinterW")
	procClosePrinter     = modwinspool.NewProc("ClosePrinter")
	procStartDocPrinter  = modwinspool.NewProc("StartDocPrinterW")
	procEndDocPrinter    = modwinspool.NewProc("EndDocPrinter")
	procStartPagePrinter = modwinspool.NewProc("StartPagePrinter")
	procEndPagePrinter   = modwinspool.NewProc("EndPagePrinter")
	procWritePrinter     = modwinspool.NewProc("WritePrinter")
)

type docInfo1 struct {
	pDocName    *uint16
	pOutputFile *uint16
	pDatatype   *uint16
}
