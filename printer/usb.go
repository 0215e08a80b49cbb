package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

// USBDialer claims the printer's bulk OUT endpoint for each copy.
type USBDialer struct {
	VendorID  gousb.ID
	ProductID gousb.ID

	// Endpoint is the bulk OUT endpoint number, 1 on most receipt printers
	Endpoint int
}

func (d *USBDialer) Addr() string {
	return fmt.Sprintf("usb:%s:%s", d.VendorID, d.ProductID)
}

func (d *USBDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev := &usbDevice{ctx: gousb.NewContext()}
	var err error
	if dev.dev, err = dev.ctx.OpenDeviceWithVIDPID(d.VendorID, d.ProductID); err != nil {
		dev.Close()
		return nil, err
	}
	if dev.dev == nil {
		dev.Close()
		return nil, fmt.Errorf("no USB printer %s:%s", d.VendorID, d.ProductID)
	}
	if err := dev.dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, err
	}
	if dev.cfg, err = dev.dev.Config(1); err != nil {
		dev.Close()
		return nil, err
	}
	if dev.intf, err = dev.cfg.Interface(0, 0); err != nil {
		dev.Close()
		return nil, err
	}

	ep := d.Endpoint
	if ep == 0 {
		ep = 1
	}
	out, err := dev.intf.OutEndpoint(ep)
	if err != nil {
		dev.Close()
		return nil, err
	}
	conn := newUSBConn(out, dev)
	// status reads are optional
	if in, err := dev.intf.InEndpoint(ep); err == nil {
		conn.in = in
	}
	return conn, nil
}

// usbDevice owns the libusb handles behind one connection.
type usbDevice struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
}

func (u *usbDevice) Close() error {
	var err error
	if u.intf != nil {
		u.intf.Close()
	}
	if u.cfg != nil {
		err = errors.Join(err, u.cfg.Close())
	}
	if u.dev != nil {
		err = errors.Join(err, u.dev.Close())
	}
	if u.ctx != nil {
		err = errors.Join(err, u.ctx.Close())
	}
	return err
}

type usbWriter interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}

type usbReader interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// usbConn runs every transfer under the connection's deadline. Close cancels
// transfers in flight and waits for them before releasing the device, so it
// is safe to call from another goroutine.
type usbConn struct {
	out usbWriter
	in  usbReader
	dev interface{ Close() error }

	// base is cancelled by Close; io derives from it and carries the deadline
	base   context.Context
	stop   context.CancelFunc
	ctxMu  sync.Mutex
	io     context.Context
	ioStop context.CancelFunc

	// transfers hold mu for reading, Close takes it for writing
	mu       sync.RWMutex
	closed   bool
	once     sync.Once
	closeErr error
}

func newUSBConn(out usbWriter, dev interface{ Close() error }) *usbConn {
	base, stop := context.WithCancel(context.Background())
	return &usbConn{out: out, dev: dev, base: base, stop: stop, io: base, ioStop: func() {}}
}

var (
	errUSBReadUnsupported = errors.New("USB read not supported")
	errUSBClosed          = errors.New("USB connection closed")
)

func (u *usbConn) SetDeadline(t time.Time) error {
	u.ctxMu.Lock()
	defer u.ctxMu.Unlock()
	u.ioStop()
	if t.IsZero() {
		u.io, u.ioStop = u.base, func() {}
		return nil
	}
	u.io, u.ioStop = context.WithDeadline(u.base, t)
	return nil
}

func (u *usbConn) ioContext() context.Context {
	u.ctxMu.Lock()
	defer u.ctxMu.Unlock()
	return u.io
}

func (u *usbConn) Write(p []byte) (int, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return 0, errUSBClosed
	}
	return u.out.WriteContext(u.ioContext(), p)
}

func (u *usbConn) Read(p []byte) (int, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return 0, errUSBClosed
	}
	if u.in == nil {
		return 0, errUSBReadUnsupported
	}
	return u.in.ReadContext(u.ioContext(), p)
}

func (u *usbConn) Close() error {
	u.once.Do(func() {
		u.stop()

		u.mu.Lock()
		defer u.mu.Unlock()
		u.closed = true

		u.ctxMu.Lock()
		u.ioStop()
		u.ctxMu.Unlock()

		if u.dev != nil {
			u.closeErr = u.dev.Close()
		}
	})
	return u.closeErr
}
