package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AlexStarov/escpos-print-bridge/log"
)

// DefaultTimeout bounds each copy: connect, write and close.
const DefaultTimeout = 5 * time.Second

type DeliverOptions struct {
	// Timeout per copy, DefaultTimeout when zero
	Timeout time.Duration

	// Title names the document on links that carry one
	Title string

	Logger *slog.Logger
}

// Deliver sends buf to the printer copies times, each copy on its own
// connection. Copies go out strictly one after another and the first failure
// stops the loop. A copy already started is allowed to finish when ctx is
// cancelled; copies not yet started are not attempted.
func Deliver(ctx context.Context, d Dialer, buf []byte, copies int, opts DeliverOptions) error {
	if copies < 1 {
		return fmt.Errorf("copies must be at least 1, got %d", copies)
	}
	if len(buf) == 0 {
		return errors.New("empty print buffer")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.With("printer", d.Addr(), "copies", copies)

	for i := 1; i <= copies; i++ {
		if err := ctx.Err(); err != nil {
			return &TransportError{Copy: i, Copies: copies, Op: "cancel", Addr: d.Addr(), Err: err}
		}

		start := time.Now()
		if err := sendCopy(ctx, d, buf, opts); err != nil {
			var te *TransportError
			if errors.As(err, &te) {
				te.Copy, te.Copies = i, copies
			}
			logger.Error("copy failed", "copy", i, "error", err)
			return err
		}
		logger.Info("copy sent", "copy", i, "bytes", len(buf), "elapsed", time.Since(start))
	}
	return nil
}

func sendCopy(ctx context.Context, d Dialer, buf []byte, opts DeliverOptions) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.Timeout)
	defer cancel()

	fail := func(op string, err error) error {
		if ctx.Err() != nil && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return &TransportError{Op: op, Addr: d.Addr(), Err: err}
	}

	t, err := d.Dial(ctx, opts.Title)
	if err != nil {
		return fail("dial", err)
	}

	// the deadline is in place before the teardown below can run
	if dl, ok := t.(deadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := dl.SetDeadline(deadline); err != nil {
			_ = t.Close()
			return fail("deadline", err)
		}
	}

	// links without deadlines are torn down when the copy times out
	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer func() {
		stop()
		_ = t.Close()
	}()

	if err := writeAll(t, buf); err != nil {
		return fail("write", err)
	}
	if !stop() {
		return fail("write", context.DeadlineExceeded)
	}
	if err := t.Close(); err != nil {
		return fail("close", err)
	}
	return nil
}
