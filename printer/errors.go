package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError reports the copy that could not be delivered. Copies
// before it were sent in full; copies after it were never attempted.
type TransportError struct {
	Copy   int
	Copies int
	Op     string
	Addr   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("copy %d of %d: %s %s: %v", e.Copy, e.Copies, e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the copy ran out of time.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
