package bridge

import "fmt"

// ValidationError rejects a request before any rasterizing or printer I/O.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InternalError wraps a failure outside the raster and transport stages.
// Clients only ever see its generic message.
type InternalError struct {
	JobID string
	Err   error
}

func (e *InternalError) Error() string {
	return "internal error"
}

func (e *InternalError) Unwrap() error { return e.Err }
