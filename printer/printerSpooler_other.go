//go:build !windows

package printer

import (
	"context"
	"errors"
)

var errSpoolerUnsupported = errors.New("spooler link is only supported on Windows")

func (d *SpoolerDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	return nil, errSpoolerUnsupported
}
