package printer

import (
	"fmt"

	imgInternal "github.com/AlexStarov/escpos-print-bridge/image"
)

var _ imgInternal.Target = (*Printer)(nil)

// Raster writes r as a single GS v 0 block: header, then the packed rows
// unchanged.
func (p *Printer) Raster(r *imgInternal.Raster) error {
	if len(r.Data) != r.WidthBytes*r.Height {
		return fmt.Errorf("raster data is %d bytes, want %d*%d", len(r.Data), r.WidthBytes, r.Height)
	}

	header, err := rasterHeader(r.WidthBytes, r.Height)
	if err != nil {
		return err
	}

	p.Write(header)
	p.Write(r.Data)
	return p.err
}
