package printer

import (
	imgInternal "github.com/AlexStarov/escpos-print-bridge/image"
)

// Payload is what a Job prints: a RasterPayload or a TextPayload.
type Payload interface {
	payload()
}

// RasterPayload prints a monochrome bitmap, centred.
type RasterPayload struct {
	Raster *imgInternal.Raster
}

// TextPayload prints each entry as one line in the printer's built-in font.
type TextPayload []string

func (RasterPayload) payload() {}
func (TextPayload) payload()   {}

// Job is one print request. It lives for a single request and is never stored.
type Job struct {
	ID      string
	Title   string
	Payload Payload
	Copies  int
}
