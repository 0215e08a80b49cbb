package image

import (
	"fmt"
)

// MaxRasterDimension is the largest width in bytes or height in rows that
// fits the 16-bit fields of the GS v 0 header.
const MaxRasterDimension = 0xFFFF

// Raster is a 1-bit-per-pixel monochrome bitmap, packed most significant bit
// first, one row of WidthBytes bytes per image row. A set bit prints black.
type Raster struct {
	Width      int
	Height     int
	WidthBytes int
	Data       []byte
}

func newRaster(width, height int) *Raster {
	wb := (width + 7) / 8
	return &Raster{
		Width:      width,
		Height:     height,
		WidthBytes: wb,
		Data:       make([]byte, wb*height),
	}
}

// Bit reports whether the dot at (x, y) is black.
func (r *Raster) Bit(x, y int) bool {
	return r.Data[y*r.WidthBytes+x/8]&(0x80>>uint(x%8)) != 0
}

func (r *Raster) set(x, y int) {
	r.Data[y*r.WidthBytes+x/8] |= 0x80 >> uint(x%8)
}

// BlackDots counts the set bits in the raster.
func (r *Raster) BlackDots() int {
	n := 0
	for _, b := range r.Data {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

func (r *Raster) String() string {
	return fmt.Sprintf("Raster(%dx%d, %d bytes/row)", r.Width, r.Height, r.WidthBytes)
}

// InvalidImageError reports image input that cannot be turned into a raster:
// undecodable bytes, zero dimensions or sizes the printer protocol cannot carry.
type InvalidImageError struct {
	Reason string
	Err    error
}

func (e *InvalidImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid image: %s: %v", e.Reason, e.Err)
	}
	return "invalid image: " + e.Reason
}

func (e *InvalidImageError) Unwrap() error { return e.Err }
