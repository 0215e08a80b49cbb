package printer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/AlexStarov/escpos-print-bridge/util"
)

// Control characters
const (
	ESC = 0x1B
	GS  = 0x1D
	LF  = 0x0A
)

// Align is the ESC a justification parameter.
type Align byte

const (
	AlignLeft   Align = 0x00
	AlignCenter Align = 0x01
	AlignRight  Align = 0x02
)

// ESC @
func initPrinter() []byte {
	return []byte{ESC, 0x40}
}

// ESC a n
func setAlign(a Align) []byte {
	return []byte{ESC, 0x61, byte(a)}
}

// ESC d n, print the buffer and feed n lines
func feedLines(n byte) []byte {
	return []byte{ESC, 0x64, n}
}

// GS V 0, full cut
func fullCut() []byte {
	return []byte{GS, 0x56, 0x00}
}

var rasterPrefix = []byte{GS, 0x76, 0x30}

// GS v 0 m xL xH yL yH. After this command widthBytes*height bytes of bitmap
// data must follow.
func rasterHeader(widthBytes, height int) ([]byte, error) {
	xLH, err := util.IntLowHigh(widthBytes, 2)
	if err != nil {
		return nil, fmt.Errorf("raster width: %w", err)
	}
	yLH, err := util.IntLowHigh(height, 2)
	if err != nil {
		return nil, fmt.Errorf("raster height: %w", err)
	}

	header := append([]byte{}, rasterPrefix...)
	header = append(header, 0x00) // m: normal density
	header = append(header, xLH...)
	return append(header, yLH...), nil
}

var errNoRaster = errors.New("no raster header")

// ParseRasterHeader finds the first GS v 0 command in buf and returns its
// width in bytes, its height in rows and the offset of the bitmap data.
func ParseRasterHeader(buf []byte) (widthBytes, height, offset int, err error) {
	i := bytes.Index(buf, rasterPrefix)
	if i < 0 {
		return 0, 0, 0, errNoRaster
	}
	h := buf[i:]
	if len(h) < 8 {
		return 0, 0, 0, fmt.Errorf("truncated raster header at offset %d", i)
	}
	widthBytes = int(h[4]) | int(h[5])<<8
	height = int(h[6]) | int(h[7])<<8
	return widthBytes, height, i + 8, nil
}
