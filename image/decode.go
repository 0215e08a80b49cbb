package image

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode parses PNG, JPEG, GIF, BMP, TIFF or WebP data. Images with more
// than maxPixels pixels are rejected before the pixel data is decoded; a
// maxPixels of zero disables the check.
func Decode(data []byte, maxPixels int) (image.Image, error) {
	if len(data) == 0 {
		return nil, &InvalidImageError{Reason: "empty image data"}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &InvalidImageError{Reason: "unrecognised image data", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &InvalidImageError{Reason: fmt.Sprintf("zero dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, &InvalidImageError{
			Reason: fmt.Sprintf("%dx%d %s exceeds %d pixels", cfg.Width, cfg.Height, format, maxPixels),
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &InvalidImageError{Reason: "cannot decode " + format, Err: err}
	}
	return img, nil
}
