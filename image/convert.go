package image

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/makeworld-the-better-one/dither/v2"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// DefaultThreshold and DefaultMaxWidth match an 80mm, 203dpi receipt printer.
const (
	DefaultThreshold = 170
	DefaultMaxWidth  = 576
)

// Mode selects how gray levels become black and white dots.
type Mode string

const (
	// ModeThreshold prints a dot iff its luminance is below the threshold.
	ModeThreshold Mode = "threshold"
	// ModeDither uses Floyd-Steinberg error diffusion and ignores the threshold.
	ModeDither Mode = "dither"
)

// ParseMode maps a configuration string to a Mode. The empty string is ModeThreshold.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeThreshold:
		return ModeThreshold, nil
	case ModeDither:
		return ModeDither, nil
	}
	return "", fmt.Errorf("unknown raster mode %q", s)
}

var filters = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// ParseFilter maps a configuration string to a resize filter. The empty
// string is Lanczos3.
func ParseFilter(s string) (resize.InterpolationFunction, error) {
	if s == "" {
		return resize.Lanczos3, nil
	}
	f, ok := filters[s]
	if !ok {
		return 0, fmt.Errorf("unknown resize filter %q", s)
	}
	return f, nil
}

type Converter struct {
	// The maximum line width of the printer, in dots
	MaxWidth int

	// Dots with a luminance below Threshold print black
	Threshold uint8

	Mode Mode

	// Filter used when downscaling; the zero value is nearest neighbour
	Filter resize.InterpolationFunction
}

// Rasterize converts img with the default filter and threshold mode.
func Rasterize(img image.Image, maxWidth int, threshold uint8) (*Raster, error) {
	c := &Converter{
		MaxWidth:  maxWidth,
		Threshold: threshold,
		Mode:      ModeThreshold,
		Filter:    resize.Lanczos3,
	}
	return c.ToRaster(img)
}

// Print converts img and hands the raster to target.
func (c *Converter) Print(img image.Image, target Target) error {
	r, err := c.ToRaster(img)
	if err != nil {
		return err
	}
	return target.Raster(r)
}

// ToRaster downscales img to at most MaxWidth dots, converts it to grayscale
// over a white background and packs it into a Raster.
func (c *Converter) ToRaster(img image.Image) (*Raster, error) {
	if c.MaxWidth <= 0 {
		return nil, fmt.Errorf("converter: max width must be positive, got %d", c.MaxWidth)
	}
	if img == nil {
		return nil, &InvalidImageError{Reason: "no image"}
	}
	sz := img.Bounds().Size()
	if sz.X <= 0 || sz.Y <= 0 {
		return nil, &InvalidImageError{Reason: fmt.Sprintf("zero dimensions %dx%d", sz.X, sz.Y)}
	}

	if sz.X > c.MaxWidth {
		img = resize.Resize(uint(c.MaxWidth), uint(scaledHeight(sz, c.MaxWidth)), img, c.Filter)
		sz = img.Bounds().Size()
	}

	if sz.Y > MaxRasterDimension {
		return nil, &InvalidImageError{Reason: fmt.Sprintf("height %d exceeds %d rows", sz.Y, MaxRasterDimension)}
	}

	gray := grayscale(img)

	switch c.Mode {
	case ModeDither:
		return ditherRaster(gray), nil
	case ModeThreshold, "":
		return thresholdRaster(gray, c.Threshold), nil
	}
	return nil, fmt.Errorf("converter: unknown mode %q", c.Mode)
}

// scaledHeight keeps the aspect ratio at width w and never drops below one row.
func scaledHeight(sz image.Point, w int) int {
	h := int(math.Round(float64(sz.Y) * float64(w) / float64(sz.X)))
	return max(1, h)
}

func thresholdRaster(gray *image.Gray, threshold uint8) *Raster {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	r := newRaster(w, h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w]
		for x, lum := range row {
			if lum < threshold {
				r.set(x, y)
			}
		}
	}
	return r
}

func ditherRaster(gray *image.Gray) *Raster {
	d := dither.NewDitherer([]color.Color{color.Black, color.White})
	d.Matrix = dither.FloydSteinberg
	d.Serpentine = true
	p := d.DitherPaletted(gray)

	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	r := newRaster(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// palette index 0 is black
			if p.ColorIndexAt(p.Rect.Min.X+x, p.Rect.Min.Y+y) == 0 {
				r.set(x, y)
			}
		}
	}
	return r
}

const lumR, lumG, lumB = 55, 182, 18

// grayscale flattens img onto white and returns its luminance, origin at (0, 0).
func grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	bounds := image.Rect(0, 0, b.Dx(), b.Dy())

	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, b.Min, draw.Over)

	gray := image.NewGray(bounds)
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			gray.Pix[y*gray.Stride+x] = luminance(flat.RGBAAt(x, y))
		}
	}
	return gray
}

func luminance(c color.RGBA) uint8 {
	return uint8((lumR*uint32(c.R) + lumG*uint32(c.G) + lumB*uint32(c.B)) / (lumR + lumG + lumB))
}
