package image

// Target receives packed raster data, typically an ESC/POS command writer.
type Target interface {
	Raster(r *Raster) error
}
