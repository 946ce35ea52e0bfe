// Package upright produces rasters whose pixels already match the
// EXIF-declared viewing orientation.
package upright

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/object-eraser/pkg/diag"
	"github.com/menta2k/object-eraser/pkg/exif"
	"github.com/menta2k/object-eraser/pkg/processing"
	"github.com/menta2k/object-eraser/pkg/types"
)

// Config controls the rasterizer
type Config struct {
	// ScanWindow is how many leading bytes are searched for EXIF data
	ScanWindow int
	Diag       diag.Sink
}

// Rasterizer removes the need for EXIF orientation from image data
type Rasterizer struct {
	config    Config
	processor *processing.Processor
}

// New creates a rasterizer with default configuration
func New(processor *processing.Processor) *Rasterizer {
	return NewWithConfig(processor, Config{})
}

// NewWithConfig creates a rasterizer with custom configuration
func NewWithConfig(processor *processing.Processor, config Config) *Rasterizer {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if config.ScanWindow <= 0 {
		config.ScanWindow = exif.DefaultWindow
	}
	config.Diag = diag.OrNop(config.Diag)
	return &Rasterizer{config: config, processor: processor}
}

// Detect reads the orientation from the head of data
func (r *Rasterizer) Detect(data []byte) exif.Orientation {
	o := exif.Read(bytes.NewReader(data), r.config.ScanWindow)
	if o == exif.Unknown {
		r.config.Diag.Debugf("no EXIF orientation, assuming upright")
	}
	return o
}

// Upright returns data as an upright raster. When no transform is needed
// the input bytes are returned untouched; otherwise the pixels are
// transformed and re-encoded as PNG without metadata. An Unknown
// orientation is detected from data.
func (r *Rasterizer) Upright(data []byte, o exif.Orientation) (types.RasterAsset, error) {
	if o == exif.Unknown {
		o = r.Detect(data)
	}
	if !o.NeedsTransform() {
		cfg, format, err := r.processor.DecodeConfig(data)
		if err != nil {
			return types.RasterAsset{}, err
		}
		return types.RasterAsset{
			Data:   data,
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: format,
			MIME:   "image/" + format,
		}, nil
	}

	img, err := r.UprightImage(data, o)
	if err != nil {
		return types.RasterAsset{}, err
	}
	return r.processor.Encode(img, processing.FormatPNG)
}

// UprightImage decodes data and applies the orientation transform
func (r *Rasterizer) UprightImage(data []byte, o exif.Orientation) (image.Image, error) {
	if o == exif.Unknown {
		o = r.Detect(data)
	}
	img, err := r.processor.Decode(data)
	if err != nil {
		return nil, err
	}
	if o.NeedsTransform() {
		b := img.Bounds()
		r.config.Diag.Debugf("applying orientation %d (%d°, mirrored=%v) to %dx%d",
			o, o.RotationDegrees(), o.Mirrored(), b.Dx(), b.Dy())
	}
	return Apply(img, o), nil
}

// Preview is for display-only paths: on failure it logs and falls back to
// the unrotated input.
func (r *Rasterizer) Preview(data []byte, o exif.Orientation) types.RasterAsset {
	asset, err := r.Upright(data, o)
	if err != nil {
		r.config.Diag.Warnf("preview orientation failed, showing stored pixels: %v", err)
		return types.RasterAsset{Data: data}
	}
	return asset
}

// Apply transforms img so that it displays upright for orientation o.
// Each case is a single whole-image operation.
func Apply(img image.Image, o exif.Orientation) image.Image {
	switch o {
	case exif.FlipH:
		return imaging.FlipH(img)
	case exif.Rotate180:
		return imaging.Rotate180(img)
	case exif.FlipV:
		return imaging.FlipV(img)
	case exif.Transpose:
		return imaging.Transpose(img)
	case exif.Rotate90CW:
		// imaging rotates counter-clockwise
		return imaging.Rotate270(img)
	case exif.Transverse:
		return imaging.Transverse(img)
	case exif.Rotate90CCW:
		return imaging.Rotate90(img)
	}
	return img
}
