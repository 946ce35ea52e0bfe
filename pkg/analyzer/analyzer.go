package analyzer

import (
	"fmt"
	"image"

	"github.com/menta2k/object-eraser/pkg/types"
)

// MaskAnalyzer inspects rendered edit masks before they are submitted
type MaskAnalyzer struct {
	config Config
}

// Config holds configuration for the mask analyzer
type Config struct {
	// EditThreshold is the grey level at or above which a pixel is an edit
	EditThreshold uint8
	// MinEditPixels is the smallest edit area worth submitting
	MinEditPixels int
	// MaxCoverage is the edit fraction above which a mask is reported as suspicious
	MaxCoverage float64
}

// New creates a new MaskAnalyzer with default configuration
func New() *MaskAnalyzer {
	return &MaskAnalyzer{
		config: Config{
			EditThreshold: 128,
			MinEditPixels: 1,
			MaxCoverage:   0.9,
		},
	}
}

// NewWithConfig creates a new MaskAnalyzer with custom configuration
func NewWithConfig(config Config) *MaskAnalyzer {
	if config.EditThreshold == 0 {
		config.EditThreshold = 128
	}
	if config.MaxCoverage <= 0 {
		config.MaxCoverage = 1
	}
	return &MaskAnalyzer{config: config}
}

// MaskInfo contains basic statistics about a mask
type MaskInfo struct {
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	EditPixels int             `json:"edit_pixels"`
	Coverage   float64         `json:"coverage"`
	Bounds     image.Rectangle `json:"bounds"` // bounding box of the edit region
}

// Suspicious reports whether the edit region covers most of the image
func (a *MaskAnalyzer) Suspicious(info MaskInfo) bool {
	return info.Coverage > a.config.MaxCoverage
}

// Analyze returns statistics about mask
func (a *MaskAnalyzer) Analyze(mask *image.Gray) MaskInfo {
	b := mask.Bounds()
	info := MaskInfo{Width: b.Dx(), Height: b.Dy()}

	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X, b.Min.Y
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := mask.Pix[mask.PixOffset(b.Min.X, y):]
		for i := 0; i < b.Dx(); i++ {
			if row[i] < a.config.EditThreshold {
				continue
			}
			x := b.Min.X + i
			info.EditPixels++
			minX, maxX = min(minX, x), max(maxX, x+1)
			minY, maxY = min(minY, y), max(maxY, y+1)
		}
	}
	if info.EditPixels > 0 {
		info.Bounds = image.Rect(minX, minY, maxX, maxY)
	}

	if area := b.Dx() * b.Dy(); area > 0 {
		info.Coverage = float64(info.EditPixels) / float64(area)
	}
	return info
}

// ValidateMask checks that a mask has enough edit area to submit
func (a *MaskAnalyzer) ValidateMask(info MaskInfo) error {
	if info.Width <= 0 || info.Height <= 0 {
		return types.Errorf(types.KindInvalidGeometry, "validate mask", "mask is %dx%d", info.Width, info.Height)
	}
	if info.EditPixels < a.config.MinEditPixels {
		return types.Errorf(types.KindEmptyAnnotation, "validate mask",
			"mask has %d edit pixels (minimum: %d)", info.EditPixels, a.config.MinEditPixels)
	}
	return nil
}

func (i MaskInfo) String() string {
	return fmt.Sprintf("%dx%d, %d edit px (%.2f%%) in %v", i.Width, i.Height, i.EditPixels, i.Coverage*100, i.Bounds)
}
