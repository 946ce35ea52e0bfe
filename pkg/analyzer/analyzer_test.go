package analyzer

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/object-eraser/pkg/types"
)

// createTestMask creates a black mask with a white rectangle
func createTestMask(width, height int, edit image.Rectangle) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, width, height))
	for y := edit.Min.Y; y < edit.Max.Y; y++ {
		for x := edit.Min.X; x < edit.Max.X; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return mask
}

func TestNew(t *testing.T) {
	analyzer := New()
	if analyzer == nil {
		t.Fatal("New() returned nil")
	}

	if analyzer.config.EditThreshold != 128 {
		t.Errorf("Expected threshold 128, got %d", analyzer.config.EditThreshold)
	}
}

func TestNewWithConfig(t *testing.T) {
	analyzer := NewWithConfig(Config{MinEditPixels: 50})
	if analyzer.config.MinEditPixels != 50 {
		t.Errorf("Expected min edit pixels 50, got %d", analyzer.config.MinEditPixels)
	}
	if analyzer.config.EditThreshold != 128 {
		t.Errorf("Expected default threshold 128, got %d", analyzer.config.EditThreshold)
	}
}

func TestAnalyze(t *testing.T) {
	analyzer := New()
	mask := createTestMask(200, 100, image.Rect(20, 10, 60, 30))

	info := analyzer.Analyze(mask)

	if info.Width != 200 || info.Height != 100 {
		t.Errorf("Expected 200x100, got %dx%d", info.Width, info.Height)
	}
	if info.EditPixels != 800 {
		t.Errorf("Expected 800 edit pixels, got %d", info.EditPixels)
	}
	if info.Coverage != 0.04 {
		t.Errorf("Expected coverage 0.04, got %f", info.Coverage)
	}
	if info.Bounds != image.Rect(20, 10, 60, 30) {
		t.Errorf("Expected bounds (20,10)-(60,30), got %v", info.Bounds)
	}
	if analyzer.Suspicious(info) {
		t.Error("A 4% mask should not be suspicious")
	}
}

func TestAnalyzeSubImage(t *testing.T) {
	mask := createTestMask(100, 100, image.Rect(40, 40, 50, 50))
	sub := mask.SubImage(image.Rect(45, 45, 100, 100)).(*image.Gray)

	info := New().Analyze(sub)
	if info.EditPixels != 25 {
		t.Errorf("Expected 25 edit pixels, got %d", info.EditPixels)
	}
	if info.Bounds != image.Rect(45, 45, 50, 50) {
		t.Errorf("Unexpected bounds %v", info.Bounds)
	}
}

func TestValidateMask(t *testing.T) {
	analyzer := New()

	empty := analyzer.Analyze(createTestMask(64, 64, image.Rectangle{}))
	if err := analyzer.ValidateMask(empty); !errors.Is(err, types.ErrEmptyAnnotation) {
		t.Errorf("Expected empty annotation error, got %v", err)
	}
	if !empty.Bounds.Empty() {
		t.Errorf("Expected empty bounds, got %v", empty.Bounds)
	}

	full := analyzer.Analyze(createTestMask(64, 64, image.Rect(0, 0, 64, 64)))
	if err := analyzer.ValidateMask(full); err != nil {
		t.Errorf("Expected full mask to validate, got %v", err)
	}
	if !analyzer.Suspicious(full) {
		t.Error("A full mask should be suspicious")
	}

	if err := analyzer.ValidateMask(MaskInfo{}); !errors.Is(err, types.ErrInvalidGeometry) {
		t.Errorf("Expected invalid geometry, got %v", err)
	}
}
