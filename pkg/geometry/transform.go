// Package geometry maps between screen coordinates and image pixels for an
// image displayed with contain-fit scaling.
package geometry

import "math"

// Point is a position in image-pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// ImageRect is where a contain-fit image lands inside its container
type ImageRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Scale  float64 `json:"scale"`
}

// Empty reports whether the rect has no area
func (r ImageRect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0 || r.Scale <= 0
}

// ImageSize returns the image dimensions the rect was computed for
func (r ImageRect) ImageSize() (float64, float64) {
	if r.Empty() {
		return 0, 0
	}
	return r.Width / r.Scale, r.Height / r.Scale
}

// ComputeContainRect places an image of imageW x imageH centred in the
// container, scaled to fit entirely while keeping its aspect ratio.
// Degenerate inputs give a zero rect with scale 1.
func ComputeContainRect(containerW, containerH, imageW, imageH float64) ImageRect {
	if !(containerW > 0 && containerH > 0 && imageW > 0 && imageH > 0) {
		return ImageRect{Scale: 1}
	}

	scale := math.Min(containerW/imageW, containerH/imageH)
	w := imageW * scale
	h := imageH * scale

	return ImageRect{
		X:      (containerW - w) / 2,
		Y:      (containerH - h) / 2,
		Width:  w,
		Height: h,
		Scale:  scale,
	}
}

// ScreenPointToImagePoint converts a container point to image pixels.
// It reports false when the point falls outside the placed image.
func ScreenPointToImagePoint(x, y float64, rect ImageRect) (Point, bool) {
	if rect.Empty() {
		return Point{}, false
	}
	if x < rect.X || y < rect.Y || x > rect.X+rect.Width || y > rect.Y+rect.Height {
		return Point{}, false
	}

	imageW, imageH := rect.ImageSize()
	return Point{
		X: clamp((x-rect.X)/rect.Scale, 0, imageW),
		Y: clamp((y-rect.Y)/rect.Scale, 0, imageH),
	}, true
}

// ImagePointToScreenPoint is the inverse of ScreenPointToImagePoint
func ImagePointToScreenPoint(p Point, rect ImageRect) (float64, float64) {
	return rect.X + p.X*rect.Scale, rect.Y + p.Y*rect.Scale
}

// ClampPoint limits p to [0,w]x[0,h]
func ClampPoint(p Point, w, h float64) Point {
	return Point{X: clamp(p.X, 0, w), Y: clamp(p.Y, 0, h)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
