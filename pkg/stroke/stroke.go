// Package stroke holds brush strokes in image-pixel space, the undo/redo
// log they are committed to, and the ink score used to gate exports.
package stroke

import (
	"math"

	"github.com/google/uuid"

	"github.com/menta2k/object-eraser/pkg/geometry"
)

// Mode says whether a stroke marks pixels for removal or unmarks them
type Mode int

const (
	Draw Mode = iota
	Erase
)

func (m Mode) String() string {
	if m == Erase {
		return "erase"
	}
	return "draw"
}

// ParseMode accepts "draw" and "erase"; anything else is Draw
func ParseMode(s string) Mode {
	if s == "erase" {
		return Erase
	}
	return Draw
}

const (
	// MinSpacing is the smallest point spacing kept by Append, in image pixels
	MinSpacing = 0.8
	// DabWeight is the ink credited for a single-point stroke
	DabWeight = 10.0
	// MinInkFloor is the lowest ink score threshold regardless of image size
	MinInkFloor = 30.0
	// MinInkRatio scales the threshold with the image's longer side
	MinInkRatio = 0.003
)

// Stroke is a sealed brush stroke. Points and Size are in image pixels.
type Stroke struct {
	ID     string           `json:"id"`
	Points []geometry.Point `json:"points"`
	Size   float64          `json:"size"`
	Mode   Mode             `json:"mode"`
}

// Length returns the polyline length of the stroke
func (s Stroke) Length() float64 {
	var total float64
	for i := 1; i < len(s.Points); i++ {
		total += s.Points[i-1].Distance(s.Points[i])
	}
	return total
}

// Ink returns the stroke's contribution to the ink score
func (s Stroke) Ink() float64 {
	switch len(s.Points) {
	case 0:
		return 0
	case 1:
		return DabWeight
	}
	return s.Length()
}

// Builder accumulates points for the stroke under capture. It is owned by
// a single capturer until sealed.
type Builder struct {
	id     string
	points []geometry.Point
	size   float64
	mode   Mode
}

// Begin starts a stroke at p
func Begin(p geometry.Point, size float64, mode Mode) *Builder {
	return &Builder{
		id:     uuid.NewString(),
		points: []geometry.Point{p},
		size:   size,
		mode:   mode,
	}
}

// Spacing is the minimum distance between consecutive points
func (b *Builder) Spacing() float64 {
	return math.Max(MinSpacing, b.size/10)
}

// Append adds p if it is far enough from the last point
func (b *Builder) Append(p geometry.Point) bool {
	if n := len(b.points); n > 0 && b.points[n-1].Distance(p) <= b.Spacing() {
		return false
	}
	b.points = append(b.points, p)
	return true
}

// Len returns the number of points captured so far
func (b *Builder) Len() int {
	return len(b.points)
}

// build hands the points over to an immutable Stroke
func (b *Builder) build() (Stroke, bool) {
	if len(b.points) == 0 {
		return Stroke{}, false
	}
	s := Stroke{
		ID:     b.id,
		Points: b.points,
		Size:   b.size,
		Mode:   b.mode,
	}
	b.points = nil
	return s, true
}

// InkScore sums the ink of all strokes
func InkScore(strokes []Stroke) float64 {
	var total float64
	for _, s := range strokes {
		total += s.Ink()
	}
	return total
}

// MinInk is the ink score an annotation must exceed on a w x h image
func MinInk(w, h int) float64 {
	return math.Max(MinInkFloor, MinInkRatio*float64(max(w, h)))
}
