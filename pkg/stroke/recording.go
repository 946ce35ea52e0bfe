package stroke

import (
	"encoding/json"
	"fmt"
	"io"
)

// Size is a container size in screen pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Recording is a pointer session captured in screen space. Without a
// Container, points and brush sizes are taken as image pixels.
type Recording struct {
	Container *Size            `json:"container,omitempty"`
	BrushSize float64          `json:"brush_size"`
	Strokes   []RecordedStroke `json:"strokes"`
	Undo      int              `json:"undo,omitempty"`
}

// RecordedStroke is one pointer-down to pointer-up gesture
type RecordedStroke struct {
	Mode      string       `json:"mode"`
	BrushSize float64      `json:"brush_size,omitempty"`
	Points    [][2]float64 `json:"points"`
	// Layout, when set, resizes the container before this stroke
	Layout *Size `json:"layout,omitempty"`
}

// ReadRecording decodes a JSON recording
func ReadRecording(r io.Reader) (*Recording, error) {
	var rec Recording
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to parse strokes: %w", err)
	}
	for i, s := range rec.Strokes {
		if s.Mode != "" && s.Mode != "draw" && s.Mode != "erase" {
			return nil, fmt.Errorf("stroke %d: unknown mode %q", i, s.Mode)
		}
	}
	return &rec, nil
}

// Replay feeds the recording through a Capture into log and returns the
// number of strokes sealed. Gestures that start off the image are skipped.
func (rec *Recording) Replay(log *Log, imageW, imageH int) int {
	c := NewCapture(log, imageW, imageH)
	if rec.Container != nil {
		c.SetLayout(rec.Container.Width, rec.Container.Height)
	} else {
		// identity placement
		c.SetLayout(float64(imageW), float64(imageH))
	}

	sealed := 0
	for _, s := range rec.Strokes {
		if len(s.Points) == 0 {
			continue
		}
		if s.Layout != nil && rec.Container != nil {
			c.SetLayout(s.Layout.Width, s.Layout.Height)
		}
		size := s.BrushSize
		if size <= 0 {
			size = rec.BrushSize
		}
		c.SetBrush(size, ParseMode(s.Mode))

		if !c.PointerDown(s.Points[0][0], s.Points[0][1]) {
			continue
		}
		for _, p := range s.Points[1:] {
			c.PointerMove(p[0], p[1])
		}
		if _, ok := c.PointerUp(); ok {
			sealed++
		}
	}

	for i := 0; i < rec.Undo; i++ {
		if !log.Undo() {
			break
		}
	}
	return sealed
}

// Record converts strokes back into an image-space recording
func Record(strokes []Stroke) *Recording {
	rec := &Recording{Strokes: make([]RecordedStroke, 0, len(strokes))}
	for _, s := range strokes {
		rs := RecordedStroke{Mode: s.Mode.String(), BrushSize: s.Size, Points: make([][2]float64, len(s.Points))}
		for i, p := range s.Points {
			rs.Points[i] = [2]float64{p.X, p.Y}
		}
		rec.Strokes = append(rec.Strokes, rs)
	}
	return rec
}
