package stroke

import "github.com/menta2k/object-eraser/pkg/geometry"

// Capture turns pointer events in screen space into strokes in image space.
// It exclusively owns the in-progress Builder.
type Capture struct {
	log       *Log
	imageW    float64
	imageH    float64
	rect      geometry.ImageRect
	brushSize float64 // screen pixels
	mode      Mode
	active    *Builder
}

// NewCapture captures into log for an image of the given pixel size
func NewCapture(log *Log, imageW, imageH int) *Capture {
	if log == nil {
		log = NewLog()
	}
	return &Capture{
		log:       log,
		imageW:    float64(imageW),
		imageH:    float64(imageH),
		rect:      geometry.ImageRect{Scale: 1},
		brushSize: 40,
	}
}

// Log returns the log strokes are sealed into
func (c *Capture) Log() *Log {
	return c.log
}

// SetLayout recomputes the placement for a new container size. Strokes
// already captured keep their image coordinates.
func (c *Capture) SetLayout(containerW, containerH float64) geometry.ImageRect {
	c.rect = geometry.ComputeContainRect(containerW, containerH, c.imageW, c.imageH)
	return c.rect
}

// Rect returns the current placement
func (c *Capture) Rect() geometry.ImageRect {
	return c.rect
}

// SetBrush sets the brush diameter in screen pixels and the stroke mode
func (c *Capture) SetBrush(size float64, mode Mode) {
	if size > 0 {
		c.brushSize = size
	}
	c.mode = mode
}

// Active reports whether a stroke is being captured
func (c *Capture) Active() bool {
	return c.active != nil
}

// PointerDown starts a stroke if the point is over the image
func (c *Capture) PointerDown(x, y float64) bool {
	p, ok := geometry.ScreenPointToImagePoint(x, y, c.rect)
	if !ok {
		return false
	}
	c.active = Begin(p, c.brushSize/c.rect.Scale, c.mode)
	return true
}

// PointerMove extends the active stroke. Points off the image are ignored.
func (c *Capture) PointerMove(x, y float64) bool {
	if c.active == nil {
		return false
	}
	p, ok := geometry.ScreenPointToImagePoint(x, y, c.rect)
	if !ok {
		return false
	}
	return c.active.Append(p)
}

// PointerUp seals the active stroke into the log
func (c *Capture) PointerUp() (Stroke, bool) {
	b := c.active
	c.active = nil
	return c.log.Seal(b)
}

// Cancel drops the active stroke
func (c *Capture) Cancel() {
	c.active = nil
}
