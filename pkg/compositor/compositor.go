// Package compositor renders brush strokes into the two rasters a removal
// provider consumes: a binary edit mask and the seed image with the
// strokes painted over it.
package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/object-eraser/pkg/diag"
	"github.com/menta2k/object-eraser/pkg/geometry"
	"github.com/menta2k/object-eraser/pkg/processing"
	"github.com/menta2k/object-eraser/pkg/stroke"
	"github.com/menta2k/object-eraser/pkg/types"
)

// Mask colours
var (
	Keep = color.Gray{Y: 0}
	Edit = color.Gray{Y: 255}
)

// DefaultMarkColor is painted over the seed for Draw strokes
var DefaultMarkColor = color.NRGBA{R: 255, G: 59, B: 48, A: 255}

// Config controls rendering
type Config struct {
	MarkColor color.NRGBA
	// Format of the encoded outputs: png or webp (lossless)
	Format string
	// Threshold is the coverage (0-255) at which a pixel counts as painted
	Threshold uint8
	Diag      diag.Sink
}

// Compositor renders stroke logs
type Compositor struct {
	config    Config
	processor *processing.Processor
}

// Result holds the rendered rasters
type Result struct {
	Mask        types.RasterAsset
	Marked      types.RasterAsset
	MaskImage   *image.Gray
	MarkedImage *image.NRGBA
	Strokes     int
}

// New creates a compositor with default configuration
func New(processor *processing.Processor) *Compositor {
	return NewWithConfig(processor, Config{})
}

// NewWithConfig creates a compositor with custom configuration
func NewWithConfig(processor *processing.Processor, config Config) *Compositor {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if config.MarkColor == (color.NRGBA{}) {
		config.MarkColor = DefaultMarkColor
	}
	config.MarkColor.A = 255
	if config.Format == "" {
		config.Format = processing.FormatPNG
	}
	if config.Threshold == 0 {
		config.Threshold = 128
	}
	config.Diag = diag.OrNop(config.Diag)
	return &Compositor{config: config, processor: processor}
}

// Render draws strokes into a mask and a marked composite at target size
// and encodes both losslessly. seed must already be resized to target.
func (c *Compositor) Render(strokes []stroke.Stroke, target types.TargetSize, seed image.Image) (*Result, error) {
	mask, marked, n, err := c.RenderImages(strokes, target, seed)
	if err != nil {
		return nil, err
	}

	res := &Result{MaskImage: mask, MarkedImage: marked, Strokes: n}
	var g errgroup.Group
	g.Go(func() error {
		var err error
		res.Mask, err = c.processor.Encode(mask, c.config.Format)
		return err
	})
	g.Go(func() error {
		var err error
		res.Marked, err = c.processor.Encode(marked, c.config.Format)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// RenderImages is Render without the encoding step
func (c *Compositor) RenderImages(strokes []stroke.Stroke, target types.TargetSize, seed image.Image) (*image.Gray, *image.NRGBA, int, error) {
	if target.IsZero() || !(target.ScaleX > 0) || !(target.ScaleY > 0) {
		return nil, nil, 0, types.Errorf(types.KindInvalidGeometry, "render", "target size %v (scale %g,%g)",
			target, target.ScaleX, target.ScaleY)
	}
	if seed == nil {
		return nil, nil, 0, types.Errorf(types.KindDecode, "render", "seed image missing")
	}
	if b := seed.Bounds(); b.Dx() != target.Width || b.Dy() != target.Height {
		return nil, nil, 0, types.Errorf(types.KindDecode, "render", "seed is %dx%d, want %v", b.Dx(), b.Dy(), target)
	}
	usable := filter(strokes)
	if len(usable) == 0 {
		return nil, nil, 0, types.Errorf(types.KindEmptyAnnotation, "render", "no drawable strokes (%d given)", len(strokes))
	}

	bounds := image.Rect(0, 0, target.Width, target.Height)
	mask := image.NewGray(bounds)
	overlay := image.NewNRGBA(bounds)
	cov := image.NewAlpha(bounds)
	z := vector.NewRasterizer(1, 1)
	z.DrawOp = draw.Src

	for _, s := range usable {
		r := c.rasterize(z, cov, s, target)
		if r.Empty() {
			continue
		}
		c.apply(mask, overlay, cov, r, s.Mode)
	}

	marked := imaging.Clone(seed)
	draw.Draw(marked, bounds, overlay, image.Point{}, draw.Over)

	c.config.Diag.Debugf("rendered %d/%d strokes at %v", len(usable), len(strokes), target)
	return mask, marked, len(usable), nil
}

// filter drops strokes that cannot produce any pixels
func filter(strokes []stroke.Stroke) []stroke.Stroke {
	out := make([]stroke.Stroke, 0, len(strokes))
	for _, s := range strokes {
		if len(s.Points) == 0 || !(s.Size > 0) || math.IsInf(s.Size, 0) || !finite(s.Points) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func finite(pts []geometry.Point) bool {
	for _, p := range pts {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

// Radius returns the brush radius in target pixels. The two axis scales
// are averaged so round brushes stay round.
func Radius(s stroke.Stroke, target types.TargetSize) float64 {
	return s.Size / 2 * (target.ScaleX + target.ScaleY) / 2
}

// rasterize writes the coverage of s into cov and returns the rectangle
// that was written.
func (c *Compositor) rasterize(z *vector.Rasterizer, cov *image.Alpha, s stroke.Stroke, target types.TargetSize) image.Rectangle {
	// a brush wider than the target's diagonal already covers all of it
	diag := math.Hypot(float64(target.Width), float64(target.Height))
	radius := math.Min(math.Max(Radius(s, target), 0.5), diag)

	pts := make([]geometry.Point, len(s.Points))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, p := range s.Points {
		q := geometry.Point{X: p.X * target.ScaleX, Y: p.Y * target.ScaleY}
		pts[i] = q
		minX, maxX = math.Min(minX, q.X), math.Max(maxX, q.X)
		minY, maxY = math.Min(minY, q.Y), math.Max(maxY, q.Y)
	}

	w, h := float64(target.Width), float64(target.Height)
	r := image.Rect(
		int(clamp(math.Floor(minX-radius), -1, w))-1, int(clamp(math.Floor(minY-radius), -1, h))-1,
		int(clamp(math.Ceil(maxX+radius), -1, w))+1, int(clamp(math.Ceil(maxY+radius), -1, h))+1,
	).Intersect(cov.Bounds())
	if r.Empty() {
		return r
	}

	// rasterizer space starts at r.Min
	ox, oy := float64(r.Min.X), float64(r.Min.Y)
	z.Reset(r.Dx(), r.Dy())
	// geometry further than the radius from the target cannot cover it
	pad := radius + 2
	box := [4]float64{-pad, -pad, w + pad, h + pad}
	for i := 1; i < len(pts); i++ {
		if a, b, ok := clipSegment(pts[i-1], pts[i], box); ok {
			addSegment(z, a, b, radius, ox, oy)
		}
	}
	for _, p := range pts {
		if p.X >= box[0] && p.Y >= box[1] && p.X <= box[2] && p.Y <= box[3] {
			addDisc(z, p, radius, ox, oy)
		}
	}
	z.Draw(cov, r, image.Opaque, image.Point{})
	return r
}

// apply paints the covered pixels of r into the mask and overlay
func (c *Compositor) apply(mask *image.Gray, overlay *image.NRGBA, cov *image.Alpha, r image.Rectangle, mode stroke.Mode) {
	maskValue := Edit.Y
	paint := c.config.MarkColor
	if mode == stroke.Erase {
		maskValue = Keep.Y
		paint = color.NRGBA{}
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		ci := cov.PixOffset(r.Min.X, y)
		mi := mask.PixOffset(r.Min.X, y)
		oi := overlay.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			if cov.Pix[ci] >= c.config.Threshold {
				mask.Pix[mi] = maskValue
				overlay.Pix[oi+0] = paint.R
				overlay.Pix[oi+1] = paint.G
				overlay.Pix[oi+2] = paint.B
				overlay.Pix[oi+3] = paint.A
			}
			ci++
			mi++
			oi += 4
		}
	}
}

// addSegment adds the rectangle around a-b. Its winding matches addDisc
// so overlapping shapes accumulate instead of cancelling.
func addSegment(z *vector.Rasterizer, a, b geometry.Point, w, ox, oy float64) {
	vx, vy := b.X-a.X, b.Y-a.Y
	vl := math.Hypot(vx, vy)
	if vl == 0 {
		return
	}
	nx, ny := -vy/vl*w, vx/vl*w

	z.MoveTo(f32(a.X+nx-ox), f32(a.Y+ny-oy))
	z.LineTo(f32(b.X+nx-ox), f32(b.Y+ny-oy))
	z.LineTo(f32(b.X-nx-ox), f32(b.Y-ny-oy))
	z.LineTo(f32(a.X-nx-ox), f32(a.Y-ny-oy))
	z.ClosePath()
}

// kappa places cubic control points for a quarter circle
const kappa = 0.5522847498

// addDisc adds a circle of radius r around p as four cubic arcs
func addDisc(z *vector.Rasterizer, p geometry.Point, r, ox, oy float64) {
	cx, cy := p.X-ox, p.Y-oy
	k := kappa * r

	z.MoveTo(f32(cx+r), f32(cy))
	for q := 0; q < 4; q++ {
		a0 := -float64(q) * math.Pi / 2
		a1 := a0 - math.Pi/2
		s0, c0 := math.Sincos(a0)
		s1, c1 := math.Sincos(a1)
		z.CubeTo(
			f32(cx+r*c0+k*s0), f32(cy+r*s0-k*c0),
			f32(cx+r*c1-k*s1), f32(cy+r*s1+k*c1),
			f32(cx+r*c1), f32(cy+r*s1),
		)
	}
	z.ClosePath()
}

// clipSegment clips a-b to box {minX, minY, maxX, maxY}
func clipSegment(a, b geometry.Point, box [4]float64) (geometry.Point, geometry.Point, bool) {
	t0, t1 := 0.0, 1.0
	dx, dy := b.X-a.X, b.Y-a.Y
	for _, e := range [4][2]float64{
		{-dx, a.X - box[0]},
		{dx, box[2] - a.X},
		{-dy, a.Y - box[1]},
		{dy, box[3] - a.Y},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = math.Max(t0, t)
		} else {
			t1 = math.Min(t1, t)
		}
		if t0 > t1 {
			return a, b, false
		}
	}
	return geometry.Point{X: a.X + t0*dx, Y: a.Y + t0*dy}, geometry.Point{X: a.X + t1*dx, Y: a.Y + t1*dy}, true
}

// clamp keeps v within [lo,hi] so it converts to int safely
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func f32(v float64) float32 {
	return float32(v)
}
