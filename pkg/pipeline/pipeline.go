// Package pipeline sequences an annotation export: read the source, make it
// upright, gate on ink, resolve a provider-safe size, render the mask and
// marked composite and hand everything to a removal provider.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/object-eraser/pkg/analyzer"
	"github.com/menta2k/object-eraser/pkg/client"
	"github.com/menta2k/object-eraser/pkg/compositor"
	"github.com/menta2k/object-eraser/pkg/diag"
	"github.com/menta2k/object-eraser/pkg/exif"
	"github.com/menta2k/object-eraser/pkg/hint"
	"github.com/menta2k/object-eraser/pkg/processing"
	"github.com/menta2k/object-eraser/pkg/safesize"
	"github.com/menta2k/object-eraser/pkg/stroke"
	"github.com/menta2k/object-eraser/pkg/types"
	"github.com/menta2k/object-eraser/pkg/upright"
)

// ErrExportFailed is the only failure callers see. Details go to the
// diagnostics sink.
var ErrExportFailed = errors.New("export failed, please try again")

// Status of a finished export
type Status int

const (
	StatusSucceeded Status = iota
	StatusCancelled
	StatusNeedsMoreInk
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusCancelled:
		return "cancelled"
	case StatusNeedsMoreInk:
		return "needs more ink"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Config holds the pipeline components. Nil components get defaults.
type Config struct {
	Constraints types.Constraints
	// ImageFormat is the encoding of the resized source sent to the provider
	ImageFormat string
	Processor   *processing.Processor
	Rasterizer  *upright.Rasterizer
	Compositor  *compositor.Compositor
	Analyzer    *analyzer.MaskAnalyzer
	// Describer, when set, names the marked object for requests without a hint
	Describer *hint.Describer
	Diag      diag.Sink
}

// Pipeline runs exports. It holds no per-export state.
type Pipeline struct {
	config  Config
	remover client.RemovalClient
}

// Request describes one export
type Request struct {
	ID     string
	Source types.Source
	// Orientation overrides detection when set
	Orientation exif.Orientation
	Strokes     []stroke.Stroke
	Hint        string
}

// Outcome is the result of an export. Kind is set for NeedsMoreInk and
// Failed outcomes.
type Outcome struct {
	ID           string
	Status       Status
	Kind         types.Kind
	Orientation  exif.Orientation
	SourceWidth  int
	SourceHeight int
	InkScore     float64
	Target       types.TargetSize
	Image        types.RasterAsset
	Rendered     *compositor.Result
	Mask         analyzer.MaskInfo
	Hint         string
	Result       *types.RemovalResult
}

// SourceInfo describes a source as it will be displayed
type SourceInfo struct {
	Width       int
	Height      int
	Orientation exif.Orientation
	MIME        string
}

// New creates a pipeline that submits through remover. remover may be nil
// for render-only use.
func New(remover client.RemovalClient, config Config) (*Pipeline, error) {
	if err := safesize.Validate(config.Constraints); err != nil {
		return nil, err
	}
	config.Diag = diag.OrNop(config.Diag)
	if config.Processor == nil {
		config.Processor = processing.NewProcessorWithConfig(processing.Config{Diag: config.Diag})
	}
	if config.Rasterizer == nil {
		config.Rasterizer = upright.NewWithConfig(config.Processor, upright.Config{Diag: config.Diag})
	}
	if config.Compositor == nil {
		config.Compositor = compositor.NewWithConfig(config.Processor, compositor.Config{Diag: config.Diag})
	}
	if config.Analyzer == nil {
		config.Analyzer = analyzer.New()
	}
	if config.ImageFormat == "" {
		config.ImageFormat = processing.FormatPNG
	}
	return &Pipeline{config: config, remover: remover}, nil
}

// Inspect reads src and reports its upright size without decoding pixels
func (p *Pipeline) Inspect(ctx context.Context, src types.Source) (SourceInfo, error) {
	_, info, err := p.Load(ctx, src)
	return info, err
}

// Load reads src once and returns it as an in-memory source together with
// its upright size. Sessions built on the returned source export exactly
// the bytes that were inspected.
func (p *Pipeline) Load(ctx context.Context, src types.Source) (types.Source, SourceInfo, error) {
	data, mime, err := p.config.Processor.ReadSource(ctx, src)
	if err != nil {
		return types.Source{}, SourceInfo{}, err
	}
	cfg, _, err := p.config.Processor.DecodeConfig(data)
	if err != nil {
		return types.Source{}, SourceInfo{}, err
	}
	info := SourceInfo{Width: cfg.Width, Height: cfg.Height, MIME: mime}
	info.Orientation = p.config.Rasterizer.Detect(data)
	if info.Orientation.SwapsAxes() {
		info.Width, info.Height = info.Height, info.Width
	}
	return types.Source{Bytes: data, MIME: mime}, info, nil
}

// Render runs every stage except submission
func (p *Pipeline) Render(ctx context.Context, req Request) (*Outcome, error) {
	out := p.newOutcome(req)
	if err := p.render(ctx, req, out); err != nil {
		return p.finish(ctx, out, "render", err)
	}
	return out, nil
}

// Export renders req and submits it to the removal provider. A cancelled
// export returns StatusCancelled and a nil error; any failure is logged and
// reported as ErrExportFailed.
func (p *Pipeline) Export(ctx context.Context, req Request) (*Outcome, error) {
	out := p.newOutcome(req)
	if p.remover == nil {
		return p.finish(ctx, out, "submit", types.Errorf(types.KindProvider, "submit", "no removal client configured"))
	}
	if err := p.render(ctx, req, out); err != nil {
		return p.finish(ctx, out, "render", err)
	}
	if out.Status != StatusSucceeded {
		return out, nil
	}

	out.Hint = req.Hint
	if out.Hint == "" && p.config.Describer != nil {
		if err := ctx.Err(); err != nil {
			return p.finish(ctx, out, "hint", err)
		}
		h, err := p.config.Describer.Describe(ctx, out.Rendered.Marked)
		switch {
		case ctx.Err() != nil:
			return p.finish(ctx, out, "hint", ctx.Err())
		case err != nil:
			// hints are optional
			p.config.Diag.Warnf("export %s: no removal hint: %v", out.ID, err)
		default:
			out.Hint = h
		}
	}

	if err := ctx.Err(); err != nil {
		return p.finish(ctx, out, "submit", err)
	}
	payload := types.Payload{
		ID:     out.ID,
		Image:  out.Image,
		Mask:   out.Rendered.Mask,
		Marked: out.Rendered.Marked,
		Hint:   out.Hint,
	}
	res, err := p.remover.Remove(ctx, payload, out.Target)
	if err != nil {
		return p.finish(ctx, out, "submit", err)
	}
	out.Result = res
	p.config.Diag.Infof("export %s: submitted %v in %d attempt(s): %s", out.ID, out.Target, res.Attempts, res.URL)
	return out, nil
}

func (p *Pipeline) newOutcome(req Request) *Outcome {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Outcome{ID: id, Status: StatusSucceeded}
}

// render fills out up to and including the rendered rasters. A NeedsMoreInk
// outcome returns nil.
func (p *Pipeline) render(ctx context.Context, req Request, out *Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, _, err := p.config.Processor.ReadSource(ctx, req.Source)
	if err != nil {
		return err
	}

	out.Orientation = req.Orientation
	if !out.Orientation.Valid() {
		out.Orientation = p.config.Rasterizer.Detect(data)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := p.config.Rasterizer.UprightImage(data, out.Orientation)
	if err != nil {
		return err
	}
	b := img.Bounds()
	out.SourceWidth, out.SourceHeight = b.Dx(), b.Dy()

	out.InkScore = stroke.InkScore(req.Strokes)
	if need := stroke.MinInk(out.SourceWidth, out.SourceHeight); !(out.InkScore > need) {
		p.config.Diag.Infof("export %s: ink score %.1f below %.1f, not submitting", out.ID, out.InkScore, need)
		out.Status, out.Kind = StatusNeedsMoreInk, types.KindEmptyAnnotation
		return nil
	}

	out.Target, err = safesize.Resolve(out.SourceWidth, out.SourceHeight, p.config.Constraints)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	seed, err := p.config.Processor.ResizeSeed(img, out.Target)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Image, err = p.config.Processor.Encode(seed, p.config.ImageFormat)
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		out.Rendered, err = p.config.Compositor.Render(req.Strokes, out.Target, seed)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out.Mask = p.config.Analyzer.Analyze(out.Rendered.MaskImage)
	if err := p.config.Analyzer.ValidateMask(out.Mask); err != nil {
		p.config.Diag.Infof("export %s: %v", out.ID, err)
		out.Status, out.Kind = StatusNeedsMoreInk, types.KindOf(err)
		return nil
	}
	if p.config.Analyzer.Suspicious(out.Mask) {
		p.config.Diag.Warnf("export %s: mask covers %.0f%% of the image", out.ID, out.Mask.Coverage*100)
	}

	p.config.Diag.Debugf("export %s: orientation %d, source %dx%d, target %v (scale %.4f,%.4f), mask %v",
		out.ID, out.Orientation, out.SourceWidth, out.SourceHeight, out.Target,
		out.Target.ScaleX, out.Target.ScaleY, out.Mask)
	return nil
}

// finish turns a stage error into the caller-facing result
func (p *Pipeline) finish(ctx context.Context, out *Outcome, stage string, err error) (*Outcome, error) {
	if ctx.Err() != nil || types.KindOf(err) == types.KindCancelled {
		p.config.Diag.Debugf("export %s cancelled during %s", out.ID, stage)
		out.Status, out.Kind = StatusCancelled, types.KindCancelled
		return out, nil
	}

	out.Status, out.Kind = StatusFailed, types.KindOf(err)
	p.config.Diag.Errorf("export %s failed during %s: kind=%s source=%dx%d orientation=%d target=%v: %v",
		out.ID, stage, out.Kind, out.SourceWidth, out.SourceHeight, out.Orientation, out.Target, err)
	return out, ErrExportFailed
}
