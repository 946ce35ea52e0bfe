// Package objecteraser turns brush annotations over a photo into the inputs
// an AI object-removal provider expects and submits them.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		objecteraser "github.com/menta2k/object-eraser"
//		"github.com/menta2k/object-eraser/pkg/geometry"
//		"github.com/menta2k/object-eraser/pkg/stroke"
//		"github.com/menta2k/object-eraser/pkg/types"
//	)
//
//	func main() {
//		eraser, err := objecteraser.New(objecteraser.Options{
//			Endpoint:    "https://provider.example.com/v1/remove",
//			Constraints: types.Constraints{MinSide: 128, MaxSide: 2048, Step: 64},
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		src := types.Source{Path: "photo.jpg"}
//		session := eraser.NewSession(src)
//
//		// strokes are in upright image pixels
//		b := stroke.Begin(geometry.Point{X: 400, Y: 300}, 40, stroke.Draw)
//		b.Append(geometry.Point{X: 700, Y: 320})
//		session.Log().Seal(b)
//
//		out, err := session.StartExport(context.Background(), "").Wait()
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("%s: %v", out.Status, out.Result)
//	}
//
// The export pipeline is built from these packages:
//
// 1. EXIF (pkg/exif): reads the JPEG orientation tag from a bounded prefix
// 2. Upright (pkg/upright): applies that orientation to the pixels
// 3. Safe size (pkg/safesize): picks an output size the provider accepts
// 4. Compositor (pkg/compositor): renders the edit mask and marked composite
// 5. Pipeline (pkg/pipeline): sequences the stages with cancellation
// 6. Removal (pkg/removal): submits over HTTP with bounded retries
//
// Brush input is captured in screen space with stroke.Capture, which maps
// pointer positions through the contain-fit placement in pkg/geometry.
package objecteraser

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/menta2k/object-eraser/internal/utils"
	"github.com/menta2k/object-eraser/pkg/client"
	"github.com/menta2k/object-eraser/pkg/compositor"
	"github.com/menta2k/object-eraser/pkg/diag"
	"github.com/menta2k/object-eraser/pkg/hint"
	"github.com/menta2k/object-eraser/pkg/pipeline"
	"github.com/menta2k/object-eraser/pkg/processing"
	"github.com/menta2k/object-eraser/pkg/removal"
	"github.com/menta2k/object-eraser/pkg/types"
	"github.com/menta2k/object-eraser/pkg/upright"
)

// Version of the object eraser library
const Version = "1.0.0"

// Options configures an Eraser
type Options struct {
	// Endpoint of the removal provider. Leave empty for render-only use.
	Endpoint    string
	APIKey      string
	Constraints types.Constraints
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration

	MarkColor   color.NRGBA
	MaskFormat  string // png or webp
	ImageFormat string
	ScanWindow  int

	// Vision, when set, names the marked object to send as a hint
	Vision      client.VisionClient
	VisionModel string

	Diag diag.Sink
}

// Eraser provides a high-level interface to the export pipeline
type Eraser struct {
	pipeline  *pipeline.Pipeline
	processor *processing.Processor
}

// New creates an Eraser
func New(opts Options) (*Eraser, error) {
	sink := diag.OrNop(opts.Diag)
	processor := processing.NewProcessorWithConfig(processing.Config{Diag: sink})

	var remover client.RemovalClient
	if opts.Endpoint != "" {
		rc, err := removal.NewClient(removal.Config{
			Endpoint:    opts.Endpoint,
			APIKey:      opts.APIKey,
			Timeout:     opts.Timeout,
			MaxAttempts: opts.MaxAttempts,
			Backoff:     opts.Backoff,
			Diag:        sink,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create removal client: %w", err)
		}
		remover = rc
	}

	var describer *hint.Describer
	if opts.Vision != nil {
		describer = hint.NewDescriber(opts.Vision, opts.VisionModel)
	}

	p, err := pipeline.New(remover, pipeline.Config{
		Constraints: opts.Constraints,
		ImageFormat: opts.ImageFormat,
		Processor:   processor,
		Rasterizer:  upright.NewWithConfig(processor, upright.Config{ScanWindow: opts.ScanWindow, Diag: sink}),
		Compositor: compositor.NewWithConfig(processor, compositor.Config{
			MarkColor: opts.MarkColor,
			Format:    opts.MaskFormat,
			Diag:      sink,
		}),
		Describer: describer,
		Diag:      sink,
	})
	if err != nil {
		return nil, err
	}

	return &Eraser{pipeline: p, processor: processor}, nil
}

// Pipeline returns the underlying export pipeline
func (e *Eraser) Pipeline() *pipeline.Pipeline {
	return e.pipeline
}

// Inspect reports the upright size and orientation of src
func (e *Eraser) Inspect(ctx context.Context, src types.Source) (pipeline.SourceInfo, error) {
	return e.pipeline.Inspect(ctx, src)
}

// Load reads src once and returns an in-memory copy plus its upright size
func (e *Eraser) Load(ctx context.Context, src types.Source) (types.Source, pipeline.SourceInfo, error) {
	return e.pipeline.Load(ctx, src)
}

// NewSession starts an annotation session on src
func (e *Eraser) NewSession(src types.Source) *pipeline.Session {
	return e.pipeline.NewSession(src)
}

// Export renders and submits req
func (e *Eraser) Export(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	return e.pipeline.Export(ctx, req)
}

// Render renders req without submitting it
func (e *Eraser) Render(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	return e.pipeline.Render(ctx, req)
}

// OutputNames controls the file names written by SaveOutputs
type OutputNames struct {
	Dir          string
	Prefix       string
	MaskSuffix   string
	MarkedSuffix string
	ImageSuffix  string
}

// Summary is written next to the rendered files
type Summary struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	Orientation int                  `json:"orientation"`
	Source      [2]int               `json:"source"`
	Target      types.TargetSize     `json:"target"`
	InkScore    float64              `json:"ink_score"`
	Coverage    float64              `json:"coverage"`
	Hint        string               `json:"hint,omitempty"`
	Result      *types.RemovalResult `json:"result,omitempty"`
	Files       []string             `json:"files"`
}

// SaveOutputs writes the rendered rasters of out and a JSON summary and
// returns the paths written. input names the source for file naming.
func (e *Eraser) SaveOutputs(out *pipeline.Outcome, input string, names OutputNames) ([]string, error) {
	if out == nil || out.Rendered == nil {
		return nil, fmt.Errorf("nothing rendered")
	}
	if err := utils.EnsureDir(names.Dir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if names.ImageSuffix == "" {
		names.ImageSuffix = "_input"
	}

	assets := []struct {
		suffix string
		asset  types.RasterAsset
	}{
		{names.MaskSuffix, out.Rendered.Mask},
		{names.MarkedSuffix, out.Rendered.Marked},
		{names.ImageSuffix, out.Image},
	}
	var paths []string
	for _, a := range assets {
		path := utils.GenerateOutputFilename(input, names.Dir, names.Prefix, a.suffix, a.asset.Format)
		if err := e.processor.SaveAsset(a.asset, path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	summary := Summary{
		ID:          out.ID,
		Status:      out.Status.String(),
		Orientation: int(out.Orientation),
		Source:      [2]int{out.SourceWidth, out.SourceHeight},
		Target:      out.Target,
		InkScore:    out.InkScore,
		Coverage:    out.Mask.Coverage,
		Hint:        out.Hint,
		Result:      out.Result,
		Files:       paths,
	}
	js, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return paths, fmt.Errorf("failed to marshal summary: %w", err)
	}
	path := utils.GenerateOutputFilename(input, names.Dir, names.Prefix, "_export", "json")
	if err := os.WriteFile(path, js, 0o644); err != nil {
		return paths, fmt.Errorf("failed to write summary: %w", err)
	}
	return append(paths, path), nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
