package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/menta2k/object-eraser/internal/testimg"
	"github.com/menta2k/object-eraser/pkg/client"
	"github.com/menta2k/object-eraser/pkg/compositor"
	"github.com/menta2k/object-eraser/pkg/exif"
	"github.com/menta2k/object-eraser/pkg/geometry"
	"github.com/menta2k/object-eraser/pkg/hint"
	"github.com/menta2k/object-eraser/pkg/stroke"
	"github.com/menta2k/object-eraser/pkg/types"
)

var testConstraints = types.Constraints{MinSide: 128, MaxSide: 2048, Step: 64}

type fakeRemover struct {
	mu      sync.Mutex
	calls   int
	payload types.Payload
	target  types.TargetSize
	blockOn int // call number that waits for cancellation
	started chan struct{}
	err     error
}

func (f *fakeRemover) Remove(ctx context.Context, p types.Payload, t types.TargetSize) (*types.RemovalResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.payload, f.target = p, t
	f.mu.Unlock()

	if call == f.blockOn {
		if f.started != nil {
			close(f.started)
		}
		<-ctx.Done()
		return nil, types.Wrap(types.KindCancelled, "fake", ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	return &types.RemovalResult{URL: fmt.Sprintf("https://cdn.example.com/%s.png", p.ID), Attempts: 1, StatusCode: 200}, nil
}

func (f *fakeRemover) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSink) record(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, level+": "+fmt.Sprintf(format, args...))
}

func (r *recordingSink) Debugf(format string, args ...any) { r.record("debug", format, args...) }
func (r *recordingSink) Infof(format string, args ...any)  { r.record("info", format, args...) }
func (r *recordingSink) Warnf(format string, args ...any)  { r.record("warn", format, args...) }
func (r *recordingSink) Errorf(format string, args ...any) { r.record("error", format, args...) }

func (r *recordingSink) contains(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

func newTestPipeline(t *testing.T, remover *fakeRemover, c types.Constraints) (*Pipeline, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	var rc client.RemovalClient
	if remover != nil {
		rc = remover
	}
	p, err := New(rc, Config{Constraints: c, Diag: sink})
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	return p, sink
}

func horizontal(size float64, y float64, xs ...float64) stroke.Stroke {
	s := stroke.Stroke{ID: "s", Size: size, Mode: stroke.Draw}
	for _, x := range xs {
		s.Points = append(s.Points, geometry.Point{X: x, Y: y})
	}
	return s
}

func smallSource() types.Source {
	return types.Source{Bytes: testimg.PNG(testimg.Gradient(256, 192))}
}

func TestExportEndToEnd(t *testing.T) {
	remover := &fakeRemover{}
	p, _ := newTestPipeline(t, remover, testConstraints)

	src := types.Source{Bytes: testimg.PNG(testimg.Solid(3000, 4000, color.NRGBA{60, 90, 120, 255})), MIME: "image/png"}
	req := Request{
		ID:      "e2e",
		Source:  src,
		Strokes: []stroke.Stroke{horizontal(40, 1000, 1000, 1150, 1300, 1450, 1600)},
		Hint:    "lamp post",
	}

	out, err := p.Export(context.Background(), req)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Status != StatusSucceeded {
		t.Fatalf("Expected success, got %v", out.Status)
	}
	if out.Target.Width != 1536 || out.Target.Height != 2048 {
		t.Errorf("Expected target 1536x2048, got %v", out.Target)
	}
	if out.InkScore <= stroke.MinInk(3000, 4000) {
		t.Errorf("Expected ink score above minimum, got %.1f", out.InkScore)
	}

	mask := out.Rendered.MaskImage
	if mask.Bounds().Dx() != 1536 || mask.Bounds().Dy() != 2048 {
		t.Fatalf("Expected 1536x2048 mask, got %v", mask.Bounds())
	}
	// stroke maps to y=512, x in [512, 819.2], radius 10.24
	for _, x := range []int{512, 600, 700, 819} {
		if mask.GrayAt(x, 512) != compositor.Edit {
			t.Errorf("Expected edit on stroke path at (%d,512)", x)
		}
	}
	for _, pt := range [][2]int{{665, 540}, {665, 485}, {480, 512}, {850, 512}, {10, 10}, {1500, 2000}} {
		if mask.GrayAt(pt[0], pt[1]) != compositor.Keep {
			t.Errorf("Expected keep off the stroke at %v", pt)
		}
	}
	b := out.Mask.Bounds
	if b.Min.X < 500 || b.Min.X > 504 || b.Max.X < 827 || b.Max.X > 831 || b.Min.Y < 500 || b.Min.Y > 504 || b.Max.Y < 520 || b.Max.Y > 524 {
		t.Errorf("Edit region %v does not follow the rescaled stroke", b)
	}

	if remover.Calls() != 1 {
		t.Fatalf("Expected one submission, got %d", remover.Calls())
	}
	if remover.payload.Image.Width != 1536 || remover.payload.Mask.Height != 2048 || remover.payload.Marked.Width != 1536 {
		t.Error("Expected every payload raster at target size")
	}
	if remover.payload.Hint != "lamp post" || remover.payload.ID != "e2e" {
		t.Errorf("Unexpected payload metadata %q %q", remover.payload.ID, remover.payload.Hint)
	}
	if out.Result == nil || out.Result.URL != "https://cdn.example.com/e2e.png" {
		t.Errorf("Unexpected result %+v", out.Result)
	}
}

func TestExportMalformedExifProceeds(t *testing.T) {
	base := testimg.JPEG(testimg.Gradient(128, 256))
	seg := testimg.ExifSegment(6, binary.BigEndian)
	// IFD0 offset points far past the segment
	binary.BigEndian.PutUint32(seg[14:], 0x7ffffff0)
	data := testimg.WithSegment(base, seg)

	p, _ := newTestPipeline(t, &fakeRemover{}, testConstraints)
	out, err := p.Export(context.Background(), Request{
		Source:  types.Source{Bytes: data},
		Strokes: []stroke.Stroke{horizontal(8, 100, 10, 100)},
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Orientation != exif.Unknown {
		t.Errorf("Expected unknown orientation, got %d", out.Orientation)
	}
	if out.SourceWidth != 128 || out.SourceHeight != 256 {
		t.Errorf("Expected unrotated 128x256, got %dx%d", out.SourceWidth, out.SourceHeight)
	}
	if out.Target.Width != 128 || out.Target.Height != 256 {
		t.Errorf("Expected target 128x256, got %v", out.Target)
	}

	// the same image with a valid tag is rotated
	rotated := testimg.WithSegment(base, testimg.ExifSegment(6, binary.BigEndian))
	out, err = p.Export(context.Background(), Request{
		Source:  types.Source{Bytes: rotated},
		Strokes: []stroke.Stroke{horizontal(8, 100, 10, 100)},
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Orientation != exif.Rotate90CW || out.SourceWidth != 256 || out.SourceHeight != 128 {
		t.Errorf("Expected rotated 256x128, got orientation %d %dx%d", out.Orientation, out.SourceWidth, out.SourceHeight)
	}
}

func TestExportNeedsMoreInk(t *testing.T) {
	cases := []struct {
		name    string
		strokes []stroke.Stroke
	}{
		{"no strokes", nil},
		{"too little ink", []stroke.Stroke{horizontal(8, 50, 10, 20)}},
		{"everything erased", []stroke.Stroke{
			horizontal(20, 96, 20, 200),
			{ID: "e", Size: 40, Mode: stroke.Erase, Points: []geometry.Point{{X: 10, Y: 96}, {X: 210, Y: 96}}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			remover := &fakeRemover{}
			p, _ := newTestPipeline(t, remover, testConstraints)
			out, err := p.Export(context.Background(), Request{Source: smallSource(), Strokes: tc.strokes})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if out.Status != StatusNeedsMoreInk || out.Kind != types.KindEmptyAnnotation {
				t.Errorf("Expected needs more ink, got %v (%v)", out.Status, out.Kind)
			}
			if remover.Calls() != 0 {
				t.Error("Nothing should be submitted")
			}
		})
	}
}

func TestExportCancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		remover := &fakeRemover{}
		p, _ := newTestPipeline(t, remover, testConstraints)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		out, err := p.Export(ctx, Request{Source: smallSource(), Strokes: []stroke.Stroke{horizontal(10, 50, 10, 200)}})
		if err != nil {
			t.Fatalf("Cancellation must not be an error, got %v", err)
		}
		if out.Status != StatusCancelled {
			t.Errorf("Expected cancelled, got %v", out.Status)
		}
		if remover.Calls() != 0 {
			t.Error("Cancelled export must not submit")
		}
	})

	t.Run("during submit", func(t *testing.T) {
		remover := &fakeRemover{blockOn: 1, started: make(chan struct{})}
		p, _ := newTestPipeline(t, remover, testConstraints)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-remover.started
			cancel()
		}()

		out, err := p.Export(ctx, Request{Source: smallSource(), Strokes: []stroke.Stroke{horizontal(10, 50, 10, 200)}})
		if err != nil {
			t.Fatalf("Cancellation must not be an error, got %v", err)
		}
		if out.Status != StatusCancelled {
			t.Errorf("Expected cancelled, got %v", out.Status)
		}
	})
}

func TestExportFailureIsGeneric(t *testing.T) {
	t.Run("provider", func(t *testing.T) {
		remover := &fakeRemover{err: types.Errorf(types.KindProvider, "removal", "provider returned 500: boom")}
		p, sink := newTestPipeline(t, remover, testConstraints)

		out, err := p.Export(context.Background(), Request{Source: smallSource(), Strokes: []stroke.Stroke{horizontal(10, 50, 10, 200)}})
		if err != ErrExportFailed {
			t.Fatalf("Expected ErrExportFailed, got %v", err)
		}
		if out.Status != StatusFailed || out.Kind != types.KindProvider {
			t.Errorf("Expected failed provider outcome, got %v %v", out.Status, out.Kind)
		}
		if strings.Contains(err.Error(), "boom") {
			t.Error("Internal detail leaked into the returned error")
		}
		if !sink.contains("kind=provider") || !sink.contains("boom") {
			t.Error("Expected full diagnostic in the sink")
		}
	})

	t.Run("decode", func(t *testing.T) {
		remover := &fakeRemover{}
		p, sink := newTestPipeline(t, remover, testConstraints)

		out, err := p.Export(context.Background(), Request{
			Source:  types.Source{Bytes: []byte("definitely not an image")},
			Strokes: []stroke.Stroke{horizontal(10, 50, 10, 200)},
		})
		if err != ErrExportFailed {
			t.Fatalf("Expected ErrExportFailed, got %v", err)
		}
		if out.Kind != types.KindDecode {
			t.Errorf("Expected decode kind, got %v", out.Kind)
		}
		if !sink.contains("kind=decode") {
			t.Error("Expected decode diagnostic")
		}
		if remover.Calls() != 0 {
			t.Error("Nothing should be submitted")
		}
	})

	t.Run("no client", func(t *testing.T) {
		p, _ := newTestPipeline(t, nil, testConstraints)
		if _, err := p.Export(context.Background(), Request{Source: smallSource()}); err != ErrExportFailed {
			t.Errorf("Expected ErrExportFailed, got %v", err)
		}
	})
}

func TestRenderDryRun(t *testing.T) {
	p, _ := newTestPipeline(t, nil, types.Constraints{MinSide: 64, MaxSide: 128, Step: 32})
	out, err := p.Render(context.Background(), Request{Source: smallSource(), Strokes: []stroke.Stroke{horizontal(10, 50, 10, 200)}})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out.Target.Width != 128 || out.Target.Height != 96 {
		t.Errorf("Expected 128x96, got %v", out.Target)
	}
	if len(out.Image.Data) == 0 || len(out.Rendered.Mask.Data) == 0 || len(out.Rendered.Marked.Data) == 0 {
		t.Error("Expected encoded image, mask and marked outputs")
	}
	if out.Result != nil {
		t.Error("Render must not submit")
	}
}

type fakeVision struct{ reply string }

func (f fakeVision) DescribeImage(ctx context.Context, model, prompt string, img types.RasterAsset) (string, error) {
	return f.reply, nil
}

func TestExportWithDescriber(t *testing.T) {
	remover := &fakeRemover{}
	p, err := New(remover, Config{
		Constraints: testConstraints,
		Describer:   hint.NewDescriber(fakeVision{reply: `{"object": "Trash can", "confidence": 0.8}`}, "llava"),
	})
	if err != nil {
		t.Fatal(err)
	}
	strokes := []stroke.Stroke{horizontal(10, 50, 10, 200)}

	out, err := p.Export(context.Background(), Request{Source: smallSource(), Strokes: strokes})
	if err != nil {
		t.Fatal(err)
	}
	if out.Hint != "trash can" || remover.payload.Hint != "trash can" {
		t.Errorf("Expected described hint, got %q / %q", out.Hint, remover.payload.Hint)
	}

	// an explicit hint wins
	if _, err := p.Export(context.Background(), Request{Source: smallSource(), Strokes: strokes, Hint: "bench"}); err != nil {
		t.Fatal(err)
	}
	if remover.payload.Hint != "bench" {
		t.Errorf("Expected explicit hint, got %q", remover.payload.Hint)
	}
}

func TestInspect(t *testing.T) {
	p, _ := newTestPipeline(t, nil, testConstraints)
	data := testimg.OrientedJPEG(testimg.Gradient(64, 32), 6)

	info, err := p.Inspect(context.Background(), types.Source{Bytes: data})
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Width != 32 || info.Height != 64 || info.Orientation != exif.Rotate90CW {
		t.Errorf("Expected upright 32x64 with orientation 6, got %+v", info)
	}
	if info.MIME != "image/jpeg" {
		t.Errorf("Expected sniffed image/jpeg, got %s", info.MIME)
	}
}

func TestLoadReadsSourceOnce(t *testing.T) {
	data := testimg.OrientedJPEG(testimg.Gradient(256, 192), 8)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(data)
	}))
	defer server.Close()

	remover := &fakeRemover{}
	p, _ := newTestPipeline(t, remover, testConstraints)
	src, info, err := p.Load(context.Background(), types.Source{URL: server.URL + "/photo.jpg"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if info.Width != 192 || info.Height != 256 || info.Orientation != 8 {
		t.Errorf("Expected upright 192x256 with orientation 8, got %+v", info)
	}
	if src.URL != "" || len(src.Bytes) != len(data) || src.MIME != "image/jpeg" {
		t.Fatalf("Expected an in-memory jpeg source, got URL=%q len=%d MIME=%q", src.URL, len(src.Bytes), src.MIME)
	}

	session := p.NewSession(src)
	session.Log().Append(horizontal(20, 100, 20, 170))
	out, err := session.StartExport(context.Background(), "").Wait()
	if err != nil || out.Status != StatusSucceeded {
		t.Fatalf("Export failed: %v %v", out, err)
	}
	if out.SourceWidth != info.Width || out.SourceHeight != info.Height {
		t.Errorf("Exported %dx%d, inspected %dx%d", out.SourceWidth, out.SourceHeight, info.Width, info.Height)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("Expected the URL to be fetched once, got %d", got)
	}
}

func TestNewRejectsBadConstraints(t *testing.T) {
	if _, err := New(nil, Config{Constraints: types.Constraints{MinSide: 512, MaxSide: 256, Step: 64}}); !errors.Is(err, types.ErrProviderConstraint) {
		t.Errorf("Expected provider constraint error, got %v", err)
	}
}
