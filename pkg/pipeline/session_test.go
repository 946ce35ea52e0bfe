package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/menta2k/object-eraser/pkg/geometry"
	"github.com/menta2k/object-eraser/pkg/stroke"
)

func drawLine(t *testing.T, s *Session, from, to geometry.Point) {
	t.Helper()
	b := stroke.Begin(from, 10, stroke.Draw)
	for i := 1; i <= 20; i++ {
		f := float64(i) / 20
		b.Append(geometry.Point{X: from.X + (to.X-from.X)*f, Y: from.Y + (to.Y-from.Y)*f})
	}
	if _, ok := s.Log().Seal(b); !ok {
		t.Fatal("Failed to seal stroke")
	}
}

func TestSessionNewExportCancelsPrevious(t *testing.T) {
	remover := &fakeRemover{blockOn: 1, started: make(chan struct{})}
	p, _ := newTestPipeline(t, remover, testConstraints)
	s := p.NewSession(smallSource())
	drawLine(t, s, geometry.Point{X: 10, Y: 50}, geometry.Point{X: 200, Y: 50})

	first := s.StartExport(context.Background(), "")
	select {
	case <-remover.started:
	case <-time.After(10 * time.Second):
		t.Fatal("First export never reached submission")
	}

	second := s.StartExport(context.Background(), "")
	if s.Current() != second {
		t.Error("Expected the newest export to own the slot")
	}

	out, err := first.Wait()
	if err != nil {
		t.Fatalf("Stale export must not fail, got %v", err)
	}
	if out.Status != StatusCancelled {
		t.Errorf("Expected stale export cancelled, got %v", out.Status)
	}

	out, err = s.Wait()
	if err != nil {
		t.Fatalf("Second export failed: %v", err)
	}
	if out.Status != StatusSucceeded || out.ID != second.ID() {
		t.Errorf("Expected second export to succeed, got %v (%s)", out.Status, out.ID)
	}
	if first.ID() == second.ID() {
		t.Error("Exports should have distinct IDs")
	}
}

func TestSessionSnapshotsStrokes(t *testing.T) {
	remover := &fakeRemover{blockOn: 1, started: make(chan struct{})}
	p, _ := newTestPipeline(t, remover, testConstraints)
	s := p.NewSession(smallSource())
	drawLine(t, s, geometry.Point{X: 10, Y: 50}, geometry.Point{X: 200, Y: 50})

	e := s.StartExport(context.Background(), "")
	<-remover.started

	// capture continues while the export is in flight
	drawLine(t, s, geometry.Point{X: 10, Y: 150}, geometry.Point{X: 200, Y: 150})
	s.Log().Undo()
	s.Log().Undo()

	e.Cancel()
	out, _ := e.Wait()
	if out.Status != StatusCancelled {
		t.Errorf("Expected cancelled, got %v", out.Status)
	}
	if out.Rendered == nil || out.Rendered.Strokes != 1 {
		t.Error("Export should have rendered the single stroke present when it started")
	}
}

func TestSessionWaitWithoutExport(t *testing.T) {
	p, _ := newTestPipeline(t, nil, testConstraints)
	s := p.NewSession(smallSource())
	out, err := s.Wait()
	if out != nil || err != nil {
		t.Errorf("Expected nothing, got %v %v", out, err)
	}
	s.Cancel()
}

func TestSessionNeedsMoreInk(t *testing.T) {
	remover := &fakeRemover{}
	p, _ := newTestPipeline(t, remover, testConstraints)
	s := p.NewSession(smallSource())
	s.Log().Seal(stroke.Begin(geometry.Point{X: 20, Y: 20}, 10, stroke.Draw))

	out, err := s.StartExport(context.Background(), "").Wait()
	if err != nil {
		t.Fatal(err)
	}
	// a single dab is below the minimum
	if out.Status != StatusNeedsMoreInk {
		t.Errorf("Expected needs more ink, got %v", out.Status)
	}
	if remover.Calls() != 0 {
		t.Error("Nothing should be submitted")
	}
}
