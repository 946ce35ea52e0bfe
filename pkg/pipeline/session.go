package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/menta2k/object-eraser/pkg/exif"
	"github.com/menta2k/object-eraser/pkg/stroke"
	"github.com/menta2k/object-eraser/pkg/types"
)

// Session is one annotation session over a single source. It owns the
// stroke log and runs at most one export at a time.
type Session struct {
	pipeline    *Pipeline
	source      types.Source
	orientation exif.Orientation
	log         *stroke.Log

	mu     sync.Mutex
	export *Export
}

// Export is a handle to a running export
type Export struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	outcome *Outcome
	err     error
}

// NewSession starts an annotation session on src
func (p *Pipeline) NewSession(src types.Source) *Session {
	return &Session{pipeline: p, source: src, log: stroke.NewLog()}
}

// Log returns the session's stroke log. It must only be used from the
// goroutine that captures input.
func (s *Session) Log() *stroke.Log {
	return s.log
}

// SetOrientation overrides EXIF detection for later exports
func (s *Session) SetOrientation(o exif.Orientation) {
	s.orientation = o
}

// StartExport snapshots the stroke log and exports it in the background.
// A previous export still in flight is cancelled.
func (s *Session) StartExport(ctx context.Context, hint string) *Export {
	req := Request{
		ID:          uuid.NewString(),
		Source:      s.source,
		Orientation: s.orientation,
		Strokes:     s.log.Strokes(),
		Hint:        hint,
	}

	ectx, cancel := context.WithCancel(ctx)
	e := &Export{id: req.ID, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.export
	s.export = e
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	go func() {
		defer close(e.done)
		defer cancel()
		e.outcome, e.err = s.pipeline.Export(ectx, req)
	}()
	return e
}

// Current returns the most recently started export, or nil
func (s *Session) Current() *Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.export
}

// Wait blocks until the most recent export finishes. It returns a nil
// outcome when no export was started.
func (s *Session) Wait() (*Outcome, error) {
	e := s.Current()
	if e == nil {
		return nil, nil
	}
	return e.Wait()
}

// Cancel stops the export in flight, if any
func (s *Session) Cancel() {
	if e := s.Current(); e != nil {
		e.Cancel()
	}
}

// ID of the export
func (e *Export) ID() string {
	return e.id
}

// Cancel stops the export at its next stage boundary
func (e *Export) Cancel() {
	e.cancel()
}

// Done is closed when the export finishes
func (e *Export) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the export finishes
func (e *Export) Wait() (*Outcome, error) {
	<-e.done
	return e.outcome, e.err
}
