package stroke

// Log is the ordered list of sealed strokes plus a redo buffer.
// It belongs to a single annotation session and is not safe for
// concurrent use.
type Log struct {
	strokes []Stroke
	redo    []Stroke
}

// NewLog returns an empty log
func NewLog() *Log {
	return &Log{}
}

// Seal commits the builder's stroke. Builders without points are dropped.
func (l *Log) Seal(b *Builder) (Stroke, bool) {
	if b == nil {
		return Stroke{}, false
	}
	s, ok := b.build()
	if !ok {
		return Stroke{}, false
	}
	l.Append(s)
	return s, true
}

// Append commits an already sealed stroke and clears the redo buffer
func (l *Log) Append(s Stroke) {
	l.strokes = append(l.strokes, s)
	l.redo = nil
}

// Undo moves the last stroke to the redo buffer
func (l *Log) Undo() bool {
	n := len(l.strokes)
	if n == 0 {
		return false
	}
	l.redo = append(l.redo, l.strokes[n-1])
	l.strokes = l.strokes[:n-1]
	return true
}

// Redo restores the most recently undone stroke
func (l *Log) Redo() bool {
	n := len(l.redo)
	if n == 0 {
		return false
	}
	l.strokes = append(l.strokes, l.redo[n-1])
	l.redo = l.redo[:n-1]
	return true
}

// Reset clears strokes and redo buffer
func (l *Log) Reset() {
	l.strokes = nil
	l.redo = nil
}

func (l *Log) CanUndo() bool { return len(l.strokes) > 0 }
func (l *Log) CanRedo() bool { return len(l.redo) > 0 }
func (l *Log) Len() int      { return len(l.strokes) }

// Strokes returns a copy of the committed strokes in order
func (l *Log) Strokes() []Stroke {
	out := make([]Stroke, len(l.strokes))
	copy(out, l.strokes)
	return out
}

// InkScore returns the ink score of the committed strokes
func (l *Log) InkScore() float64 {
	return InkScore(l.strokes)
}

// Ready reports whether there is enough ink to export a w x h image
func (l *Log) Ready(w, h int) bool {
	return l.InkScore() > MinInk(w, h)
}
