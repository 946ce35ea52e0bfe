package types

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures
type Kind int

const (
	KindUnknown Kind = iota
	KindDecode
	KindInvalidGeometry
	KindOutOfBounds
	KindEmptyAnnotation
	KindEncode
	KindProviderConstraint
	KindProvider
	KindCancelled
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindDecode:             "decode",
	KindInvalidGeometry:    "invalid geometry",
	KindOutOfBounds:        "out of bounds",
	KindEmptyAnnotation:    "empty annotation",
	KindEncode:             "encode",
	KindProviderConstraint: "provider constraint",
	KindProvider:           "provider",
	KindCancelled:          "cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels for errors.Is; matching is by Kind only.
var (
	ErrDecode             = &Error{Kind: KindDecode}
	ErrInvalidGeometry    = &Error{Kind: KindInvalidGeometry}
	ErrOutOfBounds        = &Error{Kind: KindOutOfBounds}
	ErrEmptyAnnotation    = &Error{Kind: KindEmptyAnnotation}
	ErrEncode             = &Error{Kind: KindEncode}
	ErrProviderConstraint = &Error{Kind: KindProviderConstraint}
	ErrProvider           = &Error{Kind: KindProvider}
	ErrCancelled          = &Error{Kind: KindCancelled}
)

// Errorf builds a classified error. The message may wrap a cause with %w.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err, or returns nil if err is nil
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
