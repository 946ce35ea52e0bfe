// Package diag provides the diagnostics sink injected into pipeline components.
package diag

import "log"

// Sink receives diagnostic messages
type Sink interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type nop struct{}

func (nop) Debugf(string, ...any) {}
func (nop) Infof(string, ...any)  {}
func (nop) Warnf(string, ...any)  {}
func (nop) Errorf(string, ...any) {}

// Nop returns a sink that discards everything
func Nop() Sink {
	return nop{}
}

// OrNop returns s, or a no-op sink if s is nil
func OrNop(s Sink) Sink {
	if s == nil {
		return nop{}
	}
	return s
}

// Std writes to a standard library logger with a level prefix
type Std struct {
	logger *log.Logger
	debug  bool
}

// NewStd wraps logger. Debug messages are dropped unless debug is set.
// A nil logger writes through log.Default().
func NewStd(logger *log.Logger, debug bool) *Std {
	if logger == nil {
		logger = log.Default()
	}
	return &Std{logger: logger, debug: debug}
}

func (s *Std) Debugf(format string, args ...any) {
	if s.debug {
		s.logger.Printf("debug: "+format, args...)
	}
}

func (s *Std) Infof(format string, args ...any) {
	s.logger.Printf("info: "+format, args...)
}

func (s *Std) Warnf(format string, args ...any) {
	s.logger.Printf("warn: "+format, args...)
}

func (s *Std) Errorf(format string, args ...any) {
	s.logger.Printf("error: "+format, args...)
}
