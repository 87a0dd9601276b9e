// Package telemetry holds the logging and counter plumbing shared by the
// server and client loops.
package telemetry

import (
	"io"
	"log"
	"os"
)

// Logger exposes the logging capabilities required by netcode components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// NewLogger returns a stderr logger tagged with "[component] ".
func NewLogger(component string) Logger {
	return WrapLogger(log.New(os.Stderr, "["+component+"] ", log.LstdFlags|log.Lmicroseconds))
}

// Discard drops everything. Tests use it to keep output quiet.
var Discard Logger = WrapLogger(log.New(io.Discard, "", 0))

// OrDiscard returns l, or Discard when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}

// PowerOfTwo reports whether n is 1, 2, 4, 8, ... Repetitive warnings are
// only logged on those counts.
func PowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}
