// Package atvmlog provides the thin logging interface the VM and its host
// adapters use: a *log.Logger wrapped behind a small interface
// (debug/warn/error plus an echo-specific line for the ECHO function code).
package atvmlog

import (
	"log"
	"os"
)

// Logger is the narrow logging surface the VM core and host adapters depend
// on. A nil *Logger is never passed around; Nop() gives a safe no-op value.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Echo(value int64)
}

type stdLogger struct {
	l *log.Logger
}

// New returns a Logger writing to os.Stderr with the given prefix.
func New(prefix string) Logger {
	return &stdLogger{l: log.New(os.Stderr, prefix, log.LstdFlags)}
}

func (s *stdLogger) Debugf(format string, args ...any) {
	s.l.Printf("DEBUG "+format, args...)
}

func (s *stdLogger) Warnf(format string, args ...any) {
	s.l.Printf("WARN "+format, args...)
}

func (s *stdLogger) Errorf(format string, args ...any) {
	s.l.Printf("ERROR "+format, args...)
}

func (s *stdLogger) Echo(value int64) {
	s.l.Printf("ECHO %d", value)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
func (nopLogger) Echo(int64)            {}

// Nop returns a Logger that discards everything, for tests.
func Nop() Logger { return nopLogger{} }
