/*
Package logger provides leveled logging for the pipeline components.

PURPOSE:
  Long-lived components (source client, incremental writer, pipeline runner,
  HTTP server) take a Logger instead of writing to the global stdlib logger.
  This keeps runs silent in tests, lets the buffer implementation capture
  output for assertions, and gives each component its own prefix.

IMPLEMENTATIONS:
  NewStandardLogger: timestamped output to an io.Writer, debug suppressed
  NewVerboseLogger:  same, debug enabled
  NopLogger:         discards everything
  NewBufferLogger:   collects formatted lines in memory (tests)
*/
package logger

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Logger is the interface accepted by everything in this module that logs.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// WithPrefix returns a logger that prepends prefix to every message.
	WithPrefix(prefix string) Logger
}

// NopLogger discards all log messages.
var NopLogger Logger = &nopLogger{}

type nopLogger struct{}

func (n *nopLogger) Printf(format string, args ...interface{}) {}
func (n *nopLogger) Debugf(format string, args ...interface{}) {}
func (n *nopLogger) Infof(format string, args ...interface{})  {}
func (n *nopLogger) Warnf(format string, args ...interface{})  {}
func (n *nopLogger) Errorf(format string, args ...interface{}) {}
func (n *nopLogger) WithPrefix(prefix string) Logger           { return n }

// =============================================================================
// STANDARD LOGGER
// =============================================================================

type standardLogger struct {
	out     *log.Logger
	prefix  string
	verbose bool
}

// NewStandardLogger writes INFO and above to w. Debugf is a no-op.
func NewStandardLogger(w io.Writer) Logger {
	return &standardLogger{out: log.New(w, "", 0)}
}

// NewVerboseLogger writes all levels to w, including DEBUG.
func NewVerboseLogger(w io.Writer) Logger {
	return &standardLogger{out: log.New(w, "", 0), verbose: true}
}

func (s *standardLogger) logf(level, format string, args ...interface{}) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	msg := fmt.Sprintf(format, args...)
	if s.prefix != "" {
		s.out.Printf("%s %-5s %s%s", ts, level, s.prefix, msg)
		return
	}
	s.out.Printf("%s %-5s %s", ts, level, msg)
}

func (s *standardLogger) Printf(format string, args ...interface{}) {
	s.logf("INFO", format, args...)
}

func (s *standardLogger) Debugf(format string, args ...interface{}) {
	if !s.verbose {
		return
	}
	s.logf("DEBUG", format, args...)
}

func (s *standardLogger) Infof(format string, args ...interface{}) {
	s.logf("INFO", format, args...)
}

func (s *standardLogger) Warnf(format string, args ...interface{}) {
	s.logf("WARN", format, args...)
}

func (s *standardLogger) Errorf(format string, args ...interface{}) {
	s.logf("ERROR", format, args...)
}

func (s *standardLogger) WithPrefix(prefix string) Logger {
	return &standardLogger{out: s.out, prefix: s.prefix + prefix, verbose: s.verbose}
}

// =============================================================================
// BUFFER LOGGER - captures output for test assertions
// =============================================================================

// BufferLogger keeps every formatted message in memory. Loggers derived via
// WithPrefix share the same underlying buffer.
type BufferLogger struct {
	prefix string
	core   *bufferCore
}

type bufferCore struct {
	mu    sync.Mutex
	lines []string
}

func NewBufferLogger() *BufferLogger {
	return &BufferLogger{core: &bufferCore{}}
}

func (b *BufferLogger) append(level, format string, args ...interface{}) {
	b.core.mu.Lock()
	defer b.core.mu.Unlock()
	b.core.lines = append(b.core.lines, level+" "+b.prefix+fmt.Sprintf(format, args...))
}

func (b *BufferLogger) Printf(format string, args ...interface{}) { b.append("INFO", format, args...) }
func (b *BufferLogger) Debugf(format string, args ...interface{}) { b.append("DEBUG", format, args...) }
func (b *BufferLogger) Infof(format string, args ...interface{})  { b.append("INFO", format, args...) }
func (b *BufferLogger) Warnf(format string, args ...interface{})  { b.append("WARN", format, args...) }
func (b *BufferLogger) Errorf(format string, args ...interface{}) { b.append("ERROR", format, args...) }

func (b *BufferLogger) WithPrefix(prefix string) Logger {
	return &BufferLogger{prefix: b.prefix + prefix, core: b.core}
}

// Lines returns a copy of everything logged so far.
func (b *BufferLogger) Lines() []string {
	b.core.mu.Lock()
	defer b.core.mu.Unlock()
	out := make([]string, len(b.core.lines))
	copy(out, b.core.lines)
	return out
}
