// Package logging provides the component-scoped debug logger used across the
// evaluation pipeline. Output goes to ~/.autoeval/autoeval-debug.log so the
// CLI's stdout stays reserved for evaluation results.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Logger is the minimal printf-style logging contract the pipeline depends on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Level controls the minimum severity written to the log file.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	fileOnce   sync.Once
	fileLogger *log.Logger
)

func sharedFileLogger() *log.Logger {
	fileOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		dir := filepath.Join(home, ".autoeval")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
		f, err := os.OpenFile(filepath.Join(dir, "autoeval-debug.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		fileLogger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
	})
	return fileLogger
}

type componentLogger struct {
	component string
	level     Level
	mu        sync.Mutex
}

// NewComponentLogger returns a logger scoped to the given component name.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component, level: LevelDebug}
}

func (l *componentLogger) emit(level Level, tag, format string, args ...any) {
	if level < l.level {
		return
	}
	out := sharedFileLogger()
	if out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		out.Printf("[%s] [%s] %s", tag, l.component, msg)
		return
	}
	out.Printf("[%s] %s", tag, msg)
}

func (l *componentLogger) Debug(format string, args ...any) { l.emit(LevelDebug, "DEBUG", format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.emit(LevelInfo, "INFO", format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.emit(LevelWarn, "WARN", format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.emit(LevelError, "ERROR", format, args...) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

// OrNop returns logger when non-nil, otherwise a no-op logger, so callers can
// hold Logger fields without nil checks at every call site.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}
