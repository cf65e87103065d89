package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Pipeline components depend on this interface instead of a concrete logger
// so tests can substitute fakes and the CLI can silence everything.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ComponentLogger writes leveled, timestamped lines tagged with a component
// name. It is safe for concurrent use.
type ComponentLogger struct {
	mu        sync.Mutex
	out       *log.Logger
	level     Level
	component string
}

// New creates a component logger writing to w at the given minimum level.
func New(w io.Writer, component string, level Level) *ComponentLogger {
	if w == nil {
		w = os.Stderr
	}
	return &ComponentLogger{
		out:       log.New(w, "", 0),
		level:     level,
		component: component,
	}
}

// NewComponentLogger returns a stderr logger scoped to a component.
// Debug output is enabled through the COURSEBOT_DEBUG environment variable.
func NewComponentLogger(component string) *ComponentLogger {
	level := LevelInfo
	if os.Getenv("COURSEBOT_DEBUG") != "" {
		level = LevelDebug
	}
	return New(os.Stderr, component, level)
}

// WithComponent returns a copy of the logger scoped to another component.
func (l *ComponentLogger) WithComponent(component string) *ComponentLogger {
	return &ComponentLogger{out: l.out, level: l.level, component: component}
}

func (l *ComponentLogger) logf(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.component != "" {
		l.out.Printf("[%s] [%s] [%s] %s", ts, level, l.component, msg)
		return
	}
	l.out.Printf("[%s] [%s] %s", ts, level, msg)
}

func (l *ComponentLogger) Debug(format string, args ...any) {
	l.logf(LevelDebug, format, args...)
}

func (l *ComponentLogger) Info(format string, args ...any) {
	l.logf(LevelInfo, format, args...)
}

func (l *ComponentLogger) Warn(format string, args ...any) {
	l.logf(LevelWarn, format, args...)
}

func (l *ComponentLogger) Error(format string, args ...any) {
	l.logf(LevelError, format, args...)
}

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}
