// Package corelog provides the structured logging abstraction used
// across this repo: a small interface so the backing implementation
// can be swapped, and a default implementation built on the standard
// library's log package.
package corelog

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Logger is the structured logging interface every ambient and domain
// collaborator in this repo depends on.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	// WithFields returns a new logger that appends the given structured
	// fields (merged with any already attached) to every line written by
	// Error, Warn, Info and Debug. The formatted variants (Errorf,
	// Warnf, Infof, Debugf) do not include them.
	WithFields(fields map[string]interface{}) Logger
}

type contextKey struct{}

// WithContext attaches a logger to ctx, to be retrieved with FromContext.
func WithContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger attached to ctx, or def if none was
// attached.
func FromContext(ctx context.Context, def Logger) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return def
}

// defaultLogger routes each level to its own *log.Logger so stdout and
// stderr stay separated and level prefixes stay consistent.
type defaultLogger struct {
	errorLog *log.Logger
	warnLog  *log.Logger
	infoLog  *log.Logger
	debugLog *log.Logger
	fields   map[string]interface{}
}

// NewDefaultLogger returns the package's standard-library-backed Logger.
func NewDefaultLogger() Logger {
	return &defaultLogger{
		errorLog: log.New(os.Stderr, "[ERROR] ", log.LstdFlags),
		warnLog:  log.New(os.Stderr, "[WARN] ", log.LstdFlags),
		infoLog:  log.New(os.Stdout, "[INFO] ", log.LstdFlags),
		debugLog: log.New(os.Stdout, "[DEBUG] ", log.LstdFlags),
	}
}

func (l *defaultLogger) withSuffix(args []interface{}) []interface{} {
	if len(l.fields) == 0 {
		return args
	}
	return append(append([]interface{}{}, args...), fmt.Sprintf(" fields=%v", l.fields))
}

func (l *defaultLogger) Error(args ...interface{})  { l.errorLog.Println(l.withSuffix(args)...) }
func (l *defaultLogger) Warn(args ...interface{})   { l.warnLog.Println(l.withSuffix(args)...) }
func (l *defaultLogger) Info(args ...interface{})   { l.infoLog.Println(l.withSuffix(args)...) }
func (l *defaultLogger) Debug(args ...interface{})  { l.debugLog.Println(l.withSuffix(args)...) }

func (l *defaultLogger) Errorf(format string, args ...interface{}) {
	l.errorLog.Printf(format, args...)
}

func (l *defaultLogger) Warnf(format string, args ...interface{}) {
	l.warnLog.Printf(format, args...)
}

func (l *defaultLogger) Infof(format string, args ...interface{}) {
	l.infoLog.Printf(format, args...)
}

func (l *defaultLogger) Debugf(format string, args ...interface{}) {
	l.debugLog.Printf(format, args...)
}

func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &defaultLogger{
		errorLog: l.errorLog,
		warnLog:  l.warnLog,
		infoLog:  l.infoLog,
		debugLog: l.debugLog,
		fields:   merged,
	}
}
