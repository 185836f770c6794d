package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the component-scoped structured logger shared by every package.
type Logger interface {
	Debug(component string, message string, fields map[string]interface{})
	Info(component string, message string, fields map[string]interface{})
	Warning(component string, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

// ParseLevel accepts the zerolog level names plus "warning".
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) Debug(string, string, map[string]interface{})   {}
func (NoOp) Info(string, string, map[string]interface{})    {}
func (NoOp) Warning(string, string, map[string]interface{}) {}
func (NoOp) Error(string, error, map[string]interface{})    {}

// OrNoOp returns l, or a NoOp logger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOp{}
	}
	return l
}

// With attaches fields to every event logged through l.
func With(l Logger, fields map[string]interface{}) Logger {
	if z, ok := l.(*ZerologAdapter); ok {
		return z.With(fields)
	}
	return scoped{base: OrNoOp(l), fields: fields}
}

type scoped struct {
	base   Logger
	fields map[string]interface{}
}

func (s scoped) merge(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(s.fields)+len(fields))
	for k, v := range s.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (s scoped) Debug(component, message string, fields map[string]interface{}) {
	s.base.Debug(component, message, s.merge(fields))
}

func (s scoped) Info(component, message string, fields map[string]interface{}) {
	s.base.Info(component, message, s.merge(fields))
}

func (s scoped) Warning(component, message string, fields map[string]interface{}) {
	s.base.Warning(component, message, s.merge(fields))
}

func (s scoped) Error(component string, err error, fields map[string]interface{}) {
	s.base.Error(component, err, s.merge(fields))
}
