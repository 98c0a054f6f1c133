package logger

import (
	"errors"
	"fmt"
	"strings"
)

type Level string

const (
	DebugLevel Level = "DEBUG"
	InfoLevel  Level = "INFO"
	WarnLevel  Level = "WARN"
	ErrorLevel Level = "ERROR"
)

type Log struct {
	SessionID string `json:"sessionId"`
	Level     Level  `json:"level"`
	Time      int64  `json:"time"`
	Message   string `json:"message"`
	Args      []any  `json:"args,omitempty"`
}

type Logger interface {
	Log(level Level, msg string, args ...any)
	Rotate() error
	// Stops the logger, including the workers and the closes file.
	Stop()
}

type nop struct{}

func (nop) Log(Level, string, ...any) {}

func (nop) Rotate() error { return nil }

func (nop) Stop() {}

// Nop discards everything.
func Nop() Logger {
	return nop{}
}

// Multi fans every entry out to each of loggers.
func Multi(loggers ...Logger) Logger {
	return multi(loggers)
}

type multi []Logger

func (m multi) Log(level Level, msg string, args ...any) {
	for _, l := range m {
		l.Log(level, msg, args...)
	}
}

func (m multi) Rotate() error {
	var errs []error
	for _, l := range m {
		if err := l.Rotate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Stop() {
	for _, l := range m {
		l.Stop()
	}
}

var levelRank = map[Level]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
}

// Enabled reports whether l passes a filter set at min.
func (l Level) Enabled(min Level) bool {
	return levelRank[l] >= levelRank[min]
}

func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(s))
	if _, ok := levelRank[l]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
