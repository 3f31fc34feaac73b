// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// logger.go: Logger interface used by the record store, its noop default,
// and an adapter that routes key-value pairs to logrus fields.

package exadb

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface used internally by the store.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Info(_ string, _ ...any)  {}
func (noopLogger) Warn(_ string, _ ...any)  {}
func (noopLogger) Error(_ string, _ ...any) {}
func (noopLogger) Debug(_ string, _ ...any) {}

type logrusLogger struct {
	l logrus.FieldLogger
}

// NewLogrusLogger adapts a logrus logger (or entry) to Logger. Key-value
// pairs become fields; a trailing key without a value is logged under
// "!BADKEY".
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return logrusLogger{l: l}
}

func (g logrusLogger) with(kv []any) logrus.FieldLogger {
	if len(kv) == 0 {
		return g.l
	}
	fields := make(logrus.Fields, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			fields["!BADKEY"] = kv[i]
			break
		}
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return g.l.WithFields(fields)
}

func (g logrusLogger) Info(msg string, kv ...any)  { g.with(kv).Info(msg) }
func (g logrusLogger) Warn(msg string, kv ...any)  { g.with(kv).Warn(msg) }
func (g logrusLogger) Error(msg string, kv ...any) { g.with(kv).Error(msg) }
func (g logrusLogger) Debug(msg string, kv ...any) { g.with(kv).Debug(msg) }
