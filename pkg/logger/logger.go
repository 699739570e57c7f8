package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger used across the service.
// keyvals are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a logrus backed logger with the given level and format.
// Unknown levels fall back to info, any format other than "text" is JSON.
func NewLogger(level, format string) Logger {
	return newLogger(os.Stdout, level, format)
}

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() Logger {
	return newLogger(io.Discard, "error", "text")
}

func newLogger(out io.Writer, level, format string) Logger {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Debug(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Error(msg)
}

// toFields turns alternating key/value pairs into logrus fields.
// A trailing key without a value is recorded as "missing".
func toFields(keyvals []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keyvals)/2+1)

	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}

		if i+1 < len(keyvals) {
			fields[key] = keyvals[i+1]
		} else {
			fields[key] = "missing"
		}
	}

	return fields
}
