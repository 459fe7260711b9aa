// Package ctxlog carries a logrus logger in a context and configures the
// process-wide root logger.
package ctxlog

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

var (
	loggerCtxKey = new(int)
	rootLogger   = logrus.New()
)

const rfc3339NanoFixed = "2006-01-02T15:04:05.000000000Z07:00"

// Context returns a new child context such that FromContext(child)
// returns the given logger.
func Context(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// FromContext returns the logger attached with Context, otherwise the root
// logger with no fields.
func FromContext(ctx context.Context) logrus.FieldLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey).(logrus.FieldLogger); ok {
			return logger
		}
	}
	return rootLogger.WithFields(nil)
}

// Root returns the root logger
func Root() *logrus.Logger { return rootLogger }

// SetOutput sets where the root logger writes
func SetOutput(w io.Writer) { rootLogger.Out = w }

// SetLevel sets the current logging level. See logrus for level
// names.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	rootLogger.Level = lvl
	return nil
}

// SetFormat sets the current logging format to "json" or "text".
func SetFormat(format string) error {
	f, err := formatter(format)
	if err != nil {
		return err
	}
	rootLogger.Formatter = f
	return nil
}

func formatter(format string) (logrus.Formatter, error) {
	switch format {
	case "text", "":
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: rfc3339NanoFixed,
		}, nil
	case "json":
		return &logrus.JSONFormatter{
			TimestampFormat: rfc3339NanoFixed,
		}, nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// New returns a new logger writing to out with the given format and level
func New(out io.Writer, format, level string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.Out = out
	f, err := formatter(format)
	if err != nil {
		return nil, err
	}
	logger.Formatter = f
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.Level = lvl
	return logger, nil
}

// Logf is implemented by *testing.T and *check.C
type Logf interface {
	Logf(format string, args ...interface{})
}

type testWriter struct{ t Logf }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// TestLogger returns a debug level logger that writes through the test's
// Logf, so output is only shown for failing tests.
func TestLogger(t Logf) *logrus.Logger {
	logger := logrus.New()
	logger.Out = testWriter{t}
	logger.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: rfc3339NanoFixed,
	}
	logger.Level = logrus.DebugLevel
	return logger
}
