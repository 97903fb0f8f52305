// Package logging builds the logrus loggers shared by every component.
package logging

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// New returns a logger writing to out with the prefixed text formatter.
func New(level string, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	logger := logrus.New()
	logger.Out = out
	logger.Level = Level(level)
	logger.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	}
	return logger
}

// Component returns an entry tagged with the component name as prefix.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("prefix", name)
}

// Level parses a level name, falling back to info.
func Level(l string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// testWriter maps log lines onto t.Log so output only shows for failed tests.
type testWriter struct {
	t testing.TB
}

func (w *testWriter) Write(d []byte) (int, error) {
	n := len(d)
	if n > 0 && d[n-1] == '\n' {
		d = d[:n-1]
	}
	w.t.Log(string(d))
	return n, nil
}

// NewTestLogger returns a debug-level logger routed to t.Log.
func NewTestLogger(t testing.TB) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testWriter{t: t}
	logger.Level = logrus.DebugLevel
	return logger
}
