package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"":        logrus.InfoLevel,
		"WARN":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := Level(in); got != want {
			t.Fatalf("Level(%q)=%v want %v", in, got, want)
		}
	}
}

func TestComponent_PrefixesOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New("info", &buf)
	Component(logger, "crawler").Info("iteration done")

	out := buf.String()
	if !strings.Contains(out, "crawler") || !strings.Contains(out, "iteration done") {
		t.Fatalf("output=%q", out)
	}
}
