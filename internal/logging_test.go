package internal

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	l := NewLogger("test")
	l.logger = log.New(buf, "", 0)
	return l
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.Info("hidden")
	assert.Zero(t, buf.Len(), "info should not print at default level")
	l.Warnf("shown %d", 1)
	assert.Contains(t, buf.String(), "WARN test: shown 1")
}

func TestSetVerbosity(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	old := l.SetVerbosity(3)
	assert.Equal(t, LogLevelDefault, LogLevel(old))
	l.Info("now visible")
	assert.Contains(t, buf.String(), "INFO test: now visible")

	l.SetVerbosity(0)
	buf.Reset()
	l.Error("quiet")
	assert.Zero(t, buf.Len(), "error should not print at fatal level")
}

func TestInvalidLevel(t *testing.T) {
	assert.Panics(t, func() {
		NewLogger("x").SetLogLevel(LevelMax + 1)
	})
}
