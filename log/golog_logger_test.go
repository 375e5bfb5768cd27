package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(level LogLevel) (*GologLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	g := golog.New()
	g.SetOutput(&buf)
	g.SetTimeFormat("")
	l := NewGologLogger(g)
	l.SetLevel(level)
	return l, &buf
}

func TestNewGologLogger(t *testing.T) {
	logger := NewGologLogger(golog.New())

	assert.NotNil(t, logger)
	assert.Equal(t, LogLevelInfo, logger.GetLevel())
}

func TestGologLogger_LevelControl(t *testing.T) {
	logger := NewGologLogger(golog.New())

	logger.SetLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, logger.GetLevel())

	logger.SetLevel(LogLevelError)
	assert.Equal(t, LogLevelError, logger.GetLevel())

	logger.SetLevel(LogLevelNone)
	assert.Equal(t, LogLevelNone, logger.GetLevel())
}

func TestGologLogger_FormatsMessages(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelDebug)

	logger.Info("indexed %d chunks from %s", 42, "guide.pdf")

	assert.Contains(t, buf.String(), "indexed 42 chunks from guide.pdf")
}

func TestGologLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferedLogger(LogLevelError)

	logger.Debug("debug filtered")
	logger.Info("info filtered")
	logger.Warn("warn filtered")
	logger.Error("error kept")

	out := buf.String()
	assert.NotContains(t, out, "filtered")
	assert.Contains(t, out, "error kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"INFO", LogLevelInfo},
		{"", LogLevelInfo},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"disable", LogLevelNone},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDefaultLoggerHelpers(t *testing.T) {
	prev := GetDefaultLogger()
	defer SetDefaultLogger(prev)

	logger, buf := newBufferedLogger(LogLevelDebug)
	SetDefaultLogger(logger)

	Debug("d %d", 1)
	Info("i %d", 2)
	Warn("w %d", 3)
	Error("e %d", 4)

	out := buf.String()
	for _, s := range []string{"d 1", "i 2", "w 3", "e 4"} {
		assert.Contains(t, out, s)
	}

	SetDefaultLogger(nil)
	assert.IsType(t, &NoOpLogger{}, GetDefaultLogger())
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "UNKNOWN(9)", LogLevel(9).String())
}
