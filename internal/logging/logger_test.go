package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("test", &buf, WARN)

	logger.Debug("скрыто %d", 1)
	logger.Warn("видно %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[WARN][test] видно 2")
}

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel("debug")
	assert.True(t, ok)
	assert.Equal(t, DEBUG, lvl)

	_, ok = ParseLevel("loud")
	assert.False(t, ok)
}

func TestManagerReturnsSameLogger(t *testing.T) {
	a := GetComponentLogger("unit")
	b := GetComponentLogger("unit")
	assert.Same(t, a, b)
}

func TestDefaultLevelReachesComponentLoggers(t *testing.T) {
	prev := defaultLogger.minConsoleLevel
	defer SetDefaultLevel(prev)

	early := GetComponentLogger("early")
	SetDefaultLevel(WARN)
	assert.Equal(t, WARN, early.minConsoleLevel, "логгер, созданный до конфигурации")
	assert.Equal(t, WARN, GetComponentLogger("late").minConsoleLevel)
}
