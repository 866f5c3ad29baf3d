package debug

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := logger
	logger = log.New(&buf, "", 0)
	t.Cleanup(func() { logger = orig })
	return &buf
}

func TestLog_DisabledProducesNothing(t *testing.T) {
	buf := captureOutput(t)
	t.Setenv("DEBUG", "false")
	Reinitialize()

	Error("should not appear")
	assert.Empty(t, buf.String())
}

func TestLog_LevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	t.Setenv("DEBUG", "true")
	t.Setenv("LOG_LEVEL", "WARNING")
	Reinitialize()

	Debug("too quiet")
	Info("still too quiet")
	Warning("loud enough")
	Error("definitely")

	out := buf.String()
	assert.NotContains(t, out, "too quiet")
	assert.Contains(t, out, "loud enough")
	assert.Contains(t, out, "[WARNING]")
	assert.Contains(t, out, "[ERROR]")
}

func TestLog_IncludesCallSite(t *testing.T) {
	buf := captureOutput(t)
	t.Setenv("DEBUG", "1")
	t.Setenv("LOG_LEVEL", "DEBUG")
	Reinitialize()

	Info("formatted %d", 42)

	out := buf.String()
	assert.Contains(t, out, "formatted 42")
	assert.Contains(t, out, "debug_test.go")
}

func TestReinitialize_UnknownLevelDefaultsToInfo(t *testing.T) {
	t.Setenv("DEBUG", "true")
	t.Setenv("LOG_LEVEL", "CHATTY")
	Reinitialize()
	assert.Equal(t, LevelInfo, CurrentLevel)
}
