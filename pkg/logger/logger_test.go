package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFormattedLines(t *testing.T) {
	var buf bytes.Buffer
	log := New("apphost", "test")
	log.SetOutput(&buf)

	log.Info("starting %s", "gauss")
	log.Warnf("port %d busy", 5432)

	out := buf.String()
	assert.Contains(t, out, "ℹ INFO")
	assert.Contains(t, out, "starting gauss")
	assert.Contains(t, out, "⚠ WARN")
	assert.Contains(t, out, "port 5432 busy")
	assert.NotContains(t, out, ColorReset)
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New("apphost", "test")
	log.SetOutput(&buf)

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	log.SetLevel("debug")
	log.Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	log.SetLevel("bogus")
	log.Debug("still shown")
	assert.Contains(t, buf.String(), "still shown")
}

func TestNamedLoggerSharesSink(t *testing.T) {
	var buf bytes.Buffer
	parent := New("apphost", "test")
	parent.SetOutput(&buf)
	child := parent.Named("gauss")

	assert.Equal(t, "apphost[gauss]", child.ServiceName())

	child.Error("boom")
	assert.Contains(t, buf.String(), "apphost[gauss]")
	assert.Contains(t, buf.String(), "✗ ERROR")
}

func TestSubscribeReceivesEntries(t *testing.T) {
	log := New("apphost", "test")
	log.DisableConsoleOutput()
	ch := log.Subscribe()

	log.WithFields(map[string]string{"resource": "mongo", "state": "Running"}).Info("state changed")

	select {
	case entry := <-ch:
		assert.Equal(t, "INFO", entry.Level)
		assert.Equal(t, "state changed", entry.Message)
		assert.Equal(t, "mongo", entry.Fields["resource"])
	case <-time.After(time.Second):
		t.Fatal("no log entry received")
	}
}

func TestFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	log := New("apphost", "test")
	log.SetOutput(&buf)

	log.WithFields(map[string]string{"b": "2", "a": "1"}).Warn("fields")
	line := buf.String()
	require.True(t, strings.Contains(line, "a=1 b=2"), line)
}

func TestFormatServiceNameTruncates(t *testing.T) {
	name := formatServiceName(strings.Repeat("x", ServiceNameWidth+5))
	assert.Equal(t, ServiceNameWidth, len([]rune(name)))
	assert.True(t, strings.HasSuffix(name, "…"))

	assert.Equal(t, ServiceNameWidth, len(formatServiceName("short")))
}
