package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	log.Debug("hidden")
	log.Warn("slow backend", "latency", "2 s")
	log.Error("broken")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, colorYellow+"WARN  slow backend"+colorReset)
	assert.Contains(t, out, `latency="2 s"`)
	assert.Contains(t, out, colorRed+"ERROR broken"+colorReset)
}

func TestColorHandlerGreenMarkers(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorHandler(&buf, nil))
	log.Info("Processed 3 samples")
	assert.Contains(t, buf.String(), colorGreen)
}

func TestColorHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewColorHandler(&buf, nil)).With("run", "r1").WithGroup("driver")
	log.Info("query", "op", "one_hop")
	assert.Contains(t, buf.String(), " run=r1")
	assert.Contains(t, buf.String(), " driver.op=one_hop")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
