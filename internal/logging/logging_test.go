package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Level(0))
	assert.Equal(t, slog.LevelDebug, Level(1))
	assert.Equal(t, slog.LevelDebug, Level(3))
}

func TestSetup_ConsoleOnly(t *testing.T) {
	restoreDefault(t)
	var console bytes.Buffer

	closeFn, err := Setup(&console, 0, nil)
	require.NoError(t, err)
	defer closeFn()

	For("capture").Debug("hidden")
	For("capture").Info("Capture started", "device", "Null Input")

	out := console.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "component=capture")
	assert.Contains(t, out, "Capture started")
}

func TestSetup_FileLog(t *testing.T) {
	restoreDefault(t)
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "voicerec.log")

	closeFn, err := Setup(&console, 1, &FileOptions{Path: path})
	require.NoError(t, err)

	For("service").Debug("State changed", "to", "RECORDING")
	require.NoError(t, closeFn())

	assert.Contains(t, console.String(), "State changed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "State changed", entry["msg"])
	assert.Equal(t, "service", entry["component"])
	assert.Equal(t, "RECORDING", entry["to"])
}
