package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsoleLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg, err := build(Config{Level: "warn", Output: "console", Format: "json"}, &buf)
	require.NoError(t, err)

	lg.Info("hidden")
	lg.Warn("shown", zap.String("fund", "main"))
	require.NoError(t, lg.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"fund":"main"`)
}

func TestBadLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg, err := build(Config{Level: "loud", Format: "json"}, &buf)
	require.NoError(t, err)
	lg.Debug("debug")
	lg.Info("info")
	_ = lg.Sync()

	assert.NotContains(t, buf.String(), `"msg":"debug"`)
	assert.Contains(t, buf.String(), `"msg":"info"`)
}

func TestFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "fund.log")
	cfg := Default()
	cfg.Output = "file"
	cfg.File = path

	var console bytes.Buffer
	lg, err := build(cfg, &console)
	require.NoError(t, err)
	lg.Info("to disk")
	_ = lg.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to disk")
	assert.Empty(t, console.String())
}
