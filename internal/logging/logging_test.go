package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildTextFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, closeFn, err := New().SetOutput(&buf).SetLevel("warn").Build()
	require.NoError(t, err)
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("shown", "pool", "ingest")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "pool=ingest")
}

func TestBuildJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, _, err := New().SetOutput(&buf).SetFormat("JSON").Build()
	require.NoError(t, err)

	logger.Info("worker pool started", "workers", 4)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "worker pool started", rec["msg"])
	assert.Equal(t, float64(4), rec["workers"])
}

func TestLevelVarAdjustsAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	logger, level, _, err := New().SetOutput(&buf).Build()
	require.NoError(t, err)

	logger.Debug("before")
	level.Set(slog.LevelDebug)
	logger.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}

func TestBuildReportsFirstError(t *testing.T) {
	_, _, _, err := New().SetLevel("loud").SetFormat("xml").Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown level")

	_, _, _, err = New().SetFormat("xml").Build()
	assert.ErrorContains(t, err, "unknown format")

	_, _, _, err = New().SetRotation("x.log", Rotation{}).Build()
	assert.ErrorContains(t, err, "max size")
}

func TestRotationWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolctl.log")
	logger, _, closeFn, err := New().
		SetFormat("json").
		SetRotation(path, Rotation{MaxSizeMB: 1, MaxBackups: 1}).
		Build()
	require.NoError(t, err)

	logger.Info("rotated", "n", 1)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"rotated"`))
}

func TestEmptyRotationKeepsOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, _, _, err := New().SetOutput(&buf).SetRotation("", Rotation{}).Build()
	require.NoError(t, err)
	logger.Info("kept")
	assert.Contains(t, buf.String(), "kept")
}
