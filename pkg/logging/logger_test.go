package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Output: &buf})

	logger.Debug("hidden")
	logger.Info("policy evaluation complete", "matched", 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "policy evaluation complete", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 1, entry["matched"])
}

func TestNewLoggerPretty(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Pretty: true, Output: &buf})

	logger.Warn("assessment fell back", "rule", "PROD_DEPLOY")

	out := buf.String()
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "assessment fell back")
	assert.Contains(t, out, "rule=")
	assert.Contains(t, out, "PROD_DEPLOY")
	assert.NotContains(t, out, `"msg"`)
}
