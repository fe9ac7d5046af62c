package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFormatJSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat(&buf, "peephost", "json", slog.LevelInfo)
	log.Info("created", "project", "site-a")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "peephost", entry["service"])
	assert.Equal(t, "site-a", entry["project"])
}

func TestNewWithFormatTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat(&buf, "cli", "text", slog.LevelWarn)
	log.Info("hidden")
	assert.Empty(t, buf.String())
	log.Warn("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
