package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "info", Format: "json", Writer: &buf}))

	Debug().Msg("hidden")
	Info().Str("file", "a.spoor").Msg("loaded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "loaded", entry["message"])
	assert.Equal(t, "a.spoor", entry["file"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestInitDebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "error", Debug: true, Format: "json", Writer: &buf}))
	assert.Equal(t, zerolog.DebugLevel, WithComponent("x").GetLevel())
}

func TestInitConsole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "warn", Writer: &buf}))
	Warn().Msg("careful")
	assert.Contains(t, buf.String(), "careful")
	assert.Contains(t, buf.String(), "WRN")
}

func TestInitErrors(t *testing.T) {
	assert.Error(t, Init(Config{Level: "loud"}))
	assert.Error(t, Init(Config{Output: "syslog"}))
	assert.Error(t, Init(Config{Format: "xml", Writer: &bytes.Buffer{}}))
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "info", Format: "json", Writer: &buf}))
	l := WithComponent("merge")
	l.Info().Msg("x")
	assert.Contains(t, buf.String(), `"component":"merge"`)
}

func TestDefaultConfigEnv(t *testing.T) {
	t.Setenv("SPOOR_LOG_LEVEL", "debug")
	t.Setenv("SPOOR_DEBUG", "yes")
	t.Setenv("SPOOR_LOG_OUTPUT", "")
	cfg := DefaultConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "stderr", cfg.Output)
}
