package monitoring

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	origLogf := Logf
	origLogger := log.Logger
	origLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		Logf = origLogf
		log.Logger = origLogger
		zerolog.SetGlobalLevel(origLevel)
	})
}

func TestSetLogger(t *testing.T) {
	restoreGlobals(t)

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	assert.True(t, called)

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called)
}

func TestInit_WritesJSONThroughLogf(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "debug", Out: &buf}))

	Logf("frame %d decided", 7)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "frame 7 decided", rec["message"])
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestInit_LevelFilters(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "warn", Out: &buf}))

	Component("narration").Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	Component("narration").Warn().Msg("kept")
	assert.Contains(t, buf.String(), `"component":"narration"`)
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	restoreGlobals(t)

	assert.Error(t, Init(Options{Level: "chatty"}))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
