package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/config"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/events"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/narration"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/serialmux"
)

func TestBuildOutputs_Log(t *testing.T) {
	out, err := buildOutputs(context.Background(), config.DefaultCrosswalkConfig(), outputFlags{})
	require.NoError(t, err)
	defer out.Close()

	assert.IsType(t, &narration.LogNarrator{}, out.Narrator)
	assert.Nil(t, out.Speech)
	assert.Equal(t, events.NopSink{}, out.Sink)
}

func TestBuildOutputs_Command(t *testing.T) {
	out, err := buildOutputs(context.Background(), config.DefaultCrosswalkConfig(), outputFlags{narrator: config.NarratorCommand})
	require.NoError(t, err)
	defer out.Close()
	assert.IsType(t, &narration.CommandNarrator{}, out.Narrator)
}

func TestBuildOutputs_DeviceEmulator(t *testing.T) {
	cfg, err := config.ParseCrosswalkConfig([]byte(`{"narrator":"device","serial_port":"emulator","device_languages":["en","ta"]}`))
	require.NoError(t, err)

	out, err := buildOutputs(context.Background(), cfg, outputFlags{})
	require.NoError(t, err)
	require.NotNil(t, out.Speech)
	require.IsType(t, &narration.DeviceNarrator{}, out.Narrator)

	ev := crosswalk.AlertEvent{Key: crosswalk.StatusClear, Text: "The path is clear.", Language: crosswalk.LangEnglish}
	require.NoError(t, out.Narrator.Speak(context.Background(), ev))

	ev.Language = crosswalk.LangHindi
	assert.ErrorIs(t, out.Narrator.Speak(context.Background(), ev), narration.ErrUnsupportedLanguage)

	assert.NoError(t, out.Close())
}

func TestBuildOutputs_SerialPortFlagOverridesConfig(t *testing.T) {
	out, err := buildOutputs(context.Background(), config.DefaultCrosswalkConfig(), outputFlags{
		narrator:   config.NarratorDevice,
		serialPort: serialmux.EmulatorPath,
	})
	require.NoError(t, err)
	assert.NotNil(t, out.Speech)
	assert.NoError(t, out.Close())
}

func TestBuildOutputs_UnknownNarrator(t *testing.T) {
	_, err := buildOutputs(context.Background(), config.DefaultCrosswalkConfig(), outputFlags{narrator: "pigeon"})
	assert.EqualError(t, err, `unknown narrator "pigeon"`)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitList(" a:9092, ,b:9092,"))
	assert.Nil(t, splitList(""))
}
