package narration

import (
	"bytes"
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/serialmux"
)

func TestLogNarrator(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNarrator(zerolog.New(&buf))

	ev := crosswalk.AlertEvent{Key: crosswalk.StatusClear, Text: "The path is clear.", Language: crosswalk.LangEnglish, FrameIdx: 4}
	require.NoError(t, n.Speak(context.Background(), ev))
	assert.Contains(t, buf.String(), `"message":"The path is clear."`)
	assert.Contains(t, buf.String(), `"frame":4`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Speak(ctx, ev), context.Canceled)
}

func TestCommandNarrator_Args(t *testing.T) {
	n := NewCommandNarrator("espeak-ng")
	got := n.args(crosswalk.AlertEvent{Text: "ಈಗ ದಾಟಬೇಡಿ", Language: crosswalk.LangTulu})
	assert.Equal(t, []string{"-v", "kn", "ಈಗ ದಾಟಬೇಡಿ"}, got)
}

func TestCommandNarrator_Run(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ok := &CommandNarrator{Program: "sh", Args: []string{"-c", "test -n \"$0\"", ArgText}}
	assert.NoError(t, ok.Speak(context.Background(), crosswalk.AlertEvent{Text: "hello"}))

	fail := &CommandNarrator{Program: "sh", Args: []string{"-c", "echo no voice >&2; exit 3"}}
	err := fail.Speak(context.Background(), crosswalk.AlertEvent{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no voice")

	slow := &CommandNarrator{Program: "sh", Args: []string{"-c", "sleep 5"}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, slow.Speak(ctx, crosswalk.AlertEvent{}), context.DeadlineExceeded)
}

func startEmulatedModule(t *testing.T) (*serialmux.SpeechEmulator, *serialmux.SerialMux[*serialmux.SpeechEmulator]) {
	t.Helper()
	emu := serialmux.NewSpeechEmulator()
	mux := serialmux.NewSerialMux(emu)
	ctx, cancel := context.WithCancel(context.Background())
	go mux.Monitor(ctx)
	t.Cleanup(func() {
		cancel()
		mux.Close()
	})
	return emu, mux
}

func TestDeviceNarrator_SpeaksAndWaitsForPrompt(t *testing.T) {
	emu, mux := startEmulatedModule(t)
	emu.SetSpeakDelay(20 * time.Millisecond)
	n := NewDeviceNarrator(mux)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev := crosswalk.AlertEvent{Text: "Warning! Vehicles are moving.\nDo not cross.", Language: crosswalk.LangEnglish}
	require.NoError(t, n.Speak(ctx, ev))
	assert.Equal(t, []string{"Warning! Vehicles are moving. Do not cross."}, emu.Spoken())
}

func TestDeviceNarrator_UnsupportedLanguage(t *testing.T) {
	_, mux := startEmulatedModule(t)
	n := NewDeviceNarrator(mux, crosswalk.LangEnglish)

	err := n.Speak(context.Background(), crosswalk.AlertEvent{Text: "x", Language: crosswalk.LangHindi})
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestDeviceNarrator_HungModule(t *testing.T) {
	emu, mux := startEmulatedModule(t)
	emu.SetHang(true)
	n := NewDeviceNarrator(mux)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := n.Speak(ctx, crosswalk.AlertEvent{Text: "hello", Language: crosswalk.LangEnglish})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Eventually(t, func() bool {
		cmds := emu.Commands()
		return len(cmds) > 0 && cmds[len(cmds)-1] == "X"
	}, time.Second, 5*time.Millisecond)
}
