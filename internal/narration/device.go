package narration

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/serialmux"
)

// DeviceNarrator speaks through a serial text-to-speech module. Speak sends
// an S command and returns when the module prompts for the next command.
// The mux's Monitor loop must be running.
type DeviceNarrator struct {
	mux       serialmux.SerialMuxInterface
	languages map[crosswalk.Language]bool
	mu        sync.Mutex
}

// NewDeviceNarrator returns a narrator for the languages the module can
// voice. With no languages it assumes English only.
func NewDeviceNarrator(mux serialmux.SerialMuxInterface, languages ...crosswalk.Language) *DeviceNarrator {
	if len(languages) == 0 {
		languages = []crosswalk.Language{crosswalk.LangEnglish}
	}
	set := make(map[crosswalk.Language]bool, len(languages))
	for _, l := range languages {
		set[l] = true
	}
	return &DeviceNarrator{mux: mux, languages: set}
}

// speakCommand flattens text onto one line; the module treats a newline
// as the end of the command.
func speakCommand(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return "S" + text
}

func (n *DeviceNarrator) Speak(ctx context.Context, ev crosswalk.AlertEvent) error {
	if !n.languages[ev.Language] {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, ev.Language)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	id, tokens := n.mux.Subscribe()
	defer n.mux.Unsubscribe(id)

	if err := n.mux.SendCommand(speakCommand(ev.Text)); err != nil {
		return fmt.Errorf("send to speech module: %w", err)
	}

	for {
		select {
		case tok, ok := <-tokens:
			if !ok {
				return fmt.Errorf("speech module closed")
			}
			if tok == serialmux.Prompt {
				return nil
			}
		case <-ctx.Done():
			// Cut the module off so the next alert is not queued behind this one.
			_ = n.mux.SendCommand("X")
			return ctx.Err()
		}
	}
}
