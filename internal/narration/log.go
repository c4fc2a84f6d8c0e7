package narration

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
)

// LogNarrator writes alerts to a logger instead of speaking them.
type LogNarrator struct {
	log zerolog.Logger
}

// NewLogNarrator returns a narrator that logs through l.
func NewLogNarrator(l zerolog.Logger) *LogNarrator {
	return &LogNarrator{log: l}
}

func (n *LogNarrator) Speak(ctx context.Context, ev crosswalk.AlertEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info().
		Str("key", string(ev.Key)).
		Str("language", string(ev.Language)).
		Int64("frame", ev.FrameIdx).
		Msg(ev.Text)
	return nil
}
