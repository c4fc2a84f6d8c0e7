// Package narration turns alert events into speech off the frame loop.
//
// A Narrator renders one alert. The Dispatcher runs narrators on a single
// worker goroutine with a per-alert deadline so that a stuck speech engine
// can delay at most one alert and never the decision loop.
package narration

import (
	"context"
	"errors"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
)

var (
	// ErrBusy is returned by Submit while an alert is being spoken.
	ErrBusy = errors.New("narrator busy")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrTimeout wraps narrations that did not finish within the deadline.
	ErrTimeout = errors.New("narration timed out")
	// ErrUnsupportedLanguage is returned by narrators that cannot voice the
	// alert's language.
	ErrUnsupportedLanguage = errors.New("language not supported by narrator")
)

// Narrator speaks one alert. Implementations must return when ctx is done.
type Narrator interface {
	Speak(ctx context.Context, ev crosswalk.AlertEvent) error
}

// NarratorFunc adapts a function to Narrator.
type NarratorFunc func(ctx context.Context, ev crosswalk.AlertEvent) error

func (f NarratorFunc) Speak(ctx context.Context, ev crosswalk.AlertEvent) error {
	return f(ctx, ev)
}
