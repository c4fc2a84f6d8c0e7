package narration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
)

// Placeholders substituted in CommandNarrator arguments.
const (
	ArgText     = "{text}"
	ArgLanguage = "{lang}"
)

// DefaultCommandArgs suit espeak-ng.
var DefaultCommandArgs = []string{"-v", ArgLanguage, ArgText}

// CommandNarrator speaks by running an external text-to-speech program once
// per alert. The process is killed when the context is done.
type CommandNarrator struct {
	Program string
	Args    []string
}

// NewCommandNarrator returns a narrator for program with DefaultCommandArgs.
func NewCommandNarrator(program string) *CommandNarrator {
	return &CommandNarrator{Program: program, Args: DefaultCommandArgs}
}

func (n *CommandNarrator) args(ev crosswalk.AlertEvent) []string {
	lang := ev.Speech
	if lang == "" {
		lang = crosswalk.SpeechLanguage(ev.Language)
	}
	out := make([]string, len(n.Args))
	for i, a := range n.Args {
		a = strings.ReplaceAll(a, ArgLanguage, lang)
		out[i] = strings.ReplaceAll(a, ArgText, ev.Text)
	}
	return out
}

func (n *CommandNarrator) Speak(ctx context.Context, ev crosswalk.AlertEvent) error {
	cmd := exec.CommandContext(ctx, n.Program, n.args(ev)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", n.Program, err, strings.TrimSpace(string(out)))
	}
	return nil
}
