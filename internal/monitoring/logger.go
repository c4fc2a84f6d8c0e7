// Package monitoring owns process-wide diagnostic logging.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logf is the package-level diagnostic logger used by code that only needs
// printf-style output. It writes info events to the global zerolog logger
// and may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = zerologf

func zerologf(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Options configure Init.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Pretty selects the human-readable console writer instead of JSON.
	Pretty bool
	// Out defaults to stderr.
	Out io.Writer
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
}

// Init configures the global zerolog logger and resets Logf to write
// through it.
func Init(opts Options) error {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	Logf = zerologf
	return nil
}

// Component returns a child of the global logger tagged with a component
// name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
