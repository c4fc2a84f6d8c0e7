package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/api"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/assistant"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/crosswalk"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/monitoring"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/timeutil"
)

var replayOpts struct {
	frames   string
	dbPath   string
	server   string
	session  string
	language string
	fps      float64
	realtime bool
	jsonOut  bool
	outputs  outputFlags
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run recorded detector frames through the decision engine",
	Long: `replay reads detector output as JSON lines, one frame per line, and
prints the verdict for each frame. Frames run through a local engine, or
through a running server with --server.

Frames without a timestamp are spaced 1/fps apart so alert cooldowns behave
as they would live.`,
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayOpts.frames, "frames", "-", "JSONL frame file, - for stdin")
	f.StringVar(&replayOpts.dbPath, "db", "", "record the session in this SQLite database (env CROSSWALK_DB)")
	f.StringVar(&replayOpts.server, "server", "", "send frames to a running server at this URL instead of a local engine")
	f.StringVar(&replayOpts.session, "session", "", "session ID (default random)")
	f.StringVar(&replayOpts.language, "language", "", "alert language code (default from config)")
	f.Float64Var(&replayOpts.fps, "fps", 10, "frame rate assumed for frames without timestamps")
	f.BoolVar(&replayOpts.realtime, "realtime", false, "pace frames at their recorded rate")
	f.BoolVar(&replayOpts.jsonOut, "json", false, "print full results as JSON lines")
	replayOpts.outputs.register(replayCmd)
	rootCmd.AddCommand(replayCmd)
}

// frameHandler is the local session or the remote client.
type frameHandler func(ctx context.Context, f crosswalk.Frame) (assistant.Result, error)

func runReplay(cmd *cobra.Command, args []string) error {
	if err := applyEnv(cmd, "db", "CROSSWALK_DB"); err != nil {
		return err
	}
	if err := replayOpts.outputs.applyEnv(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()

	in := io.Reader(os.Stdin)
	if replayOpts.frames != "-" {
		f, err := os.Open(replayOpts.frames)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	spec := assistant.SessionSpec{
		ID:       replayOpts.session,
		Language: crosswalk.Language(replayOpts.language),
		Source:   "replay:" + replayOpts.frames,
	}

	fc := newFrameClock(time.Now(), replayOpts.fps)
	var (
		handle frameHandler
		finish func(context.Context) error
		clock  *timeutil.MockClock
	)
	if replayOpts.server != "" {
		client := api.NewClient(replayOpts.server, nil)
		info, err := client.CreateSession(ctx, spec)
		if err != nil {
			return fmt.Errorf("create session on %s: %w", replayOpts.server, err)
		}
		log.Info().Str("session", info.ID).Str("server", replayOpts.server).Msg("replaying to server")
		handle = func(ctx context.Context, f crosswalk.Frame) (assistant.Result, error) {
			return client.PostFrame(ctx, info.ID, f)
		}
		finish = func(ctx context.Context) error { return client.CloseSession(ctx, info.ID) }
	} else {
		out, err := buildOutputs(ctx, cfg, replayOpts.outputs)
		if err != nil {
			return err
		}
		defer func() {
			if err := out.Close(); err != nil {
				log.Warn().Err(err).Msg("closing outputs")
			}
		}()

		clock = timeutil.NewMockClock(fc.last)
		rt := &assistant.Runtime{
			Config:          cfg.ToEngineConfig(),
			Narrator:        out.Narrator,
			NarratorTimeout: cfg.GetNarratorTimeout(),
			Sink:            out.Sink,
			Clock:           clock,
			Logger:          monitoring.Component("assistant"),
		}
		if replayOpts.dbPath != "" {
			store, err := db.NewDB(replayOpts.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			rt.Store = store
		}
		sess, err := rt.NewSession(ctx, spec)
		if err != nil {
			return err
		}
		log.Info().Str("session", sess.ID()).Str("language", string(sess.Language())).Msg("replaying locally")
		handle = sess.HandleFrame
		finish = sess.Close
	}

	w := cmd.OutOrStdout()
	var tally replayTally
	err := readFrames(in, func(f crosswalk.Frame) error {
		f, gap := fc.Stamp(f)
		if replayOpts.realtime && gap > 0 {
			select {
			case <-time.After(gap):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if clock != nil {
			clock.Set(f.Timestamp)
		}
		res, err := handle(ctx, f)
		if err != nil {
			return err
		}
		tally.add(res)
		return printResult(w, res, replayOpts.jsonOut)
	})
	if cerr := finish(context.WithoutCancel(ctx)); cerr != nil {
		log.Warn().Err(cerr).Msg("closing session")
	}
	if err != nil {
		return err
	}
	if !replayOpts.jsonOut {
		fmt.Fprintln(w, tally)
	}
	return nil
}

type replayTally struct {
	frames, safe, alerts, warnings int
}

func (t *replayTally) add(res assistant.Result) {
	t.frames++
	if res.Verdict.Safe() {
		t.safe++
	}
	if res.Alert != nil {
		t.alerts++
	}
	t.warnings += len(res.Warnings)
}

func (t replayTally) String() string {
	return fmt.Sprintf("%d frames: %d safe, %d unsafe, %d alerts, %d warnings",
		t.frames, t.safe, t.frames-t.safe, t.alerts, t.warnings)
}

func printResult(w io.Writer, res assistant.Result, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(res)
	}
	verdict := "UNSAFE"
	if res.Verdict.Safe() {
		verdict = "SAFE"
	}
	if _, err := fmt.Fprintf(w, "%6d  %-6s  %-12s  %s\n", res.Index, verdict, res.Verdict.Status, res.Message); err != nil {
		return err
	}
	if res.Alert != nil {
		fmt.Fprintf(w, "        alert [%s]: %s\n", res.Alert.Language, res.Alert.Text)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "        warning: %s\n", warn)
	}
	return nil
}
