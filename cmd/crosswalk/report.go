package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/report"
)

var reportOpts struct {
	dbPath  string
	session string
	out     string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a recorded session as a PNG timeline",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportOpts.dbPath, "db", "crosswalk.db", "SQLite database path (env CROSSWALK_DB)")
	f.StringVar(&reportOpts.session, "session", "", "session ID")
	f.StringVar(&reportOpts.out, "out", "", "output PNG path (default crosswalk_<session>.png)")
	_ = reportCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	if err := applyEnv(cmd, "db", "CROSSWALK_DB"); err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := db.NewDB(reportOpts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := store.GetSession(ctx, reportOpts.session)
	if err != nil {
		return fmt.Errorf("session %s: %w", reportOpts.session, err)
	}
	frames, err := store.FrameVerdicts(ctx, sess.ID, 0)
	if err != nil {
		return err
	}
	alerts, err := store.Alerts(ctx, sess.ID)
	if err != nil {
		return err
	}

	out := reportOpts.out
	if out == "" {
		out = report.DefaultFilename(sess.ID)
	}
	opts := report.Options{
		Title:     fmt.Sprintf("Session %s (%s)", sess.ID, sess.Language),
		Threshold: cfg.GetMovementThreshold(),
	}
	if err := report.SavePNG(out, frames, alerts, opts); err != nil {
		return err
	}
	log.Info().Str("session", sess.ID).Str("out", out).Int("frames", len(frames)).Int("alerts", len(alerts)).Msg("report written")

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report.Summarize(frames))
}
