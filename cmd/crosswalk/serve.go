package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/api"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/assistant"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/monitoring"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/version"
)

var serveOpts struct {
	listen     string
	grpcListen string
	dbPath     string
	outputs    outputFlags
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve crossing decisions over HTTP",
	Long: `serve accepts detector frames over HTTP, answers each with a crossing
decision and speaks alerts through the configured narrator. Sessions,
verdicts and alerts are recorded in SQLite.

Admin routes under /debug/ (tailsql console, database backup, speech module
commands) are reachable from loopback only.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.listen, "listen", ":8080", "HTTP listen address (env CROSSWALK_LISTEN)")
	f.StringVar(&serveOpts.grpcListen, "grpc-listen", "", "gRPC health service listen address; empty disables it")
	f.StringVar(&serveOpts.dbPath, "db", "crosswalk.db", "SQLite database path (env CROSSWALK_DB)")
	serveOpts.outputs.register(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	for flag, key := range map[string]string{"listen": "CROSSWALK_LISTEN", "db": "CROSSWALK_DB"} {
		if err := applyEnv(cmd, flag, key); err != nil {
			return err
		}
	}
	if err := serveOpts.outputs.applyEnv(cmd); err != nil {
		return err
	}
	ctx := cmd.Context()
	log.Info().Str("version", version.Get().String()).Msg("starting crosswalk server")

	store, err := db.NewDB(serveOpts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out, err := buildOutputs(ctx, cfg, serveOpts.outputs)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Warn().Err(err).Msg("closing outputs")
		}
	}()

	apiLog := monitoring.Component("api")
	registry := assistant.NewRegistry(&assistant.Runtime{
		Config:          cfg.ToEngineConfig(),
		Narrator:        out.Narrator,
		NarratorTimeout: cfg.GetNarratorTimeout(),
		Store:           store,
		Sink:            out.Sink,
		Logger:          monitoring.Component("assistant"),
	})
	handler, err := api.NewServer(registry, api.Options{
		History:   store,
		DB:        store,
		Speech:    out.Speech,
		Threshold: cfg.GetMovementThreshold(),
		Logger:    &apiLog,
	}).Handler()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	if serveOpts.grpcListen != "" {
		lis, err := net.Listen("tcp", serveOpts.grpcListen)
		if err != nil {
			return err
		}
		health := api.NewHealthServer(monitoring.Component("grpc"))
		health.SetServing(true)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := health.Serve(lis); err != nil {
				log.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			health.SetServing(false)
			health.Stop()
			log.Info().Msg("gRPC health server stopped")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              serveOpts.listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Info().Str("addr", serveOpts.listen).Msg("HTTP server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("failed to start server")
			}
		}()

		<-ctx.Done()
		log.Info().Msg("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		if err := registry.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("closing sessions")
		}
		log.Info().Msg("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Info().Msg("graceful shutdown complete")
	return nil
}
