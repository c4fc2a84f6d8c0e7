package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/config"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/monitoring"
)

var (
	configPath string
	logLevel   string
	logPretty  bool

	// cfg is loaded before any subcommand runs.
	cfg *config.CrosswalkConfig
)

var rootCmd = &cobra.Command{
	Use:   "crosswalk",
	Short: "Crosswalk safety decisions for visually impaired pedestrians",
	Long: `crosswalk turns per-frame object detections into a safe or unsafe
crossing decision and speaks an alert in the pedestrian's language.

Settings come from a JSON config file. Flags marked with an environment
variable also read it, and from a .env file in the working directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := applyEnv(cmd, "log-level", "CROSSWALK_LOG_LEVEL"); err != nil {
			return err
		}
		if err := monitoring.Init(monitoring.Options{Level: logLevel, Pretty: logPretty}); err != nil {
			return err
		}
		loaded, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "path to the JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error (env CROSSWALK_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human-readable console logs instead of JSON")
}

// loadConfig reads path. A missing file at the default location falls back
// to the built-in defaults; any other missing file is an error.
func loadConfig(path string) (*config.CrosswalkConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && path == config.DefaultConfigPath {
		log.Debug().Str("path", path).Msg("config file not found, using built-in defaults")
		return config.DefaultCrosswalkConfig(), nil
	}
	return config.LoadCrosswalkConfig(path)
}

// applyEnv sets flag name from the environment variable key unless the flag
// was given on the command line.
func applyEnv(cmd *cobra.Command, name, key string) error {
	f := cmd.Flags().Lookup(name)
	if f == nil || f.Changed {
		return nil
	}
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	return cmd.Flags().Set(name, v)
}
