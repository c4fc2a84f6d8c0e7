package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/db"
)

var migrateDBPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return applyEnv(cmd, "db", "CROSSWALK_DB")
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrateDBPath, "db", "crosswalk.db", "SQLite database path (env CROSSWALK_DB)")

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrateDB(func(cmd *cobra.Command, d *db.DB, _ []string) error {
				return d.MigrateUp()
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withMigrateDB(func(cmd *cobra.Command, d *db.DB, _ []string) error {
				return d.MigrateDown()
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrateDB(func(cmd *cobra.Command, d *db.DB, _ []string) error {
				v, dirty, err := d.MigrateVersion()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrateDB(func(cmd *cobra.Command, d *db.DB, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return d.MigrateForce(v)
			}),
		},
		&cobra.Command{
			Use:   "to VERSION",
			Short: "Migrate up or down to a version",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrateDB(func(cmd *cobra.Command, d *db.DB, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return d.MigrateTo(uint(v))
			}),
		},
	)
	rootCmd.AddCommand(migrateCmd)
}

// withMigrateDB opens the database without migrating it and closes it
// after fn.
func withMigrateDB(fn func(*cobra.Command, *db.DB, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, err := db.OpenDB(migrateDBPath)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := fn(cmd, d, args); err != nil {
			return err
		}
		log.Info().Str("db", migrateDBPath).Str("command", cmd.Name()).Msg("migrate done")
		return nil
	}
}
