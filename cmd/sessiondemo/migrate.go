package main

import (
	"fmt"

	"github.com/fyerfyer/fyer-session/internal/config"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the session table for the mysql or postgres backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Backend != config.BackendMySQL && cfg.Backend != config.BackendPostgres {
			return session.ErrInvalidConfig("migrate: backend %q has no schema", cfg.Backend)
		}
		store, err := config.OpenSQL(cmd.Context(), cfg, log, true)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "table %s is ready\n", cfg.SQL.Table)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
