package main

import (
	"fmt"

	"github.com/fyerfyer/fyer-session/internal/config"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired sessions once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := config.OpenStore(cmd.Context(), cfg, config.StoreOptions{Logger: log})
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := session.NewSweeper(store, session.WithSweeperLogger(log)).SweepOnce(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("sweep finished", logger.String("backend", cfg.Backend), logger.Int("removed", n))
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired sessions\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
