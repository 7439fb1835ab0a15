package main

import (
	"fmt"
	"os"

	"github.com/fyerfyer/fyer-session/internal/config"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sessiondemo",
	Short: "Session store demo server",
	Long: `sessiondemo serves a session-backed counter and provides maintenance commands
for the configured session backend. Configuration is read from SESSION_* environment variables.`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env-file", []string{".env"}, "dotenv files to load before reading the environment")
}

// loadConfig 读取配置并初始化默认日志
func loadConfig(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	files, _ := cmd.Flags().GetStringSlice("env-file")
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.WithLevel(cfg.Level()))
	logger.SetDefaultLogger(log)
	return cfg, log, nil
}
