package main

import (
	"fmt"
	"log/slog"
	"os"

	"axiapac.com/workforce/config"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "workforce",
	Short: "Multi-tenant workforce attendance backend",
	Long:  `Serves the attendance API and runs the consistency audit, historical imports and maintenance tasks.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		config.InitLogger(cfg.LogLevel)
		slog.Debug("configuration loaded", "command", cmd.Name())
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
