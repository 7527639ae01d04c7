package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scholarbridge/internal/config"
	"scholarbridge/internal/pkg/logger"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "scholarbridge",
		Short:         "Folder provisioning and profile documents for the scholarship table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default $CONFIG_FILE or configs/config.toml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}
