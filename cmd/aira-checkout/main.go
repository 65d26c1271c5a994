package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/flaboy/aira-checkout/pkg/commence"
	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/spf13/cobra"
)

var Version = "dev"

var (
	envPrefix string
	debug     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "aira-checkout",
		Short:   "Checkout back-end: abandoned carts, recovery emails, payment release and webhooks",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", config.DefaultPrefix, "prefix of configuration environment variables")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(runJobCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportLedgerCmd())
	rootCmd.AddCommand(importProductsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startApp() (*commence.App, error) {
	cfg, err := config.Load(envPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return commence.Start(cfg)
}
