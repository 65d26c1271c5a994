package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/flaboy/aira-checkout/pkg/config"
	"github.com/flaboy/aira-checkout/pkg/database"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		addr        string
		noScheduler bool
		migrate     bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, and the job scheduler unless disabled",
		Long: `Start the HTTP API.

Examples:
  aira-checkout serve
  aira-checkout serve --addr :9000 --no-scheduler
  aira-checkout serve --migrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := startApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if migrate {
				if err := database.AutoMigrate(app.DB); err != nil {
					return err
				}
			}
			if addr == "" {
				addr = config.Config.HTTPAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			if !noScheduler {
				wg.Add(1)
				go func() {
					defer wg.Done()
					app.Scheduler.Start(ctx)
				}()
			}

			err = app.Server().Run(ctx, addr)
			stop()
			wg.Wait()
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from AIRA_HTTP_ADDR)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run periodic jobs in this process")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "auto-migrate the schema before serving")

	return cmd
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run periodic jobs without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := startApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app.Scheduler.Start(ctx)
			return nil
		},
	}
}
