package main

import (
	"fmt"
	"os"

	"github.com/flaboy/aira-checkout/pkg/database"
	"github.com/flaboy/aira-checkout/pkg/hashid"
	"github.com/flaboy/aira-checkout/pkg/importer"
	"github.com/flaboy/aira-checkout/pkg/report"
	"github.com/spf13/cobra"
)

func runJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-job [name]",
		Short: "Run one job once (abandoned-recovery, payment-release)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := startApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Scheduler.RunOnce(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s finished\n", args[0])
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := startApp()
			if err != nil {
				return err
			}
			defer app.Close()
			return database.AutoMigrate(app.DB)
		},
	}
}

func exportLedgerCmd() *cobra.Command {
	var (
		user string
		out  string
	)
	cmd := &cobra.Command{
		Use:   "export-ledger",
		Short: "Write a user's balance transactions to an xlsx file",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := startApp()
			if err != nil {
				return err
			}
			defer app.Close()

			// 盐值在启动后才生效
			userID, err := hashid.Decode(hashid.TypeUser, user)
			if err != nil {
				return err
			}

			txs, err := app.Ledger.List(cmd.Context(), userID, 0)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := report.ExportLedger(f, txs); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d transactions to %s\n", len(txs), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "public user id (us-...)")
	cmd.Flags().StringVarP(&out, "out", "o", "statement.xlsx", "output file")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func importProductsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-products [file]",
		Short: "Create or update products from an xlsx or csv sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := importer.DetectFileType(args[0])
			if err != nil {
				return err
			}
			fd, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fd.Close()

			app, err := startApp()
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := importer.ImportProducts(cmd.Context(), app.DB, fd, ft)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range res.Created {
				fmt.Fprintf(out, "created %s\n", id)
			}
			for _, id := range res.Updated {
				fmt.Fprintf(out, "updated %s\n", id)
			}
			for _, f := range res.Failed {
				fmt.Fprintf(out, "line %d: %s\n", f.Line, f.Error)
			}
			fmt.Fprintf(out, "%d created, %d updated, %d failed\n", len(res.Created), len(res.Updated), len(res.Failed))
			return nil
		},
	}
}
