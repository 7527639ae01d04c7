package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scholarbridge/internal/bootstrap"
)

func reconcileCmd() *cobra.Command {
	var (
		limit    int
		recordID string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Retry records whose folder was created but never linked",
		Long: `Retry pending reconciliation entries.

Examples:
  scholarbridge reconcile --limit 20
  scholarbridge reconcile --record 412`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if recordID != "" {
				outcome, err := app.Reconcile.Retry(ctx, recordID)
				if err != nil {
					return err
				}
				return enc.Encode(outcome)
			}
			summary, err := app.Reconcile.RetryPending(ctx, limit)
			if err != nil {
				return err
			}
			return enc.Encode(summary)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum pending entries to retry")
	cmd.Flags().StringVar(&recordID, "record", "", "retry a single record id")
	return cmd
}
