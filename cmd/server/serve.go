package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scholarbridge/internal/bootstrap"
	httptransport "scholarbridge/internal/transport/http"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and document HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, cfg, bootstrap.Options{StartWorker: true})
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					slog.Error("close resources failed", "error", err)
				}
			}()

			server := &http.Server{
				Addr:              cfg.HTTPAddr(),
				Handler:           httptransport.NewRouter(app),
				ReadHeaderTimeout: 5 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				slog.Info("server starting", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				return err
			case <-ctx.Done():
			}
			return shutdown(server)
		},
	}
}

func shutdown(server *http.Server) error {
	slog.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
		return err
	}
	return nil
}
