package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/jiradl/internal/adapter/driving/http"
	"github.com/ericfisherdev/jiradl/internal/application"
)

func serveCmd(a *app) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run periodic syncs and serve the local JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("interval") {
				a.cfg.SyncInterval = interval
			}
			return serve(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $JIRADL_LISTEN_ADDR or 127.0.0.1:8380)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "sync interval, 0 disables periodic syncs")

	return cmd
}

func serve(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, err := a.openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	scheduler := application.NewScheduler(svc.sync, a.cfg.SyncInterval)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		scheduler.Start(ctx)
	}()

	handler := httphandler.NewServeMux(
		httphandler.NewHandler(scheduler, svc.cleanup, svc.runs, slog.Default()),
		slog.Default(),
	)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("jiradl started",
		"listen_addr", a.cfg.ListenAddr,
		"sync_interval", a.cfg.SyncInterval,
		"download_dir", a.cfg.DownloadDir,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		cancel()
		<-schedDone
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	<-schedDone

	slog.Info("shutdown complete")
	return nil
}
