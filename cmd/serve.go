package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/api"
	"github.com/keystonedata/inspections-pipeline/internal/scheduler"
)

// newServeCmd creates the 'serve' subcommand, the long-running daemon that
// hosts the HTTP API, the worker pool, and the daily schedule.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the pipeline service",
		Long: `Starts the HTTP API, the run dispatcher, and the cron scheduler. Scheduled
runs fire per the configured cron expression; manual runs arrive via
POST /v1/runs.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := a.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcherDone := make(chan struct{})
	go func() {
		a.Dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	var sched *scheduler.Scheduler
	if a.Cfg.Schedule.Enabled {
		sched, err = scheduler.New(scheduler.Config{
			Spec:     a.Cfg.Schedule.Cron,
			Timezone: a.Cfg.Schedule.Timezone,
		}, a.Runs, logger)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
		Handler:           api.NewServer(a.Runs, a.Cfg, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	stop()
	<-dispatcherDone
	logger.Info("service stopped")
	return nil
}
