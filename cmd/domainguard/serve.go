package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/httpapi"
	apimw "github.com/hamed0406/domainguard/internal/httpapi/middleware"
	"github.com/hamed0406/domainguard/internal/scheduler"
)

const shutdownGrace = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the operator API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := scheduler.New(a.logger, a.sweeper, scheduler.WithRunOnStart(a.cfg.RunOnStart))
	if err != nil {
		return err
	}

	api := httpapi.NewServer(a.logger, sched)
	auth := apimw.Auth{Viewer: a.cfg.PublicAPIKeys, Operator: a.cfg.AdminAPIKeys, Logger: a.logger}
	if len(auth.Operator) == 0 {
		a.logger.Warn("admin_keys_missing", zap.String("note", "manual sweep endpoint is open"))
	}
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           api.Router(auth, httpapi.DefaultRunPerMinute, httpapi.DefaultRunBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched.Start()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api_listen", zap.String("addr", a.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown_requested")
	case err = <-errCh:
		a.logger.Error("api_failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if e := srv.Shutdown(shutdownCtx); e != nil {
		a.logger.Warn("api_shutdown_error", zap.Error(e))
	}
	if e := sched.Shutdown(shutdownCtx); e != nil {
		a.logger.Warn("scheduler_shutdown_timeout", zap.Error(e))
	}
	return err
}
