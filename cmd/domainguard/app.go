package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/domainguard/internal/alerting"
	"github.com/hamed0406/domainguard/internal/config"
	"github.com/hamed0406/domainguard/internal/logging"
	"github.com/hamed0406/domainguard/internal/notify"
	"github.com/hamed0406/domainguard/internal/probe"
	"github.com/hamed0406/domainguard/internal/repo"
	"github.com/hamed0406/domainguard/internal/repo/memory"
	"github.com/hamed0406/domainguard/internal/repo/postgres"
	"github.com/hamed0406/domainguard/internal/repo/sqlite"
	"github.com/hamed0406/domainguard/internal/scheduler"
)

// app is everything a command needs, built from one Config.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   repo.Store
	seeder  repo.Seeder
	sweeper *scheduler.Sweeper
	closers []func()
}

type storeBackend interface {
	repo.Store
	repo.Seeder
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store, a.seeder = store, store

	var email notify.EmailSender
	if s := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}); s != nil {
		email = s
	} else {
		logger.Warn("email_transport_disabled", zap.String("reason", "SMTP_HOST not set"))
	}
	var sms notify.SMSSender
	if g := notify.NewSMSGateway(cfg.SMS.GatewayURL, cfg.SMS.Token, cfg.SMS.From); g != nil {
		sms = g
	} else {
		logger.Warn("sms_transport_disabled", zap.String("reason", "SMS_GATEWAY_URL not set"))
	}

	pipeline := alerting.NewPipeline(store, notify.NewDispatcher(email, sms, logger), logger)
	a.sweeper = scheduler.NewSweeper(
		logger,
		store,
		pipeline,
		probe.NewTLSProber(cfg.ProbeTimeout),
		a.checker(),
		cfg.SweepConcurrency,
	)
	return a, nil
}

// openStore prefers Postgres, then sqlite, then the in-memory store.
func (a *app) openStore(ctx context.Context) (storeBackend, error) {
	switch {
	case a.cfg.DatabaseURL != "":
		pg, err := postgres.New(ctx, a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		a.logger.Info("store_selected", zap.String("backend", "postgres"))
		return pg, nil
	case a.cfg.SQLitePath != "":
		lite, err := sqlite.Open(a.cfg.SQLitePath, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = lite.Close() })
		a.logger.Info("store_selected", zap.String("backend", "sqlite"), zap.String("path", a.cfg.SQLitePath))
		return lite, nil
	default:
		a.logger.Warn("store_selected", zap.String("backend", "memory"), zap.String("note", "nothing is persisted"))
		return memory.New(), nil
	}
}

func (a *app) checker() probe.Checker {
	var c probe.Checker = probe.NewHTTPChecker(a.cfg.ProbeTimeout)
	if a.cfg.RetryAttempts > 1 {
		c = &probe.RetryChecker{Inner: c, Attempts: a.cfg.RetryAttempts, Backoff: a.cfg.RetryBackoff}
	}
	return c
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
