package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/analytics"
	"github.com/hamed0406/uptimemonitor/internal/certmon"
	"github.com/hamed0406/uptimemonitor/internal/config"
	"github.com/hamed0406/uptimemonitor/internal/httpapi"
	apimw "github.com/hamed0406/uptimemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemonitor/internal/ingest"
	"github.com/hamed0406/uptimemonitor/internal/logging"
	"github.com/hamed0406/uptimemonitor/internal/metrics"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/ratelimit"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
	"github.com/hamed0406/uptimemonitor/internal/repo/postgres"
	"github.com/hamed0406/uptimemonitor/internal/retention"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
	"github.com/hamed0406/uptimemonitor/internal/tracker"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogStdout)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("config_timezone", zap.String("tz", cfg.AnalyticsTZ), zap.Error(err))
	}
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store   repo.Store
		closers []func() error
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("db_connect", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("db_schema", zap.Error(err))
		}
		closers = append(closers, func() error { pg.Close(); return nil })
		store = pg
	} else {
		logger.Warn("store_in_memory", zap.String("hint", "set DATABASE_URL to persist incidents"))
		store = memory.New()
	}

	var transport notify.Transport = notify.Disabled{}
	if p := notify.NewPush(cfg.PushGatewayURL, cfg.PushGatewayToken, cfg.PushTimeout); p != nil {
		transport = p
	} else {
		logger.Warn("push_disabled", zap.String("hint", "set PUSH_GATEWAY_URL to deliver notifications"))
	}
	fanout := notify.NewFanout(transport, cfg.FanoutWorkers, cfg.PushTimeout, logger)

	tr := tracker.New(store, fanout, logger)
	signals := ingest.NewService(ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow), tr, logger)
	certs := certmon.New(store, probe.NewCertProber(), fanout, cfg.CertCheckConcurrency, cfg.CertCheckTimeout, logger)
	engine := analytics.New(store, analytics.Options{ScaleMTBFWindow: cfg.MTBFScaleWindow, Location: loc}, logger)
	prune := retention.New(store, cfg.RetentionDays, logger)

	if cfg.NATSURL != "" {
		sub, err := ingest.NewNATSSubscriber(ingest.NATSConfig{
			URL:      cfg.NATSURL,
			Subject:  cfg.NATSSubject,
			Stream:   cfg.NATSStream,
			Consumer: cfg.NATSConsumer,
		}, signals, logger)
		if err != nil {
			logger.Fatal("nats_subscribe", zap.Error(err))
		}
		closers = append(closers, sub.Close)
	}

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() {
		scheduler.Every(ctx, logger, "cert_sweep", cfg.CertCheckInterval, func(ctx context.Context) {
			rep, err := certs.RunOnce(ctx)
			if err != nil {
				logger.Warn("cert_sweep_errors", zap.Error(err))
			}
			logger.Info("cert_sweep_done",
				zap.Int("checked", rep.Checked), zap.Int("ok", rep.OK),
				zap.Int("failed", rep.Failed), zap.Int("alerts", rep.Alerts))
		})
	})
	spawn(func() {
		scheduler.DailyAt(ctx, logger, "retention", cfg.RetentionHour, loc, nil, func(ctx context.Context) {
			res, err := prune.Run(ctx)
			if err != nil {
				logger.Error("retention_failed", zap.Error(err))
				return
			}
			logger.Info("retention_done", zap.Int("folded", res.Folded), zap.Int("days", res.Days), zap.Int("kept_open", res.Kept))
		})
	})
	if cfg.ProbeInterval > 0 {
		checker := &probe.RetryChecker{
			Inner:    probe.NewHTTPChecker(cfg.ProbeTimeout),
			Attempts: cfg.RetryAttempts,
			Backoff:  cfg.RetryBackoff,
		}
		prober := scheduler.NewProber(logger, store, signals, checker, cfg.ProbeInterval, cfg.ProbeTimeout*time.Duration(cfg.RetryAttempts+1), cfg.MaxConcurrentChecks)
		spawn(func() { prober.Run(ctx) })
	}

	var ipLimit *ratelimit.Limiter
	if cfg.HTTPRateLimit > 0 {
		ipLimit = ratelimit.New(cfg.HTTPRateLimit, cfg.RateLimitWindow)
	}
	api := httpapi.NewServer(logger, store, signals, certs, engine)
	keys := apimw.Keys{Clients: cfg.APIKeys, Admin: cfg.AdminAPIKeys}
	if len(keys.Clients) == 0 && len(keys.Admin) == 0 {
		logger.Warn("auth_disabled", zap.String("hint", "set API_KEYS and ADMIN_API_KEYS"))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, ipLimit),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	errs := srv.Shutdown(shutdownCtx)
	wg.Wait()
	for _, c := range closers {
		errs = multierr.Append(errs, c())
	}
	if errs != nil {
		logger.Error("shutdown_errors", zap.Error(errs))
		return
	}
	logger.Info("shutdown_complete")
}
