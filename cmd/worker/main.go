package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/eventdesk/internal/analytics"
	"github.com/notifyhub/eventdesk/internal/certificate"
	"github.com/notifyhub/eventdesk/internal/config"
	"github.com/notifyhub/eventdesk/internal/db"
	"github.com/notifyhub/eventdesk/internal/events"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/metrics"
	"github.com/notifyhub/eventdesk/internal/observability"
	"github.com/notifyhub/eventdesk/internal/processor"
	"github.com/notifyhub/eventdesk/internal/provider"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/ratelimiter"
	"github.com/notifyhub/eventdesk/internal/repository"
	"github.com/notifyhub/eventdesk/internal/scheduler"
	"github.com/notifyhub/eventdesk/internal/signing"
	"github.com/notifyhub/eventdesk/internal/templates"
	"github.com/notifyhub/eventdesk/internal/worker"
)

var version = "dev"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", zap.Error(err))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
	logger.Info("worker stopped cleanly")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		ServiceName:    "eventdesk-worker",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		SampleRate:     cfg.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// ---- database ----
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(cfg.MigrationsPath, cfg.DatabaseURL, logger); err != nil {
		return err
	}

	// ---- core dependencies ----
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	repos := repository.NewPgStore(pool)
	reg, err := queue.NewRegistry(queue.NewPgStore(pool), logger, jobs.Definitions(cfg.Concurrency)...)
	if err != nil {
		return err
	}
	signer, err := signing.NewSigner(cfg.QRSecret)
	if err != nil {
		return err
	}
	codec := qr.NewCodec(signer, qr.WithMaxAge(cfg.QRMaxAge))

	tmpl, err := templates.New()
	if err != nil {
		return err
	}
	files, err := certificate.NewDiskStore(cfg.CertificateDir, cfg.CertificateURL)
	if err != nil {
		return err
	}
	gen := certificate.NewGenerator(repos, codec, certificate.NewPDFRenderer(cfg.AppName), files, logger)

	var mailer provider.Mailer = provider.NewLogMailer(logger)
	if cfg.MailAPIURL != "" {
		mailer = provider.NewHTTPMailer(cfg.MailAPIURL, cfg.MailAPIKey, cfg.ProviderTimeout)
	}
	var sms provider.SMSSender = provider.NewLogSMSSender(logger)
	if cfg.SMSAPIURL != "" {
		sms = provider.NewHTTPSMSSender(cfg.SMSAPIURL, cfg.SMSAPIKey, cfg.ProviderTimeout)
	}
	limiter := ratelimiter.New(cfg.RateLimit)

	pcfg := processor.Config{
		AppName:        cfg.AppName,
		BaseURL:        cfg.AppBaseURL,
		ReminderWindow: 15 * time.Minute,
		ReminderSMS:    cfg.ReminderSMS,
	}
	now := func() time.Time { return time.Now().UTC() }
	handlers := map[string]worker.Handler{
		jobs.QueueEmail:        processor.NewEmail(repos, tmpl, mailer, limiter, pcfg, logger),
		jobs.QueueSMS:          processor.NewSMS(repos, tmpl, sms, limiter, pcfg, logger),
		jobs.QueueNotification: processor.NewNotification(repos, pcfg, now, logger),
		jobs.QueueCertificate:  processor.NewCertificate(repos, gen, reg, pcfg, logger),
		jobs.QueueAnalytics:    processor.NewAnalytics(analytics.NewService(repos, now)),
		jobs.QueueScheduled:    processor.NewScheduled(repos, reg, pcfg, now, logger),
	}

	// ---- optional integrations ----
	hooks := m.WorkerHooks()
	if cfg.NATSURL != "" {
		pub, err := events.Connect(ctx, logger, cfg.NATSURL)
		if err != nil {
			return err
		}
		defer pub.Close()
		hooks = worker.ChainHooks(hooks, pub.Hooks())
	}

	var locker scheduler.Locker = scheduler.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		locker = scheduler.NewRedisLocker(rdb, "eventdesk:scheduler:")
		logger.Info("scheduler using redis tick locks", zap.String("addr", cfg.RedisAddr))
	}

	// ---- workers ----
	wcfg := worker.Config{
		PollInterval:      cfg.PollInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		StalledInterval:   cfg.StalledInterval,
		MaxStalledCount:   cfg.MaxStalledCount,
	}
	workers, err := worker.NewPool(reg, handlers, wcfg, logger, hooks)
	if err != nil {
		return err
	}
	reaper := worker.NewReaper(reg, wcfg, m.ObserveCounts, logger)

	sched := scheduler.New(scheduler.NewPgStore(pool), locker, reg, logger,
		scheduler.WithTick(cfg.SchedulerTick),
		scheduler.OnFire(m.TriggerFired),
	)
	if err := sched.Register(ctx, scheduler.DefaultTriggers()...); err != nil {
		return err
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		workers.Start(gctx)
		<-gctx.Done()
		workers.Wait()
		return nil
	})
	g.Go(func() error {
		reaper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("metrics listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return metricsSrv.Shutdown(sctx)
	})

	logger.Info("worker started",
		zap.Strings("queues", reg.Queues()),
		zap.String("version", version),
	)
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
