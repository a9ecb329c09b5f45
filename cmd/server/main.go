package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/api"
	"github.com/notifyhub/eventdesk/internal/api/handler"
	apimw "github.com/notifyhub/eventdesk/internal/api/middleware"
	"github.com/notifyhub/eventdesk/internal/config"
	"github.com/notifyhub/eventdesk/internal/db"
	"github.com/notifyhub/eventdesk/internal/jobs"
	"github.com/notifyhub/eventdesk/internal/metrics"
	"github.com/notifyhub/eventdesk/internal/observability"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/queue"
	"github.com/notifyhub/eventdesk/internal/repository"
	"github.com/notifyhub/eventdesk/internal/service"
	"github.com/notifyhub/eventdesk/internal/signing"
)

var version = "dev"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		ServiceName:    "eventdesk-server",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		SampleRate:     cfg.SampleRate,
	})
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// ---- database ----
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.MigrationsPath, cfg.DatabaseURL, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// ---- core dependencies ----
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	repos := repository.NewPgStore(pool)
	reg, err := queue.NewRegistry(queue.NewPgStore(pool), logger, jobs.Definitions(cfg.Concurrency)...)
	if err != nil {
		logger.Fatal("failed to build queue registry", zap.Error(err))
	}
	signer, err := signing.NewSigner(cfg.QRSecret)
	if err != nil {
		logger.Fatal("invalid QR secret", zap.Error(err))
	}
	codec := qr.NewCodec(signer, qr.WithMaxAge(cfg.QRMaxAge))
	qrs := service.NewQRService(repos, codec, m)

	router := api.NewRouter(
		api.Services{
			Queues:        service.NewQueueAdmin(reg, logger),
			Notifications: service.NewNotificationService(repos, reg, logger),
			Certificates:  service.NewCertificateService(repos, reg),
			Registrations: service.NewRegistrationService(repos, reg, logger),
			QR:            qrs,
			Attendance:    service.NewAttendanceService(repos, qrs, m, logger),
		},
		apimw.NewAuthenticator(cfg.JWTSecret),
		map[string]handler.Pinger{"postgres": pool},
		promReg,
		logger,
	)

	// Rendered certificates are written by the worker into the shared
	// directory and served from here.
	mux := http.NewServeMux()
	mux.Handle("/files/certificates/", http.StripPrefix("/files/certificates/",
		http.FileServer(http.Dir(cfg.CertificateDir))))
	mux.Handle("/", router)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	if exitCode != 0 {
		logger.Sync() //nolint:errcheck
		os.Exit(exitCode)
	}
}
