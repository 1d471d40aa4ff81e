package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docsign/internal/config"
	cryptoinfra "docsign/internal/infra/crypto"
	"docsign/internal/infra/db"
	"docsign/internal/infra/directory"
	"docsign/internal/infra/logging"
	"docsign/internal/infra/sweep"
	"docsign/internal/usecase"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthSrv := startHealthServer(cfg.HealthAddr, logger)
	defer func() {
		_ = healthSrv.Shutdown(context.Background())
	}()

	// An in-memory store would give the sweeper nothing to sweep.
	if cfg.PostgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required for the sweeper")
	}
	store, err := db.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	clock := func() time.Time { return time.Now().UTC() }
	crypto := &cryptoinfra.Service{}
	audit := usecase.NewAuditEmitter(store.AuditEvents, clock, logger)
	dir := directory.NewFromConfig(cfg)

	certs := usecase.NewCertificateManager(store.Certificates, crypto, logger, clock)
	certs.Audit = audit
	sigs := usecase.NewSignatureService(certs, store.Signatures, store.Workflows, crypto, logger, clock)
	sigs.Audit = audit

	noticeDays := cfg.CertExpiryNoticeDays
	if dir.NotifyConfigured() {
		certs.Notifier = dir
		sigs.Notifier = dir
	} else {
		logger.Warn("NOTIFY_BASE_URL not set; expiry notices disabled")
		noticeDays = 0
	}

	temporalClient, err := client.NewClient(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal("failed to create temporal client", zap.Error(err))
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	sweep.Register(w, sweep.NewActivities(sigs, certs))

	err = sweep.EnsureSchedule(ctx, temporalClient.ScheduleClient(), sweep.ScheduleConfig{
		TaskQueue:  cfg.TemporalTaskQueue,
		Interval:   cfg.SweepInterval(),
		NoticeDays: noticeDays,
	})
	if err != nil {
		logger.Fatal("failed to ensure sweep schedule", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	logger.Info("sweeper worker listening",
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.Duration("interval", cfg.SweepInterval()),
	)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}

func startHealthServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("health server error", zap.Error(err))
		}
	}()
	return srv
}
