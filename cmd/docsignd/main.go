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
	httpinfra "docsign/internal/infra/http"
	"docsign/internal/infra/logging"
	"docsign/internal/infra/memstore"
	"docsign/internal/infra/policyopa"
	"docsign/internal/usecase"

	"go.uber.org/zap"
)

type repositories struct {
	certificates usecase.CertificateRepository
	signatures   usecase.SignatureRepository
	workflows    usecase.WorkflowRepository
	auditEvents  usecase.AuditEventRepository
	mode         string
	closeFn      func() error
}

func main() {
	cfg := config.FromEnv()
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init store", zap.Error(err))
	}
	defer func() { _ = repos.closeFn() }()

	policy, err := policyopa.NewEngine(ctx, cfg.PolicyBundlePath)
	if err != nil {
		logger.Fatal("failed to load integrity policy", zap.Error(err))
	}
	logger.Info("integrity policy loaded",
		zap.String("bundle_id", policy.BundleID()),
		zap.String("bundle_hash", policy.BundleHash()),
	)

	deps := buildServices(cfg, repos, policy, logger)
	srv := httpinfra.NewServerWithDeps(cfg, deps)
	if err := srv.Err(); err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("docsignd listening", zap.String("addr", cfg.HTTPAddr), zap.String("store_mode", repos.mode))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func openRepositories(cfg config.Config, logger *zap.Logger) (repositories, error) {
	store, err := db.NewStore(cfg, logger)
	if err != nil {
		return repositories{}, err
	}
	if store.DB == nil {
		mem := memstore.New()
		return repositories{
			certificates: mem.Certificates(),
			signatures:   mem.Signatures(),
			workflows:    mem.Workflows(),
			auditEvents:  mem.AuditEvents(),
			mode:         httpinfra.StoreModeMemory,
			closeFn:      func() error { return nil },
		}, nil
	}
	return repositories{
		certificates: store.Certificates,
		signatures:   store.Signatures,
		workflows:    store.Workflows,
		auditEvents:  store.AuditEvents,
		mode:         httpinfra.StoreModeDB,
		closeFn:      store.Close,
	}, nil
}

func buildServices(cfg config.Config, repos repositories, policy usecase.PolicyEngine, logger *zap.Logger) httpinfra.ServerDeps {
	clock := func() time.Time { return time.Now().UTC() }
	crypto := &cryptoinfra.Service{}
	audit := usecase.NewAuditEmitter(repos.auditEvents, clock, logger)
	dir := directory.NewFromConfig(cfg)

	certs := usecase.NewCertificateManager(repos.certificates, crypto, logger, clock)
	certs.MinValidityDays = cfg.CertMinValidityDays
	certs.Audit = audit

	sigs := usecase.NewSignatureService(certs, repos.signatures, repos.workflows, crypto, logger, clock)
	sigs.Audit = audit

	if dir.IdentityConfigured() {
		sigs.Identity = dir
	} else {
		logger.Warn("IDENTITY_BASE_URL not set; signer emails fall back to placeholders")
	}
	if dir.NotifyConfigured() {
		certs.Notifier = dir
		sigs.Notifier = dir
	} else {
		logger.Warn("NOTIFY_BASE_URL not set; notifications disabled")
	}

	verification := usecase.NewVerificationService(repos.signatures, repos.certificates, crypto, cfg.TrustedFingerprints(), logger, clock)
	verification.Policy = policy
	verification.Concurrency = cfg.VerifyConcurrency

	return httpinfra.ServerDeps{
		Certificates: certs,
		Signatures:   sigs,
		Verification: verification,
		AuditEvents:  repos.auditEvents,
		StoreMode:    repos.mode,
		Logger:       logger,
	}
}
