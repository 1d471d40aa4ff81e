package http

import (
	"errors"
	"net/http"
	"time"

	"docsign/internal/config"
	"docsign/internal/domain"
	"docsign/internal/infra/auth/jwt"
	"docsign/internal/infra/auth/rbac"
	"docsign/internal/infra/ratelimit"
	"docsign/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	StoreModeDB     = "db"
	StoreModeMemory = "no-db"
)

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *zap.Logger

	certs        *usecase.CertificateManager
	signatures   *usecase.SignatureService
	verification *usecase.VerificationService
	auditEvents  usecase.AuditEventRepository
	storeMode    string

	adminAPIKey string

	authenticator domain.Authenticator
	authorizer    domain.Authorizer
	authInitErr   error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Certificates  *usecase.CertificateManager
	Signatures    *usecase.SignatureService
	Verification  *usecase.VerificationService
	AuditEvents   usecase.AuditEventRepository
	StoreMode     string
	AdminAPIKey   string
	Authenticator domain.Authenticator
	Authorizer    domain.Authorizer
	RateLimiter   domain.RateLimiter
	Logger        *zap.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	adminKey := deps.AdminAPIKey
	if adminKey == "" {
		adminKey = cfg.AdminAPIKey
	}
	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        logger.With(zap.String("component", "http")),
		certs:         deps.Certificates,
		signatures:    deps.Signatures,
		verification:  deps.Verification,
		auditEvents:   deps.AuditEvents,
		storeMode:     deps.StoreMode,
		adminAPIKey:   adminKey,
		authenticator: deps.Authenticator,
		authorizer:    deps.Authorizer,
	}
	if s.storeMode == "" {
		s.storeMode = StoreModeMemory
	}
	r.Use(s.observe())
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.routes()
	return s
}

func (s *Server) initAuth() {
	if s.cfg.AuthMode == "" {
		s.authInitErr = errors.New("AUTH_MODE is required")
		return
	}
	switch s.cfg.AuthMode {
	case "none":
		return
	case "jwt":
		if s.authenticator == nil {
			authenticator, err := jwt.NewAuthenticator(s.cfg)
			if err != nil {
				s.authInitErr = err
				return
			}
			s.authenticator = authenticator
		}
		if s.authorizer == nil {
			s.authorizer = rbac.NewAuthorizer()
		}
	default:
		s.authInitErr = errors.New("unsupported auth mode")
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil)
			if err == nil {
				s.rateLimiter = limiter
			} else {
				s.logger.Warn("redis rate limiter unavailable, using memory limiter", zap.Error(err))
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.storeMode})
	})
	s.r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.r.Group("/v1")
	{
		v1.POST("/documents/hash", s.handleHashDocument)
		v1.POST("/documents/hash-reference", s.handleHashReference)

		v1.POST("/certificates/parse", s.handleParseCertificate)
		v1.POST("/certificates/validate", s.handleValidateCertificate)
		v1.POST("/certificates/chain", s.handleVerifyChain)
		v1.GET("/certificates/:certificate_id", s.handleGetCertificate)
		v1.POST("/certificates/:certificate_id/revoke", s.handleRevokeCertificate)
		v1.POST("/tenants/:tenant_id/certificates", s.handleStoreCertificate)
		v1.GET("/tenants/:tenant_id/signers/:signer_id/certificate", s.handleGetUserCertificate)

		v1.POST("/tenants/:tenant_id/signatures/attestation", s.handleSignAttestation)
		v1.POST("/tenants/:tenant_id/signatures/cryptographic", s.handleSignWithKey)
		v1.GET("/tenants/:tenant_id/documents/:document_id/signatures", s.handleDocumentSignatures)
		v1.POST("/tenants/:tenant_id/documents/:document_id/integrity", s.handleDocumentIntegrity)
		v1.GET("/signatures/:signature_id", s.handleGetSignature)
		v1.GET("/signatures/:signature_id/valid", s.handleIsSignatureValid)
		v1.POST("/signatures/:signature_id/verify", s.handleVerifySignature)
		v1.POST("/signatures/:signature_id/reject", s.handleRejectSignature)
		v1.POST("/signatures/:signature_id/revoke", s.handleRevokeSignature)
		v1.POST("/signatures/verify-bulk", s.handleBulkVerify)

		v1.POST("/tenants/:tenant_id/workflows", s.handleCreateWorkflow)
		v1.GET("/tenants/:tenant_id/signers/:signer_id/workflows", s.handleSignerWorkflows)
		v1.GET("/workflows/:workflow_id", s.handleGetWorkflow)
		v1.POST("/workflows/:workflow_id/steps", s.handleCompleteStep)
		v1.POST("/workflows/:workflow_id/cancel", s.handleCancelWorkflow)

		v1.GET("/admin/certificates/expiring", s.handleExpiringCertificates)
		v1.POST("/admin/certificates/notify-expiring", s.handleNotifyExpiring)
		v1.POST("/admin/workflows/expire", s.handleExpireWorkflows)
		v1.GET("/admin/audit/:target_type/:target_id", s.handleAuditTrail)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Err reports a configuration problem found while wiring auth.
func (s *Server) Err() error {
	return s.authInitErr
}

func (s *Server) Run() error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}
