package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"docsign/internal/domain"
	"docsign/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

type certificatePEMRequest struct {
	CertificatePEM string `json:"certificate_pem"`
}

type validateCertificateRequest struct {
	CertificatePEM   string   `json:"certificate_pem"`
	RequireOrgName   bool     `json:"require_org_name"`
	RequireEmail     bool     `json:"require_email"`
	MinValidityDays  int      `json:"min_validity_days"`
	AllowedKeyUsages []string `json:"allowed_key_usages"`
}

type storeCertificateRequest struct {
	SignerID       string `json:"signer_id"`
	CertificatePEM string `json:"certificate_pem"`
}

type revokeRequest struct {
	Reason    string `json:"reason"`
	RevokedBy string `json:"revoked_by"`
}

type chainRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type certificateResponse struct {
	ID               string                   `json:"id"`
	SignerID         string                   `json:"signer_id"`
	TenantID         string                   `json:"tenant_id"`
	Status           domain.CertificateStatus `json:"status"`
	Subject          domain.DistinguishedName `json:"subject"`
	Issuer           domain.DistinguishedName `json:"issuer"`
	SerialNumber     string                   `json:"serial_number"`
	Fingerprint      string                   `json:"fingerprint"`
	NotBefore        time.Time                `json:"not_before"`
	NotAfter         time.Time                `json:"not_after"`
	KeyUsage         []string                 `json:"key_usage"`
	CertificatePEM   string                   `json:"certificate_pem"`
	RevokedAt        *time.Time               `json:"revoked_at,omitempty"`
	RevocationReason string                   `json:"revocation_reason,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
}

func buildCertificateResponse(cert domain.StoredCertificate) certificateResponse {
	return certificateResponse{
		ID:               cert.ID,
		SignerID:         cert.SignerID,
		TenantID:         cert.TenantID,
		Status:           cert.EffectiveStatus(now()),
		Subject:          cert.Info.Subject,
		Issuer:           cert.Info.Issuer,
		SerialNumber:     cert.Info.SerialNumber,
		Fingerprint:      cert.Info.Fingerprint,
		NotBefore:        cert.Info.NotBefore,
		NotAfter:         cert.Info.NotAfter,
		KeyUsage:         cert.Info.KeyUsage,
		CertificatePEM:   cert.PEM,
		RevokedAt:        cert.RevokedAt,
		RevocationReason: cert.RevocationReason,
		CreatedAt:        cert.CreatedAt,
	}
}

func (s *Server) handleParseCertificate(c *gin.Context) {
	if s.certs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	if _, ok := s.requireAuth(c, rbac.PermCertificatesRead, "", false); !ok {
		return
	}
	var req certificatePEMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	info, err := s.certs.ParseCertificate([]byte(req.CertificatePEM))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleValidateCertificate(c *gin.Context) {
	if s.certs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	if _, ok := s.requireAuth(c, rbac.PermCertificatesRead, "", false); !ok {
		return
	}
	var req validateCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	result := s.certs.ValidateCertificate([]byte(req.CertificatePEM), domain.ValidationOptions{
		RequireOrgName:   req.RequireOrgName,
		RequireEmail:     req.RequireEmail,
		MinValidityDays:  req.MinValidityDays,
		AllowedKeyUsages: req.AllowedKeyUsages,
	})
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleStoreCertificate(c *gin.Context) {
	if s.certs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	principal, ok := s.requireAuth(c, rbac.PermCertificatesWrite, tenantID, false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeCertStore, tenantID, principal) {
		return
	}
	var req storeCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	signerID, ok := s.authorizeSigner(c, principal, tenantID, req.SignerID, rbac.PermCertificatesWrite)
	if !ok {
		return
	}
	cert, err := s.certs.StoreCertificate(c.Request.Context(), signerID, tenantID, []byte(req.CertificatePEM))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildCertificateResponse(cert))
}

func (s *Server) handleGetCertificate(c *gin.Context) {
	if s.certs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermCertificatesRead, "", false)
	if !ok {
		return
	}
	cert, err := s.certs.GetCertificate(c.Request.Context(), c.Param("certificate_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !s.authorizeTenant(c, principal, cert.TenantID, rbac.PermCertificatesRead) {
		return
	}
	c.JSON(http.StatusOK, buildCertificateResponse(cert))
}

func (s *Server) handleGetUserCertificate(c *gin.Context) {
	if s.certs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	if _, ok := s.requireAuth(c, rbac.PermCertificatesRead, tenantID, false); !ok {
		return
	}
	cert, err := s.certs.GetUserCertificate(c.Request.Context(), c.Param("signer_id"), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	if cert == nil {
		writeErrorCode(c, http.StatusNotFound, "NO_ACTIVE_CERTIFICATE", "signer has no active certificate")
		return
	}
	c.JSON(http.StatusOK, buildCertificateResponse(*cert))
}

func (s *Server) handleRevokeCertificate(c *gin.Context) {
	if s.certs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermAdminRevoke, "", true)
	if !ok {
		return
	}
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	cert, err := s.certs.RevokeCertificate(c.Request.Context(), c.Param("certificate_id"), req.Reason, actorID(principal, req.RevokedBy))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildCertificateResponse(cert))
}

func (s *Server) handleVerifyChain(c *gin.Context) {
	if s.verification == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	if _, ok := s.requireAuth(c, rbac.PermVerify, "", false); !ok {
		return
	}
	var req chainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	c.JSON(http.StatusOK, s.verification.VerifyCertificateChain(req.Fingerprint))
}

func (s *Server) handleExpiringCertificates(c *gin.Context) {
	if s.certs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	if _, ok := s.requireAuth(c, rbac.PermAdminSweep, "", true); !ok {
		return
	}
	days, ok := parseDays(c, s.cfg.CertExpiryNoticeDays)
	if !ok {
		return
	}
	certs, err := s.certs.GetExpiringCertificates(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]certificateResponse, 0, len(certs))
	for _, cert := range certs {
		out = append(out, buildCertificateResponse(cert))
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "certificates": out})
}

func (s *Server) handleNotifyExpiring(c *gin.Context) {
	if s.certs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	if _, ok := s.requireAuth(c, rbac.PermAdminSweep, "", true); !ok {
		return
	}
	days, ok := parseDays(c, s.cfg.CertExpiryNoticeDays)
	if !ok {
		return
	}
	sent, err := s.certs.NotifyExpiringCertificates(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "notified": sent})
}

func parseDays(c *gin.Context, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query("days"))
	if raw == "" {
		if def <= 0 {
			def = 30
		}
		return def, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "days must be a non-negative integer")
		return 0, false
	}
	return days, true
}
