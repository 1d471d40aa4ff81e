package http

import (
	"net/http"
	"strings"
	"time"

	"docsign/internal/domain"
	"docsign/internal/infra/auth/rbac"
	"docsign/internal/infra/metrics"
	"docsign/internal/usecase"

	"github.com/gin-gonic/gin"
)

type signRequest struct {
	documentInput
	SignerID    string `json:"signer_id"`
	SignerName  string `json:"signer_name"`
	SignerEmail string `json:"signer_email"`
	SignerRole  string `json:"signer_role"`
	Geolocation string `json:"geolocation"`
}

type signWithKeyRequest struct {
	signRequest
	ContentBase64 *string `json:"content_base64"`
	PrivateKeyPEM string `json:"private_key_pem"`
	Passphrase    string `json:"passphrase"`
}

type finalizeRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type verifyRequest struct {
	ContentBase64 *string `json:"content_base64"`
}

type bulkVerifyRequest struct {
	SignatureIDs []string `json:"signature_ids"`
}

type signatureResponse struct {
	ID              string                     `json:"id"`
	Document        domain.DocumentRef         `json:"document"`
	DocumentHash    string                     `json:"document_hash"`
	SignatureKind   domain.SignatureKind       `json:"signature_kind"`
	SignatureStatus domain.SignatureStatus     `json:"signature_status"`
	SignerID        string                     `json:"signer_id"`
	SignerName      string                     `json:"signer_name"`
	SignerEmail     string                     `json:"signer_email,omitempty"`
	SignerRole      string                     `json:"signer_role,omitempty"`
	Certificate     domain.CertificateSnapshot `json:"certificate"`
	Algorithm       string                     `json:"algorithm"`
	SignatureValue  string                     `json:"signature_value"`
	Verified        bool                       `json:"verified"`
	VerifiedAt      *time.Time                 `json:"verified_at,omitempty"`
	VerifyMethod    string                     `json:"verification_method,omitempty"`
	Provenance      domain.Provenance          `json:"provenance"`
	SignedAt        time.Time                  `json:"signed_at"`
	StatusReason    string                     `json:"status_reason,omitempty"`
	StatusChangedAt *time.Time                 `json:"status_changed_at,omitempty"`
}

func buildSignatureResponse(sig domain.Signature) signatureResponse {
	return signatureResponse{
		ID:              sig.ID,
		Document:        sig.Document,
		DocumentHash:    sig.DocumentHash,
		SignatureKind:   sig.Kind,
		SignatureStatus: sig.Status,
		SignerID:        sig.SignerID,
		SignerName:      sig.SignerName,
		SignerEmail:     sig.SignerEmail,
		SignerRole:      sig.SignerRole,
		Certificate:     sig.Certificate,
		Algorithm:       sig.Algorithm,
		SignatureValue:  sig.Value,
		Verified:        sig.Verified,
		VerifiedAt:      sig.VerifiedAt,
		VerifyMethod:    sig.VerifyMethod,
		Provenance:      sig.Provenance,
		SignedAt:        sig.SignedAt,
		StatusReason:    sig.StatusReason,
		StatusChangedAt: sig.StatusChangeAt,
	}
}

func (s *Server) signRequestFrom(c *gin.Context, req signRequest, signerID string, principal domain.Principal) usecase.SignRequest {
	signerName := strings.TrimSpace(req.SignerName)
	if signerName == "" {
		signerName = principal.Name
	}
	return usecase.SignRequest{
		Document: domain.DocumentRef{
			Type:     strings.TrimSpace(req.DocumentType),
			ID:       strings.TrimSpace(req.DocumentID),
			TenantID: c.Param("tenant_id"),
		},
		SignerID:    signerID,
		SignerName:  signerName,
		SignerEmail: strings.TrimSpace(req.SignerEmail),
		SignerRole:  strings.TrimSpace(req.SignerRole),
		Provenance:  provenanceFrom(c, req.Geolocation),
	}
}

func (s *Server) handleSignAttestation(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	principal, ok := s.requireAuth(c, rbac.PermSignaturesWrite, tenantID, false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeSign, tenantID, principal) {
		return
	}
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	signerID, ok := s.authorizeSigner(c, principal, tenantID, req.SignerID, rbac.PermSignaturesWrite)
	if !ok {
		return
	}
	result, err := s.signatures.SignDocument(c.Request.Context(), s.signRequestFrom(c, req, signerID, principal))
	if err != nil {
		metrics.SignaturesTotal.WithLabelValues(string(domain.SignatureKindAttestation), "error").Inc()
		writeError(c, err)
		return
	}
	metrics.SignaturesTotal.WithLabelValues(string(domain.SignatureKindAttestation), "signed").Inc()
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleSignWithKey(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	principal, ok := s.requireAuth(c, rbac.PermSignaturesWrite, tenantID, false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeSign, tenantID, principal) {
		return
	}
	var req signWithKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	signerID, ok := s.authorizeSigner(c, principal, tenantID, req.SignerID, rbac.PermSignaturesWrite)
	if !ok {
		return
	}
	content, ok := decodeContent(c, req.ContentBase64, true)
	if !ok {
		return
	}
	result, err := s.signatures.SignDocumentWithKey(c.Request.Context(), usecase.SignWithKeyRequest{
		SignRequest:   s.signRequestFrom(c, req.signRequest, signerID, principal),
		Content:       content,
		PrivateKeyPEM: []byte(req.PrivateKeyPEM),
		Passphrase:    []byte(req.Passphrase),
	})
	if err != nil {
		metrics.SignaturesTotal.WithLabelValues(string(domain.SignatureKindCryptographic), "error").Inc()
		writeError(c, err)
		return
	}
	metrics.SignaturesTotal.WithLabelValues(string(domain.SignatureKindCryptographic), "signed").Inc()
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleGetSignature(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermSignaturesRead, "", false)
	if !ok {
		return
	}
	sig, err := s.signatures.GetSignature(c.Request.Context(), c.Param("signature_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !s.authorizeTenant(c, principal, sig.Document.TenantID, rbac.PermSignaturesRead) {
		return
	}
	c.JSON(http.StatusOK, buildSignatureResponse(sig))
}

func (s *Server) handleDocumentSignatures(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	if _, ok := s.requireAuth(c, rbac.PermSignaturesRead, tenantID, false); !ok {
		return
	}
	summaries, err := s.signatures.GetDocumentSignatures(c.Request.Context(), c.Param("document_id"), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signatures": summaries})
}

func (s *Server) handleRejectSignature(c *gin.Context) {
	s.handleFinalizeSignature(c, domain.SignatureStatusRejected, rbac.PermSignaturesWrite, false)
}

func (s *Server) handleRevokeSignature(c *gin.Context) {
	s.handleFinalizeSignature(c, domain.SignatureStatusRevoked, rbac.PermAdminRevoke, true)
}

func (s *Server) handleFinalizeSignature(c *gin.Context, to domain.SignatureStatus, permission string, allowAdminKey bool) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, permission, "", allowAdminKey)
	if !ok {
		return
	}
	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("signature_id")
	current, err := s.signatures.GetSignature(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !s.authorizeTenant(c, principal, current.Document.TenantID, permission) {
		return
	}
	actor := actorID(principal, req.Actor)
	var sig domain.Signature
	if to == domain.SignatureStatusRevoked {
		sig, err = s.signatures.RevokeSignature(ctx, id, req.Reason, actor)
	} else {
		sig, err = s.signatures.RejectSignature(ctx, id, req.Reason, actor)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildSignatureResponse(sig))
}

func (s *Server) handleVerifySignature(c *gin.Context) {
	if s.verification == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermVerify, "", false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeVerify, "", principal) {
		return
	}
	var req verifyRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	content, ok := decodeContent(c, req.ContentBase64, false)
	if !ok {
		return
	}
	result, err := s.verification.VerifySignatureChecked(c.Request.Context(), c.Param("signature_id"), content,
		s.signatureAccess(principal, rbac.PermVerify))
	if err != nil {
		writeVerifyError(c, err)
		return
	}
	recordVerification(result)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleBulkVerify(c *gin.Context) {
	if s.verification == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermVerify, "", false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeBulkVerify, "", principal) {
		return
	}
	var req bulkVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	results, err := s.verification.BulkVerifySignaturesChecked(c.Request.Context(), req.SignatureIDs,
		s.signatureAccess(principal, rbac.PermVerify))
	if err != nil {
		writeError(c, err)
		return
	}
	for _, result := range results {
		recordVerification(result)
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleIsSignatureValid(c *gin.Context) {
	if s.verification == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermVerify, "", false)
	if !ok {
		return
	}
	id := c.Param("signature_id")
	valid, err := s.verification.IsSignatureValidChecked(c.Request.Context(), id, s.signatureAccess(principal, rbac.PermVerify))
	if err != nil {
		writeVerifyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signature_id": id, "is_valid": valid})
}

func (s *Server) handleDocumentIntegrity(c *gin.Context) {
	if s.verification == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	principal, ok := s.requireAuth(c, rbac.PermVerify, tenantID, false)
	if !ok {
		return
	}
	if !s.enforceRateLimit(c, routeIntegrity, tenantID, principal) {
		return
	}
	var req verifyRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	content, ok := decodeContent(c, req.ContentBase64, false)
	if !ok {
		return
	}
	result, err := s.verification.VerifyDocumentIntegrity(c.Request.Context(), c.Param("document_id"), content, tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	for _, item := range result.Results {
		recordVerification(item)
	}
	c.JSON(http.StatusOK, result)
}

// writeVerifyError reports an access denial with its authz code.
func writeVerifyError(c *gin.Context, err error) {
	if _, ok := rbac.IsAuthzError(err); ok {
		writeAuthzError(c, err)
		return
	}
	writeError(c, err)
}

func recordVerification(result domain.VerificationResult) {
	label := "invalid"
	switch {
	case result.IsValid:
		label = "valid"
	case result.HasIntegrityFailure():
		label = "tampered"
	}
	metrics.VerificationsTotal.WithLabelValues(label).Inc()
}
