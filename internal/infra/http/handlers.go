package http

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"docsign/internal/domain"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type documentInput struct {
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
}

type hashDocumentRequest struct {
	ContentBase64 *string `json:"content_base64"`
}

type hashReferenceRequest struct {
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
	TenantID     string `json:"tenant_id"`
}

type hashResponse struct {
	DocumentHash string `json:"document_hash"`
	Algorithm    string `json:"algorithm"`
}

func (s *Server) handleHashDocument(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req hashDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	content, ok := decodeContent(c, req.ContentBase64, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, hashResponse{DocumentHash: s.signatures.HashDocument(content), Algorithm: "SHA-512"})
}

func (s *Server) handleHashReference(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req hashReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if strings.TrimSpace(req.DocumentType) == "" || strings.TrimSpace(req.DocumentID) == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "document_type and document_id are required")
		return
	}
	hash := s.signatures.HashDocumentReference(req.DocumentType, req.DocumentID, req.TenantID)
	c.JSON(http.StatusOK, hashResponse{DocumentHash: hash, Algorithm: "SHA-512"})
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, out any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return false
	}
	return true
}

// decodeContent returns nil for an absent field and an empty, non-nil slice
// for "".
func decodeContent(c *gin.Context, encoded *string, required bool) ([]byte, bool) {
	if encoded == nil {
		if required {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "content_base64 is required")
			return nil, false
		}
		return nil, true
	}
	content, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_CONTENT_ENCODING", "invalid content encoding")
		return nil, false
	}
	return content, true
}

func provenanceFrom(c *gin.Context, geolocation string) domain.Provenance {
	return domain.Provenance{
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Geolocation: strings.TrimSpace(geolocation),
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func writeError(c *gin.Context, err error) {
	var validation *domain.CertificateValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Code:    "INVALID_CERTIFICATE",
			Message: validation.Error(),
			Details: map[string]any{
				"errors":   validation.Result.Errors,
				"warnings": validation.Result.Warnings,
			},
		})
		return
	}

	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domain.ErrMalformedCertificate):
		status, code = http.StatusBadRequest, "MALFORMED_CERTIFICATE"
	case errors.Is(err, domain.ErrInvalidPrivateKey):
		status, code = http.StatusBadRequest, "INVALID_PRIVATE_KEY"
	case errors.Is(err, domain.ErrKeyDecryptionFailed):
		status, code = http.StatusBadRequest, "KEY_DECRYPTION_FAILED"
	case errors.Is(err, domain.ErrInvalidCertificate):
		status, code = http.StatusUnprocessableEntity, "INVALID_CERTIFICATE"
	case errors.Is(err, domain.ErrNoCertificate):
		status, code = http.StatusUnprocessableEntity, "NO_ACTIVE_CERTIFICATE"
	case errors.Is(err, domain.ErrDuplicateCertificate):
		status, code = http.StatusConflict, "DUPLICATE_CERTIFICATE"
	case errors.Is(err, domain.ErrDuplicateSignature):
		status, code = http.StatusConflict, "DUPLICATE_SIGNATURE"
	case errors.Is(err, domain.ErrSignatureFinalized):
		status, code = http.StatusConflict, "SIGNATURE_FINALIZED"
	case errors.Is(err, domain.ErrSignerAlreadySigned):
		status, code = http.StatusConflict, "SIGNER_ALREADY_SIGNED"
	case errors.Is(err, domain.ErrWorkflowClosed):
		status, code = http.StatusConflict, "WORKFLOW_CLOSED"
	case errors.Is(err, domain.ErrSignerNotFound):
		status, code = http.StatusNotFound, "SIGNER_NOT_FOUND"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeErrorCode(c, status, code, message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
