package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"docsign/internal/domain"
	"docsign/internal/infra/auth/rbac"
	"docsign/internal/usecase"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

var adminPrincipal = domain.Principal{
	Subject: "admin-key",
	Roles:   []string{rbac.RoleAdmin},
	Scopes:  []string{rbac.ScopeAll},
}

// requireAuth authenticates the caller and checks permission against tenantID.
// An empty tenantID defers the tenant check to authorizeTenant once the
// resource is loaded.
func (s *Server) requireAuth(c *gin.Context, permission string, tenantID string, allowAdminKey bool) (domain.Principal, bool) {
	if s.cfg.AuthMode == "none" {
		if allowAdminKey {
			if s.adminKeyMatches(c) {
				c.Set(principalContextKey, adminPrincipal)
				return adminPrincipal, true
			}
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
			return domain.Principal{}, false
		}
		return domain.Principal{}, true
	}
	if s.authInitErr != nil || s.authenticator == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return domain.Principal{}, false
	}
	if allowAdminKey && s.adminKeyMatches(c) {
		if !s.authorize(c, adminPrincipal, tenantID, permission) {
			return domain.Principal{}, false
		}
		c.Set(principalContextKey, adminPrincipal)
		return adminPrincipal, true
	}

	token := strings.TrimSpace(extractBearerToken(c.GetHeader("Authorization")))
	if token == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return domain.Principal{}, false
	}
	principal, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
		return domain.Principal{}, false
	}
	if !s.authorize(c, principal, tenantID, permission) {
		return domain.Principal{}, false
	}
	c.Set(principalContextKey, principal)
	return principal, true
}

// authorizeTenant re-checks a permission once the owning tenant of a loaded
// resource is known.
func (s *Server) authorizeTenant(c *gin.Context, principal domain.Principal, tenantID, permission string) bool {
	if s.cfg.AuthMode == "none" {
		return true
	}
	return s.authorize(c, principal, tenantID, permission)
}

func (s *Server) authorize(c *gin.Context, principal domain.Principal, tenantID, permission string) bool {
	if s.authorizer == nil {
		return true
	}
	if err := s.authorizer.Require(principal, tenantID, permission); err != nil {
		writeAuthzError(c, err)
		return false
	}
	return true
}

func (s *Server) adminKeyMatches(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		return false
	}
	key := strings.TrimSpace(c.GetHeader("X-Admin-Key"))
	return key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) == 1
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

// authorizeSigner resolves the signer id a request acts as, defaulting to the
// caller's subject, and rejects acting as somebody else.
func (s *Server) authorizeSigner(c *gin.Context, principal domain.Principal, tenantID, requested, permission string) (string, bool) {
	signerID := strings.TrimSpace(requested)
	if signerID == "" {
		signerID = principal.Subject
	}
	if s.cfg.AuthMode == "none" || s.authorizer == nil {
		return signerID, true
	}
	if err := s.authorizer.RequireSigner(principal, tenantID, signerID, permission); err != nil {
		writeAuthzError(c, err)
		return "", false
	}
	return signerID, true
}

// signatureAccess re-checks permission against the tenant of each signature
// the verification service loads.
func (s *Server) signatureAccess(principal domain.Principal, permission string) usecase.SignatureAccess {
	if s.cfg.AuthMode == "none" || s.authorizer == nil {
		return nil
	}
	return func(sig domain.Signature) error {
		return s.authorizer.Require(principal, sig.Document.TenantID, permission)
	}
}

// actorID prefers the authenticated subject over a caller-supplied name.
func actorID(principal domain.Principal, fallback string) string {
	if principal.Subject != "" {
		return principal.Subject
	}
	return strings.TrimSpace(fallback)
}

func writeAuthzError(c *gin.Context, err error) {
	if authz, ok := rbac.IsAuthzError(err); ok {
		writeErrorCode(c, http.StatusForbidden, authz.Code, "forbidden")
		return
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
}
