package rbac

import (
	"errors"
	"strings"

	"docsign/internal/domain"
)

// Roles carried in a principal's roles claim.
const (
	RoleAdmin    = "docsign_admin"
	RoleSigner   = "docsign_signer"
	RoleVerifier = "docsign_verifier"
)

// ScopeAll grants every permission, including the admin ones.
const ScopeAll = "admin:*"

// Permissions checked by the HTTP adapter.
const (
	PermCertificatesRead  = "certificates:read"
	PermCertificatesWrite = "certificates:write"
	PermSignaturesRead    = "signatures:read"
	PermSignaturesWrite   = "signatures:write"
	PermWorkflowsRead     = "workflows:read"
	PermWorkflowsWrite    = "workflows:write"
	PermVerify            = "signatures:verify"
	PermAdminRevoke       = "admin:revoke"
	PermAdminSweep        = "admin:sweep"
	PermAdminAudit        = "admin:audit"
)

// Codes reported in AuthzError.
const (
	CodeMissingRole    = "MISSING_ROLE"
	CodeMissingScope   = "MISSING_SCOPE"
	CodeTenantMismatch = "TENANT_MISMATCH"
	CodeSignerMismatch = "SIGNER_MISMATCH"
)

var defaultRolePermissions = map[string][]string{
	RoleSigner: {
		PermCertificatesRead, PermCertificatesWrite,
		PermSignaturesRead, PermSignaturesWrite,
		PermWorkflowsRead, PermWorkflowsWrite,
	},
	RoleVerifier: {PermCertificatesRead, PermSignaturesRead, PermVerify},
}

type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}

func forbidden(code string) error {
	return &AuthzError{Code: code, Err: domain.ErrForbidden}
}

// Authorizer grants a permission through a role or a scope. Scopes may name
// the permission itself or its resource wildcard ("signatures:*").
type Authorizer struct {
	roles map[string]map[string]struct{}
}

func NewAuthorizer() *Authorizer {
	roles := make(map[string]map[string]struct{}, len(defaultRolePermissions))
	for role, perms := range defaultRolePermissions {
		set := make(map[string]struct{}, len(perms))
		for _, perm := range perms {
			set[perm] = struct{}{}
		}
		roles[role] = set
	}
	return &Authorizer{roles: roles}
}

// Require checks permission within tenantID. An empty tenantID skips the
// tenant check; callers re-check once the owning tenant is loaded.
func (a *Authorizer) Require(principal domain.Principal, tenantID string, permission string) error {
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	if IsAdmin(principal) {
		return nil
	}
	if strings.HasPrefix(permission, "admin:") {
		return forbidden(CodeMissingRole)
	}
	if tenantID != "" && tenantID != principal.TenantID {
		return forbidden(CodeTenantMismatch)
	}
	if !a.grants(principal, permission) {
		return forbidden(CodeMissingScope)
	}
	return nil
}

// RequireSigner is Require plus ownership: a caller acts only as its own
// signer id. Admins may act on behalf of any signer.
func (a *Authorizer) RequireSigner(principal domain.Principal, tenantID, signerID, permission string) error {
	if err := a.Require(principal, tenantID, permission); err != nil {
		return err
	}
	if signerID == principal.Subject || IsAdmin(principal) {
		return nil
	}
	return forbidden(CodeSignerMismatch)
}

func (a *Authorizer) grants(principal domain.Principal, permission string) bool {
	for _, role := range principal.Roles {
		if _, ok := a.roles[role][permission]; ok {
			return true
		}
	}
	resource, _, _ := strings.Cut(permission, ":")
	wildcard := resource + ":*"
	for _, scope := range principal.Scopes {
		if scope == permission || scope == wildcard {
			return true
		}
	}
	return false
}

func IsAdmin(principal domain.Principal) bool {
	for _, role := range principal.Roles {
		if role == RoleAdmin {
			return true
		}
	}
	for _, scope := range principal.Scopes {
		if scope == ScopeAll {
			return true
		}
	}
	return false
}
