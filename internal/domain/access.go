package domain

import (
	"context"
	"time"
)

// Principal is the authenticated caller of an operation.
type Principal struct {
	Subject  string
	Name     string
	TenantID string
	Roles    []string
	Scopes   []string
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

type Authorizer interface {
	Require(principal Principal, tenantID string, permission string) error
	// RequireSigner additionally rejects a principal acting as another signer.
	RequireSigner(principal Principal, tenantID, signerID, permission string) error
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
