package jwt

import (
	"context"
	"errors"
	"strings"
	"time"

	"docsign/internal/config"
	"docsign/internal/domain"

	gojwt "github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

type Claims struct {
	Name     string   `json:"name,omitempty"`
	TenantID string   `json:"tenant_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Scope    string   `json:"scope,omitempty"`
	gojwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens issued with a shared secret.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

type Option func(*Authenticator)

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAuthenticator(cfg config.Config, opts ...Option) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	auth := &Authenticator{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.JWTIssuer),
		leeway: defaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(auth)
	}
	return auth, nil
}

func (a *Authenticator) Authenticate(ctx context.Context, bearerToken string) (domain.Principal, error) {
	if a == nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	tokenString := strings.TrimSpace(bearerToken)
	if tokenString == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	parserOpts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithLeeway(a.leeway),
		gojwt.WithTimeFunc(a.now),
		gojwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, gojwt.WithIssuer(a.issuer))
	}
	var claims Claims
	token, err := gojwt.ParseWithClaims(tokenString, &claims, func(*gojwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil || !token.Valid {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if claims.Subject == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return principalFromClaims(claims), nil
}

// Issue signs a token for the given principal. Used by the CLI and tests.
func (a *Authenticator) Issue(principal domain.Principal, ttl time.Duration) (string, error) {
	if a == nil {
		return "", errors.New("authenticator is nil")
	}
	now := a.now()
	claims := Claims{
		Name:     principal.Name,
		TenantID: principal.TenantID,
		Roles:    principal.Roles,
		Scope:    strings.Join(principal.Scopes, " "),
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   principal.Subject,
			Issuer:    a.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func principalFromClaims(claims Claims) domain.Principal {
	return domain.Principal{
		Subject:  claims.Subject,
		Name:     claims.Name,
		TenantID: claims.TenantID,
		Roles:    dedupeStrings(claims.Roles),
		Scopes:   dedupeStrings(strings.Fields(claims.Scope)),
	}
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
