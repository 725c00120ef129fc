// Package jwt provides a JWT authenticator that validates HMAC-signed
// bearer tokens against a shared secret.
package jwt

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/codeloop-dev/codeloop/pkg/auth"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Secret is the HMAC key used to verify token signatures.
	Secret string

	// Issuer is the expected iss claim. If empty, the issuer is not validated.
	Issuer string

	// ScopesClaim is the claim holding authorization scopes as a
	// space-separated string. Default: "scope".
	ScopesClaim string
}

// applyDefaults fills in zero-value fields.
func (c *Config) applyDefaults() {
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
}

// Authenticator validates HS256-signed JWT bearer tokens.
type Authenticator struct {
	config Config
	secret []byte
}

// New creates a JWT authenticator with the given configuration.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	return &Authenticator{
		config: cfg,
		secret: []byte(cfg.Secret),
	}
}

// Authenticate extracts a bearer token from the Authorization header and
// validates it as a JWT.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token present but invalid (expired, wrong issuer, bad signature)
//   - Yes: valid JWT with populated Identity
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Result{Decision: auth.Abstain}
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return auth.Result{Decision: auth.Abstain}
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	// API keys are opaque strings; only compact JWS (three dot-separated
	// segments) is treated as a JWT so the chain can fall through.
	if strings.Count(token, ".") != 2 {
		return auth.Result{Decision: auth.Abstain}
	}

	identity, err := a.validate(token)
	if err != nil {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid token: %w", err)}
	}

	return auth.Result{Decision: auth.Yes, Identity: identity}
}

// validate parses and verifies the token and maps its claims to an identity.
func (a *Authenticator) validate(token string) (*auth.Identity, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithExpirationRequired(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}

	claims := jwtlib.MapClaims{}
	_, err := jwtlib.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("missing sub claim")
	}

	identity := &auth.Identity{Subject: sub}
	if scope, ok := claims[a.config.ScopesClaim].(string); ok && scope != "" {
		identity.Scopes = strings.Fields(scope)
	}

	return identity, nil
}
