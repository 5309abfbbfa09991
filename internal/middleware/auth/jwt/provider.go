// Package jwt authenticates operators of the admin API with HS256 bearer
// tokens.
package jwt

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dreamproxy/pkg/errors"
)

// Config represents JWT provider configuration
type Config struct {
	// Secret is the HMAC key tokens are signed with
	Secret string
	// Issuer is the expected token issuer (optional)
	Issuer string
	// Leeway tolerates clock skew on exp/nbf
	Leeway time.Duration
}

// AuthInfo contains the authenticated operator
type AuthInfo struct {
	Subject   string
	ExpiresAt *time.Time
}

// Provider validates and issues admin tokens
type Provider struct {
	config Config
	key    []byte
	parser *jwt.Parser
}

// NewProvider creates a JWT provider. An empty secret is rejected so a
// misconfigured admin API can never accept unsigned tokens.
func NewProvider(config Config) (*Provider, error) {
	if config.Secret == "" {
		return nil, errors.NewError(errors.ErrorTypeConfiguration, "HMAC signing requires secret")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}

	return &Provider{
		config: config,
		key:    []byte(config.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Authenticate validates a token and returns its subject
func (p *Provider) Authenticate(ctx context.Context, token string) (*AuthInfo, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := p.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.key, nil
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeUnauthorized, "invalid token").WithCause(err)
	}
	if !parsed.Valid {
		return nil, errors.NewError(errors.ErrorTypeUnauthorized, "token validation failed")
	}
	if claims.Subject == "" {
		return nil, errors.NewError(errors.ErrorTypeUnauthorized, "missing subject claim")
	}

	info := &AuthInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		info.ExpiresAt = &t
	}
	return info, nil
}

// Issue signs a token for subject valid for ttl
func (p *Provider) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    p.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
}
