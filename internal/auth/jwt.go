package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/educhat/internal/store"
)

// Claims are the identity provider's bearer token claims. Subject carries the uid.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// GenerateToken mints a token the way the identity provider does. Used by tests and dev tooling.
func GenerateToken(cfg *JWTConfig, uid, name, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  name,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a JWT token.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return claims, nil
}

// VerifiedToken is what a successful verification tells us about the caller.
type VerifiedToken struct {
	UID   string
	Name  string
	Email string
}

// JWTProvider is the identity provider client: it verifies bearer tokens and
// reads the provider's user records.
type JWTProvider struct {
	cfg   *JWTConfig
	users store.IdentityStore
}

// NewJWTProvider builds a provider. users may be nil when record lookups are unavailable.
func NewJWTProvider(cfg *JWTConfig, users store.IdentityStore) *JWTProvider {
	return &JWTProvider{cfg: cfg, users: users}
}

// VerifyToken validates tokenString and returns the caller identity.
func (p *JWTProvider) VerifyToken(_ context.Context, tokenString string) (*VerifiedToken, error) {
	claims, err := ValidateToken(p.cfg, tokenString)
	if err != nil {
		return nil, err
	}
	return &VerifiedToken{UID: claims.Subject, Name: claims.Name, Email: claims.Email}, nil
}

// LookupUser returns the provider's user record for uid.
func (p *JWTProvider) LookupUser(ctx context.Context, uid string) (*store.IdentityUser, error) {
	if p.users == nil {
		return nil, fmt.Errorf("identity user %s: %w", uid, store.ErrNotFound)
	}
	return p.users.GetIdentityUser(ctx, uid)
}
