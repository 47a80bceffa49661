package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/core"
)

var (
	// ErrAuthMissing is returned when no credential was presented.
	ErrAuthMissing = errors.New("authentication token missing")
	// ErrAuthInvalid is returned when the identity provider rejects the credential.
	ErrAuthInvalid = errors.New("authentication token invalid")
)

// Verifier checks a bearer credential with the identity provider.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*VerifiedToken, error)
}

// Gateway authenticates connections before they reach the hub.
type Gateway struct {
	verifier Verifier
	log      *zerolog.Logger
}

// NewGateway creates a gateway that delegates verification to v.
func NewGateway(v Verifier, logger *zerolog.Logger) *Gateway {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Gateway{verifier: v, log: logger}
}

// Authenticate verifies credential and returns the identity to bind to the connection.
// The name hint is the token's display name, falling back to its email.
func (g *Gateway) Authenticate(ctx context.Context, credential string) (core.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return core.Identity{}, ErrAuthMissing
	}

	verified, err := g.verifier.VerifyToken(ctx, credential)
	if err != nil {
		g.log.Debug().Err(err).Msg("token rejected")
		return core.Identity{}, ErrAuthInvalid
	}

	hint := verified.Name
	if hint == "" {
		hint = verified.Email
	}
	return core.Identity{UID: verified.UID, NameHint: hint}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Code maps an authentication error to its wire error code.
func Code(err error) string {
	if errors.Is(err, ErrAuthMissing) {
		return core.ErrCodeAuthMissing
	}
	return core.ErrCodeAuthInvalid
}
