// Package auth runs the interactive login flow: it opens the provider
// popup, collects the identity token, resolves the user's salt and the
// current epoch, and assembles a ready-to-sign session.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("auth: malformed identity token")

// IdentityToken is the client-side view of a provider-issued token. The
// payload is decoded without signature verification here; the backend
// verifies signatures before trusting any claim.
type IdentityToken struct {
	Raw       string
	Subject   string
	Issuer    string
	Audience  string
	Email     string
	Nonce     string
	ExpiresAt time.Time
}

// ParseIdentityToken decodes the claims of a compact JWT. Tokens without a
// subject or issuer are rejected: the rest of the flow keys on both.
func ParseIdentityToken(raw string) (IdentityToken, error) {
	var claims struct {
		Email string `json:"email"`
		Nonce string `json:"nonce"`
		jwt.RegisteredClaims
	}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return IdentityToken{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if claims.Subject == "" {
		return IdentityToken{}, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	if claims.Issuer == "" {
		return IdentityToken{}, fmt.Errorf("%w: missing issuer", ErrMalformedToken)
	}
	tok := IdentityToken{
		Raw:     raw,
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Email:   claims.Email,
		Nonce:   claims.Nonce,
	}
	if len(claims.Audience) > 0 {
		tok.Audience = claims.Audience[0]
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok, nil
}
