package gateway

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("gateway: identity token rejected")

// VerifiedToken is the claim set the gateway trusts after verification.
type VerifiedToken struct {
	Subject  string
	Issuer   string
	Audience string
	Email    string
}

// TokenVerifier checks a provider-issued identity token. The production
// implementation verifies RS256 signatures against the provider's JWKS.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (VerifiedToken, error)
}

type providerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *providerClaims) toVerified() VerifiedToken {
	out := VerifiedToken{
		Subject: c.Subject,
		Issuer:  c.Issuer,
		Email:   c.Email,
	}
	if len(c.Audience) > 0 {
		out.Audience = c.Audience[0]
	}
	return out
}

// JWKSVerifier validates tokens against the provider's published signing
// keys. Keys are cached and refetched when an unknown key id shows up or
// the cache ages out.
type JWKSVerifier struct {
	jwksURL  string
	issuer   string
	audience string
	httpc    *http.Client
	keyTTL   time.Duration

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func NewJWKSVerifier(jwksURL, issuer, audience string) *JWKSVerifier {
	return &JWKSVerifier{
		jwksURL:  jwksURL,
		issuer:   issuer,
		audience: audience,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		keyTTL:   time.Hour,
		keys:     make(map[string]*rsa.PublicKey),
	}
}

func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (VerifiedToken, error) {
	claims := &providerClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header has no kid")
		}
		return v.keyFor(ctx, kid)
	}, opts...)
	if err != nil {
		return VerifiedToken{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return VerifiedToken{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims.toVerified(), nil
}

func (v *JWKSVerifier) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	key, ok := v.keys[kid]
	stale := time.Since(v.fetched) > v.keyTTL
	v.mu.Unlock()
	if ok && !stale {
		return key, nil
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	key, ok = v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no signing key %q", kid)
	}
	return key, nil
}

func (v *JWKSVerifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks document has no usable keys")
	}

	v.mu.Lock()
	v.keys = keys
	v.fetched = time.Now()
	v.mu.Unlock()
	return nil
}

func rsaKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, errors.New("bad public exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// UnverifiedTokens accepts any well-formed token without a signature check.
// Selected only alongside the fixture ledger for local development.
type UnverifiedTokens struct{}

func (UnverifiedTokens) Verify(_ context.Context, raw string) (VerifiedToken, error) {
	claims := &providerClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return VerifiedToken{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return VerifiedToken{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims.toVerified(), nil
}
