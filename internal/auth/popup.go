package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
)

var (
	ErrPopupBlocked    = errors.New("auth: popup blocked")
	ErrAuthTimeout     = errors.New("auth: timed out waiting for provider response")
	ErrProviderDenied  = errors.New("auth: provider rejected login")
	ErrLoginInFlight   = errors.New("auth: a login attempt is already in progress")
	ErrUnknownProvider = errors.New("auth: unknown provider")
)

// DefaultPopupTimeout bounds how long a login waits for the provider window
// to deliver a token before the attempt is abandoned.
const DefaultPopupTimeout = 120 * time.Second

// Opener launches the provider authorization page in a separate window.
// Implementations report an error when the environment refuses to open one.
type Opener interface {
	Open(authURL string) error
}

// Message is what the provider window posts back after the user finishes
// or cancels the consent screen. Exactly one of the fields is set.
type Message struct {
	IDToken string `json:"id_token,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ProviderConfig identifies the application to a single OAuth provider.
type ProviderConfig struct {
	AuthEndpoint string
	ClientID     string
	RedirectURL  string
}

// Coordinator serializes interactive logins. At most one popup is awaited
// at a time, and only messages from the configured origin are accepted.
type Coordinator struct {
	opener    Opener
	origin    string
	timeout   time.Duration
	providers map[string]ProviderConfig

	mu      sync.Mutex
	pending chan Message
}

type CoordinatorOption func(*Coordinator)

// WithPopupTimeout overrides the provider response deadline.
func WithPopupTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator builds a coordinator that accepts responses only from
// trustedOrigin. Provider keys are lowercase names such as "google".
func NewCoordinator(opener Opener, trustedOrigin string, providers map[string]ProviderConfig, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		opener:    opener,
		origin:    trustedOrigin,
		timeout:   DefaultPopupTimeout,
		providers: providers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login opens the consent popup for the named provider and blocks until a
// token arrives, the user cancels, the deadline passes, or ctx is done.
func (c *Coordinator) Login(ctx context.Context, provider string) (IdentityToken, error) {
	cfg, ok := c.providers[provider]
	if !ok {
		return IdentityToken{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	nonce, err := freshNonce()
	if err != nil {
		return IdentityToken{}, err
	}

	ch, err := c.claimSlot()
	if err != nil {
		return IdentityToken{}, err
	}
	defer c.releaseSlot()

	if err := c.opener.Open(authorizeURL(cfg, nonce)); err != nil {
		return IdentityToken{}, fmt.Errorf("%w: %w", ErrPopupBlocked, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case msg := <-ch:
		if msg.Error != "" {
			return IdentityToken{}, fmt.Errorf("%w: %s", ErrProviderDenied, msg.Error)
		}
		return ParseIdentityToken(msg.IDToken)
	case <-timer.C:
		return IdentityToken{}, ErrAuthTimeout
	case <-ctx.Done():
		return IdentityToken{}, ctx.Err()
	}
}

// Deliver hands a provider response to the waiting login, if any. Messages
// from any other origin are dropped; the return value reports acceptance.
func (c *Coordinator) Deliver(origin string, msg Message) bool {
	if origin != c.origin {
		return false
	}
	c.mu.Lock()
	ch := c.pending
	c.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (c *Coordinator) claimSlot() (chan Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return nil, ErrLoginInFlight
	}
	c.pending = make(chan Message, 1)
	return c.pending, nil
}

func (c *Coordinator) releaseSlot() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

func authorizeURL(cfg ProviderConfig, nonce string) string {
	q := url.Values{}
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", cfg.RedirectURL)
	q.Set("response_type", "id_token")
	q.Set("scope", "openid email")
	q.Set("nonce", nonce)
	return cfg.AuthEndpoint + "?" + q.Encode()
}

func freshNonce() (string, error) {
	var buf [20]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("auth: generate nonce: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
