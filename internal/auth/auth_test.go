package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"warranchain/go-backend/internal/zklogin"
	"warranchain/go-backend/pkg/models"
)

const trustedOrigin = "https://app.example.test"

func testProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"google": {
			AuthEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
			ClientID:     "client-1",
			RedirectURL:  trustedOrigin + "/callback",
		},
	}
}

func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

type openerFunc func(string) error

func (f openerFunc) Open(u string) error { return f(u) }

func TestParseIdentityToken(t *testing.T) {
	raw := makeToken(t, map[string]any{
		"sub":   "user-1",
		"iss":   "https://accounts.google.com",
		"aud":   "client-1",
		"email": "user@example.test",
		"nonce": "abc123",
	})
	tok, err := ParseIdentityToken(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tok.Subject != "user-1" || tok.Issuer != "https://accounts.google.com" {
		t.Fatalf("unexpected identity: %+v", tok)
	}
	if tok.Audience != "client-1" || tok.Email != "user@example.test" || tok.Nonce != "abc123" {
		t.Fatalf("unexpected claims: %+v", tok)
	}
	if tok.Raw != raw {
		t.Fatal("raw token must be preserved")
	}
}

func TestParseIdentityTokenRejectsBadInput(t *testing.T) {
	for name, raw := range map[string]string{
		"garbage":         "not-a-token",
		"missing subject": makeToken(t, map[string]any{"iss": "https://accounts.google.com"}),
		"missing issuer":  makeToken(t, map[string]any{"sub": "user-1"}),
	} {
		if _, err := ParseIdentityToken(raw); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("%s: expected ErrMalformedToken, got %v", name, err)
		}
	}
}

func TestLoginUnknownProvider(t *testing.T) {
	c := NewCoordinator(openerFunc(func(string) error { return nil }), trustedOrigin, testProviders())
	if _, err := c.Login(context.Background(), "facebook"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestLoginPopupBlocked(t *testing.T) {
	c := NewCoordinator(openerFunc(func(string) error { return errors.New("window denied") }), trustedOrigin, testProviders())
	if _, err := c.Login(context.Background(), "google"); !errors.Is(err, ErrPopupBlocked) {
		t.Fatalf("expected ErrPopupBlocked, got %v", err)
	}
}

func TestLoginTimesOutWithoutResponse(t *testing.T) {
	c := NewCoordinator(openerFunc(func(string) error { return nil }), trustedOrigin, testProviders(),
		WithPopupTimeout(20*time.Millisecond))
	if _, err := c.Login(context.Background(), "google"); !errors.Is(err, ErrAuthTimeout) {
		t.Fatalf("expected ErrAuthTimeout, got %v", err)
	}
}

func TestDeliverIgnoresForeignOrigin(t *testing.T) {
	c := NewCoordinator(openerFunc(func(string) error { return nil }), trustedOrigin, testProviders(),
		WithPopupTimeout(30*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := c.Login(context.Background(), "google")
		done <- err
	}()

	tok := makeToken(t, map[string]any{"sub": "user-1", "iss": "https://accounts.google.com"})
	deadline := time.After(time.Second)
	for {
		if c.Deliver("https://evil.example.test", Message{IDToken: tok}) {
			t.Fatal("message from a foreign origin must be dropped")
		}
		select {
		case err := <-done:
			if !errors.Is(err, ErrAuthTimeout) {
				t.Fatalf("expected ErrAuthTimeout, got %v", err)
			}
			return
		case <-deadline:
			t.Fatal("login did not finish")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestLoginAcceptsTrustedResponse(t *testing.T) {
	var c *Coordinator
	tok := makeToken(t, map[string]any{"sub": "user-1", "iss": "https://accounts.google.com", "aud": "client-1"})
	c = NewCoordinator(openerFunc(func(string) error {
		go func() {
			for !c.Deliver(trustedOrigin, Message{IDToken: tok}) {
				time.Sleep(time.Millisecond)
			}
		}()
		return nil
	}), trustedOrigin, testProviders())

	got, err := c.Login(context.Background(), "google")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", got.Subject)
	}
}

func TestLoginProviderDenied(t *testing.T) {
	var c *Coordinator
	c = NewCoordinator(openerFunc(func(string) error {
		go func() {
			for !c.Deliver(trustedOrigin, Message{Error: "access_denied"}) {
				time.Sleep(time.Millisecond)
			}
		}()
		return nil
	}), trustedOrigin, testProviders())

	if _, err := c.Login(context.Background(), "google"); !errors.Is(err, ErrProviderDenied) {
		t.Fatalf("expected ErrProviderDenied, got %v", err)
	}
}

func TestOverlappingLoginRejected(t *testing.T) {
	started := make(chan struct{})
	c := NewCoordinator(openerFunc(func(string) error {
		close(started)
		return nil
	}), trustedOrigin, testProviders(), WithPopupTimeout(200*time.Millisecond))

	first := make(chan error, 1)
	go func() {
		_, err := c.Login(context.Background(), "google")
		first <- err
	}()
	<-started

	if _, err := c.Login(context.Background(), "google"); !errors.Is(err, ErrLoginInFlight) {
		t.Fatalf("expected ErrLoginInFlight, got %v", err)
	}
	if err := <-first; !errors.Is(err, ErrAuthTimeout) {
		t.Fatalf("first login should time out, got %v", err)
	}
}

type stubSource struct {
	salt     string
	saltErr  error
	epoch    uint64
	epochErr error
}

func (s stubSource) FetchSalt(context.Context, string) (string, error) {
	return s.salt, s.saltErr
}

func (s stubSource) FetchLatestEpoch(context.Context) (uint64, error) {
	return s.epoch, s.epochErr
}

type stubProver struct{}

func (stubProver) FetchProof(context.Context, zklogin.ProofRequest) (models.ZkProof, error) {
	return models.ZkProof{}, errors.New("prover not reachable in tests")
}

type clearRecorder struct{ cleared int }

func (c *clearRecorder) Clear() { c.cleared++ }

func newTestFlow(t *testing.T, source SaltEpochSource, cache ProofCache) (*Flow, *zklogin.EphemeralKeyStore) {
	t.Helper()
	var c *Coordinator
	tok := makeToken(t, map[string]any{
		"sub":   "user-1",
		"iss":   "https://accounts.google.com",
		"aud":   "client-1",
		"email": "user@example.test",
	})
	c = NewCoordinator(openerFunc(func(string) error {
		go func() {
			for !c.Deliver(trustedOrigin, Message{IDToken: tok}) {
				time.Sleep(time.Millisecond)
			}
		}()
		return nil
	}), trustedOrigin, testProviders())

	keys := zklogin.NewEphemeralKeyStore(zklogin.NewMemoryStorage())
	var opts []FlowOption
	if cache != nil {
		opts = append(opts, WithProofCache(cache))
	}
	return NewFlow(c, source, keys, zklogin.LocalSDK{}, stubProver{}, nil, opts...), keys
}

func TestFlowLogin(t *testing.T) {
	flow, _ := newTestFlow(t, stubSource{salt: "1234567890", epoch: 150}, nil)

	session, err := flow.Login(context.Background(), "google", "customer")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.MaxEpoch != 152 {
		t.Fatalf("expected max epoch 152, got %d", session.MaxEpoch)
	}
	if session.Address == "" || session.Signer == nil {
		t.Fatalf("incomplete session: %+v", session)
	}
	if session.UserType != "customer" || session.Email != "user@example.test" {
		t.Fatalf("unexpected session metadata: %+v", session)
	}
	if flow.Session() != session {
		t.Fatal("flow must expose the installed session")
	}
}

func TestFlowLoginFailureLeavesNoSession(t *testing.T) {
	flow, _ := newTestFlow(t, stubSource{saltErr: errors.New("salt service down")}, nil)

	if _, err := flow.Login(context.Background(), "google", "customer"); err == nil {
		t.Fatal("expected login to fail")
	}
	if flow.Session() != nil {
		t.Fatal("failed login must not install a session")
	}
}

func TestFlowLogout(t *testing.T) {
	cache := &clearRecorder{}
	flow, keys := newTestFlow(t, stubSource{salt: "1234567890", epoch: 150}, cache)

	if _, err := flow.Login(context.Background(), "google", "customer"); err != nil {
		t.Fatalf("login: %v", err)
	}
	before, err := keys.LoadOrCreate()
	if err != nil {
		t.Fatalf("load key: %v", err)
	}

	flow.Logout()
	if flow.Session() != nil {
		t.Fatal("logout must drop the session")
	}
	if cache.cleared != 1 {
		t.Fatalf("expected proof cache cleared once, got %d", cache.cleared)
	}
	after, err := keys.LoadOrCreate()
	if err != nil {
		t.Fatalf("load key after logout: %v", err)
	}
	if before.ExtendedPublicKey() == after.ExtendedPublicKey() {
		t.Fatal("logout must rotate the ephemeral key")
	}
}
