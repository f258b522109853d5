package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"warranchain/go-backend/internal/zklogin"
)

// maxEpochHorizon is how many epochs past the current one an ephemeral key
// stays valid. Current epoch 150 yields a session fenced at epoch 152.
const maxEpochHorizon = 2

// SaltEpochSource resolves the per-user salt and the current ledger epoch.
// Implemented by resolver.Client.
type SaltEpochSource interface {
	FetchSalt(ctx context.Context, idToken string) (string, error)
	FetchLatestEpoch(ctx context.Context) (uint64, error)
}

// ProofCache is the per-session proof store cleared on logout.
// Implemented by prover.CachingFetcher.
type ProofCache interface {
	Clear()
}

// Session is the product of a completed login. It is immutable once built;
// a new login replaces it wholesale.
type Session struct {
	Address  string
	UserType string
	Email    string
	MaxEpoch uint64
	Signer   *zklogin.TransactionSigner
}

// Flow drives a full login: popup, token, salt, epoch, address, signer.
// A failure at any step leaves no session behind.
type Flow struct {
	coordinator *Coordinator
	source      SaltEpochSource
	keys        *zklogin.EphemeralKeyStore
	sdk         zklogin.ProviderSDK
	prover      zklogin.ProofFetcher
	cache       ProofCache
	log         *slog.Logger

	mu      sync.Mutex
	session *Session
}

type FlowOption func(*Flow)

// WithProofCache registers the proof cache to drop on logout.
func WithProofCache(c ProofCache) FlowOption {
	return func(f *Flow) { f.cache = c }
}

func NewFlow(coordinator *Coordinator, source SaltEpochSource, keys *zklogin.EphemeralKeyStore, sdk zklogin.ProviderSDK, prover zklogin.ProofFetcher, log *slog.Logger, opts ...FlowOption) *Flow {
	if log == nil {
		log = slog.Default()
	}
	f := &Flow{
		coordinator: coordinator,
		source:      source,
		keys:        keys,
		sdk:         sdk,
		prover:      prover,
		log:         log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Login authenticates with the named provider and installs the resulting
// session. Overlapping calls fail with ErrLoginInFlight from the popup
// coordinator; the session is only replaced after every step succeeds.
func (f *Flow) Login(ctx context.Context, provider, userType string) (*Session, error) {
	token, err := f.coordinator.Login(ctx, provider)
	if err != nil {
		return nil, err
	}
	f.log.Info("identity token received", "provider", provider, "sub", token.Subject)

	salt, err := f.source.FetchSalt(ctx, token.Raw)
	if err != nil {
		return nil, err
	}
	epoch, err := f.source.FetchLatestEpoch(ctx)
	if err != nil {
		return nil, err
	}
	maxEpoch := epoch + maxEpochHorizon

	if _, err := f.keys.LoadOrCreate(); err != nil {
		return nil, fmt.Errorf("auth: prepare ephemeral key: %w", err)
	}

	address, err := zklogin.DeriveAddress(ctx, f.sdk, zklogin.AddressRequest{
		RawToken: token.Raw,
		Issuer:   token.Issuer,
		Subject:  token.Subject,
		Audience: token.Audience,
		Salt:     salt,
		Provider: provider,
		MaxEpoch: maxEpoch,
	})
	if err != nil {
		return nil, err
	}

	seed := zklogin.AddressSeed(token.Subject, token.Audience, salt)
	session := &Session{
		Address:  address,
		UserType: userType,
		Email:    token.Email,
		MaxEpoch: maxEpoch,
		Signer:   zklogin.NewTransactionSigner(f.keys, f.prover, nil, token.Raw, salt, seed, maxEpoch),
	}

	f.mu.Lock()
	f.session = session
	f.mu.Unlock()
	f.log.Info("login complete", "address", address, "user_type", userType, "max_epoch", maxEpoch)
	return session, nil
}

// Session returns the active session, or nil when logged out.
func (f *Flow) Session() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// Logout drops the session, the stored ephemeral key and any cached proofs.
// Safe to call when already logged out.
func (f *Flow) Logout() {
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	f.keys.Clear()
	if f.cache != nil {
		f.cache.Clear()
	}
	f.log.Info("logged out")
}
