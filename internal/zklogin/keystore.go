package zklogin

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"sync"
)

// StorageKey is the fixed session-storage entry holding the encoded
// ephemeral secret key.
const StorageKey = "warranchain_ephemeral_key"

// SessionStorage is the session-scoped string store backing the ephemeral
// key. The browser build maps it onto window.sessionStorage; server-side
// tooling uses the in-memory or encrypted-file implementations.
type SessionStorage interface {
	Get(name string) (string, bool)
	Set(name, value string) error
	Delete(name string)
}

// MemoryStorage is a SessionStorage for a single process lifetime.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok
}

func (m *MemoryStorage) Set(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}

func (m *MemoryStorage) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
}

// EphemeralKeyStore owns the session's short-lived signing keypair. Within
// one session, LoadOrCreate always hands back the same key until Clear, so a
// proof bound to the public key stays valid for later transactions.
type EphemeralKeyStore struct {
	mu      sync.Mutex
	storage SessionStorage
	cached  *EphemeralKey
}

func NewEphemeralKeyStore(storage SessionStorage) *EphemeralKeyStore {
	return &EphemeralKeyStore{storage: storage}
}

// LoadOrCreate returns the session keypair, generating and persisting one if
// none exists. A corrupted stored encoding is not an error: the entry is
// silently replaced with a fresh key.
func (s *EphemeralKeyStore) LoadOrCreate() (*EphemeralKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}
	if encoded, ok := s.storage.Get(StorageKey); ok {
		if key, err := decodeEphemeralKey(encoded); err == nil {
			s.cached = key
			return key, nil
		}
		// Corrupted or incompatible encoding: regenerate below and overwrite.
	}
	key, err := generateEphemeralKey()
	if err != nil {
		return nil, err
	}
	if err := s.storage.Set(StorageKey, key.encodeSecret()); err != nil {
		return nil, err
	}
	s.cached = key
	return key, nil
}

// Clear removes the stored key. The next LoadOrCreate generates a new pair.
func (s *EphemeralKeyStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage.Delete(StorageKey)
	s.cached = nil
}

// EphemeralKey is an ed25519 keypair valid only inside the current session
// window bounded by max-epoch.
type EphemeralKey struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func generateEphemeralKey() (*EphemeralKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &EphemeralKey{priv: priv, pub: pub}, nil
}

func decodeEphemeralKey(encoded string) (*EphemeralKey, error) {
	seed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, ErrCorruptKeyEncoding
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &EphemeralKey{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (k *EphemeralKey) encodeSecret() string {
	return base64.StdEncoding.EncodeToString(k.priv.Seed())
}

func (k *EphemeralKey) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), k.pub...)
}

// ExtendedPublicKey is the scheme-flagged public key encoding the prover
// expects: flag byte followed by the raw ed25519 public key, base64.
func (k *EphemeralKey) ExtendedPublicKey() string {
	buf := make([]byte, 0, 1+ed25519.PublicKeySize)
	buf = append(buf, ed25519Flag)
	buf = append(buf, k.pub...)
	return base64.StdEncoding.EncodeToString(buf)
}

func (k *EphemeralKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}
