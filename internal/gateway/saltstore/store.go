// Package saltstore persists the per-user salts that anchor address
// derivation. Losing a salt loses access to the derived account, so the
// store is written through an encrypted envelope with atomic replacement.
package saltstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"warranchain/go-backend/internal/securestore"
)

var ErrNoSecret = errors.New("saltstore: encryption secret not configured")

const saltBytes = 12

// Store maps a provider subject to its stable salt. Salts are minted on
// first sight and never change afterwards.
type Store struct {
	path   string
	secret string

	mu    sync.Mutex
	salts map[string]string
}

// Open loads the store at path, creating an empty one when no file exists
// yet. The secret encrypts the file at rest.
func Open(path, secret string) (*Store, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	s := &Store{
		path:   path,
		secret: secret,
		salts:  make(map[string]string),
	}
	raw, err := securestore.ReadFile(path, secret)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("saltstore: open %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.salts); err != nil {
		return nil, fmt.Errorf("saltstore: decode %s: %w", path, err)
	}
	return s, nil
}

// SaltFor returns the salt for a subject, minting and persisting a fresh one
// on first use.
func (s *Store) SaltFor(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("saltstore: empty subject")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if salt, ok := s.salts[subject]; ok {
		return salt, nil
	}
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("saltstore: mint salt: %w", err)
	}
	salt := base64.RawURLEncoding.EncodeToString(buf)

	s.salts[subject] = salt
	if err := s.persistLocked(); err != nil {
		delete(s.salts, subject)
		return "", err
	}
	return salt, nil
}

// Len reports how many subjects have salts. Used by health reporting.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.salts)
}

func (s *Store) persistLocked() error {
	raw, err := json.Marshal(s.salts)
	if err != nil {
		return fmt.Errorf("saltstore: encode: %w", err)
	}
	if err := securestore.WriteFile(s.path, s.secret, raw); err != nil {
		return fmt.Errorf("saltstore: persist %s: %w", s.path, err)
	}
	return nil
}
