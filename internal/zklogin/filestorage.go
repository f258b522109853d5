package zklogin

import (
	"encoding/json"
	"errors"
	"io/fs"
	"sync"

	"warranchain/go-backend/internal/securestore"
)

// FileStorage is a SessionStorage persisted through an encrypted envelope,
// for daemon-side tooling that needs a key surviving process restarts.
// Browser sessions use MemoryStorage instead.
type FileStorage struct {
	path   string
	secret string

	mu     sync.Mutex
	values map[string]string
}

func NewFileStorage(path, secret string) (*FileStorage, error) {
	if secret == "" {
		return nil, errors.New("zklogin: file storage requires a secret")
	}
	s := &FileStorage{
		path:   path,
		secret: secret,
		values: make(map[string]string),
	}
	raw, err := securestore.ReadFile(path, secret)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.values); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStorage) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *FileStorage) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return s.persistLocked()
}

func (s *FileStorage) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
	// A failed delete-persist leaves the old entry on disk; the next Set
	// rewrites the file.
	_ = s.persistLocked()
}

func (s *FileStorage) persistLocked() error {
	raw, err := json.Marshal(s.values)
	if err != nil {
		return err
	}
	return securestore.WriteFile(s.path, s.secret, raw)
}
