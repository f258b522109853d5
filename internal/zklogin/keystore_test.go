package zklogin

import (
	"bytes"
	"testing"
)

func TestLoadOrCreateReturnsStableKey(t *testing.T) {
	store := NewEphemeralKeyStore(NewMemoryStorage())

	first, err := store.LoadOrCreate()
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := store.LoadOrCreate()
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !bytes.Equal(first.PublicKey(), second.PublicKey()) {
		t.Fatal("repeated LoadOrCreate must return the same public key")
	}
}

func TestLoadOrCreateSurvivesNewStoreOverSameStorage(t *testing.T) {
	storage := NewMemoryStorage()

	first, err := NewEphemeralKeyStore(storage).LoadOrCreate()
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	// A new store instance over the same session storage (popup closed and
	// reopened within the session) must reconstruct the identical keypair.
	second, err := NewEphemeralKeyStore(storage).LoadOrCreate()
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !bytes.Equal(first.PublicKey(), second.PublicKey()) {
		t.Fatal("key must survive store re-construction over the same storage")
	}
}

func TestLoadOrCreateRecoversFromCorruption(t *testing.T) {
	storage := NewMemoryStorage()
	store := NewEphemeralKeyStore(storage)

	for _, corrupted := range []string{"not-base64!!!", "c2hvcnQ=", ""} {
		if err := storage.Set(StorageKey, corrupted); err != nil {
			t.Fatalf("seed corruption: %v", err)
		}
		store.cached = nil
		key, err := store.LoadOrCreate()
		if err != nil {
			t.Fatalf("corrupted encoding %q must not surface an error: %v", corrupted, err)
		}
		if key == nil || len(key.PublicKey()) == 0 {
			t.Fatal("recovery must yield a usable keypair")
		}
		if stored, _ := storage.Get(StorageKey); stored == corrupted {
			t.Fatal("corrupted entry must be overwritten")
		}
	}
}

func TestClearForcesNewKey(t *testing.T) {
	storage := NewMemoryStorage()
	store := NewEphemeralKeyStore(storage)

	before, err := store.LoadOrCreate()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	store.Clear()
	if _, ok := storage.Get(StorageKey); ok {
		t.Fatal("Clear must remove the stored key")
	}
	after, err := store.LoadOrCreate()
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if bytes.Equal(before.PublicKey(), after.PublicKey()) {
		t.Fatal("a cleared store must generate a fresh keypair")
	}
}

func TestExtendedPublicKeyCarriesSchemeFlag(t *testing.T) {
	store := NewEphemeralKeyStore(NewMemoryStorage())
	key, err := store.LoadOrCreate()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if key.ExtendedPublicKey() == "" {
		t.Fatal("extended public key must not be empty")
	}
}
