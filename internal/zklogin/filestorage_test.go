package zklogin

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestFileStorageKeySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")

	storage, err := NewFileStorage(path, "storage-secret")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	before, err := NewEphemeralKeyStore(storage).LoadOrCreate()
	if err != nil {
		t.Fatalf("load key: %v", err)
	}

	reopened, err := NewFileStorage(path, "storage-secret")
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	after, err := NewEphemeralKeyStore(reopened).LoadOrCreate()
	if err != nil {
		t.Fatalf("load key after reopen: %v", err)
	}
	if !bytes.Equal(before.PublicKey(), after.PublicKey()) {
		t.Fatal("key must survive a storage reopen")
	}
}

func TestFileStorageWrongSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.enc")
	storage, err := NewFileStorage(path, "storage-secret")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	if err := storage.Set(StorageKey, "value"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := NewFileStorage(path, "other-secret"); err == nil {
		t.Fatal("expected decryption failure with the wrong secret")
	}
}

func TestFileStorageDelete(t *testing.T) {
	storage, err := NewFileStorage(filepath.Join(t.TempDir(), "session.enc"), "storage-secret")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	if err := storage.Set(StorageKey, "value"); err != nil {
		t.Fatalf("set: %v", err)
	}
	storage.Delete(StorageKey)
	if _, ok := storage.Get(StorageKey); ok {
		t.Fatal("deleted entry must be gone")
	}
}
