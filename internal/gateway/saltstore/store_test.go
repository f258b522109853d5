package saltstore

import (
	"errors"
	"path/filepath"
	"testing"
)

const testSecret = "store-secret"

func TestSaltStableAcrossCallsAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salts.enc")
	store, err := Open(path, testSecret)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	first, err := store.SaltFor("sub-1")
	if err != nil {
		t.Fatalf("mint salt: %v", err)
	}
	if first == "" {
		t.Fatal("salt must not be empty")
	}
	again, err := store.SaltFor("sub-1")
	if err != nil {
		t.Fatalf("reload salt: %v", err)
	}
	if again != first {
		t.Fatalf("salt changed within one store: %q vs %q", first, again)
	}

	reopened, err := Open(path, testSecret)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	persisted, err := reopened.SaltFor("sub-1")
	if err != nil {
		t.Fatalf("salt after reopen: %v", err)
	}
	if persisted != first {
		t.Fatalf("salt changed across restart: %q vs %q", first, persisted)
	}
}

func TestDistinctSubjectsDistinctSalts(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "salts.enc"), testSecret)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	a, err := store.SaltFor("sub-a")
	if err != nil {
		t.Fatalf("salt a: %v", err)
	}
	b, err := store.SaltFor("sub-b")
	if err != nil {
		t.Fatalf("salt b: %v", err)
	}
	if a == b {
		t.Fatal("different subjects must get different salts")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 stored salts, got %d", store.Len())
	}
}

func TestOpenRequiresSecret(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "salts.enc"), ""); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}

func TestOpenRejectsWrongSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salts.enc")
	store, err := Open(path, testSecret)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.SaltFor("sub-1"); err != nil {
		t.Fatalf("mint salt: %v", err)
	}
	if _, err := Open(path, "wrong-secret"); err == nil {
		t.Fatal("expected decryption failure with the wrong secret")
	}
}
