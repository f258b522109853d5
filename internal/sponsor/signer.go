// Package sponsor holds the backend gas account: a mnemonic-derived ed25519
// key that pays for user transactions and a gateway that submits them.
package sponsor

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

const signingKeyInfo = "warranchain/sponsor/signing/v1"

// ed25519Flag is the scheme flag prefixed to plain ed25519 signatures and
// to the public key when deriving the account address.
const ed25519Flag = byte(0x00)

var transactionIntent = []byte{0, 0, 0}

var ErrBadMnemonic = errors.New("sponsor: invalid mnemonic")

// Signer is the sponsor account. The key never leaves the process: only
// the derived address and produced signatures are exposed.
type Signer struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

// FromMnemonic derives the sponsor signing key from a BIP-39 mnemonic.
// Derivation is deterministic so the account survives restarts.
func FromMnemonic(mnemonic string) (*Signer, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrBadMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	reader := hkdf.New(sha256.New, seed, nil, []byte(signingKeyInfo))
	keySeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, keySeed); err != nil {
		return nil, fmt.Errorf("sponsor: derive signing key: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(keySeed)
	pub := priv.Public().(ed25519.PublicKey)

	flagged := append([]byte{ed25519Flag}, pub...)
	sum := blake2b.Sum256(flagged)
	return &Signer{
		priv:    priv,
		pub:     pub,
		address: "0x" + hex.EncodeToString(sum[:]),
	}, nil
}

// Address returns the sponsor's ledger address.
func (s *Signer) Address() string { return s.address }

// Sign produces the flagged, base64-serialized signature over txBytes that
// the ledger verifies for the gas owner.
func (s *Signer) Sign(txBytes []byte) string {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)

	sig := ed25519.Sign(s.priv, digest[:])
	out := make([]byte, 0, 1+len(sig)+len(s.pub))
	out = append(out, ed25519Flag)
	out = append(out, sig...)
	out = append(out, s.pub...)
	return base64.StdEncoding.EncodeToString(out)
}

// Verify reports whether serialized is a valid sponsor signature over
// txBytes. Used by tests and by submission sanity checks.
func (s *Signer) Verify(serialized string, txBytes []byte) bool {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil || len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize || raw[0] != ed25519Flag {
		return false
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])

	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	digest := blake2b.Sum256(msg)
	return ed25519.Verify(pub, digest[:], sig)
}
