package zklogin

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const (
	// zkLoginFlag is the signature-scheme flag for zkLogin accounts.
	zkLoginFlag = byte(0x05)
	// ed25519Flag is the scheme flag for plain ed25519 signatures.
	ed25519Flag = byte(0x00)

	addressSeedInfo = "warranchain/zklogin/address-seed/v1"
)

// AddressRequest carries the identity-token claims and salt an address is
// derived from. MaxEpoch rides along for SDKs that bind derivation to the
// session window.
type AddressRequest struct {
	RawToken string
	Issuer   string
	Subject  string
	Audience string
	Salt     string
	Provider string
	MaxEpoch uint64
}

// ProviderSDK computes candidate on-chain addresses for an identity. The
// hosted auth provider is one implementation; LocalSDK is the self-contained
// one used when no external service is configured.
type ProviderSDK interface {
	DeriveAddresses(ctx context.Context, req AddressRequest) ([]string, error)
}

// DeriveAddress selects the canonical address: the first candidate the SDK
// returns. Zero candidates is a hard failure for the login attempt.
func DeriveAddress(ctx context.Context, sdk ProviderSDK, req AddressRequest) (string, error) {
	candidates, err := sdk.DeriveAddresses(ctx, req)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", ErrAddressDerivation
	}
	return candidates[0], nil
}

// LocalSDK derives addresses deterministically from {subject, audience, salt}
// and the issuer, mirroring the provider's address format: a scheme flag and
// the issuer bytes hashed together with the address seed.
type LocalSDK struct{}

func (LocalSDK) DeriveAddresses(_ context.Context, req AddressRequest) ([]string, error) {
	if req.Subject == "" || req.Salt == "" {
		return nil, nil
	}
	seed := AddressSeed(req.Subject, req.Audience, req.Salt)
	buf := make([]byte, 0, 2+len(req.Issuer)+len(seed))
	buf = append(buf, zkLoginFlag)
	buf = append(buf, byte(len(req.Issuer)))
	buf = append(buf, req.Issuer...)
	buf = append(buf, seed...)
	sum := blake2b.Sum256(buf)
	return []string{"0x" + hex.EncodeToString(sum[:])}, nil
}

// AddressSeed mixes the salt into the subject/audience pair so the same OAuth
// identity does not trivially reveal the on-chain address.
func AddressSeed(subject, audience, salt string) []byte {
	payload := make([]byte, 0, len(addressSeedInfo)+len(subject)+len(audience)+len(salt)+3)
	payload = append(payload, addressSeedInfo...)
	payload = append(payload, 0)
	payload = append(payload, subject...)
	payload = append(payload, 0)
	payload = append(payload, audience...)
	payload = append(payload, 0)
	payload = append(payload, salt...)
	sum := blake2b.Sum256(payload)
	return sum[:]
}
