package zklogin

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"

	"golang.org/x/crypto/blake2b"

	"warranchain/go-backend/pkg/models"
)

// transaction bytes are signed over an intent-prefixed digest, never raw.
var transactionIntent = []byte{0, 0, 0}

// SignatureInputs is everything the combiner folds into one composite
// zkLogin signature.
type SignatureInputs struct {
	Proof         models.ZkProof
	AddressSeed   []byte
	MaxEpoch      uint64
	UserSignature string
}

// Combiner produces the on-wire composite signature from its inputs. The
// hosted provider supplies its own; DefaultCombiner is the self-contained
// serialization.
type Combiner func(SignatureInputs) (string, error)

type compositeEnvelope struct {
	ProofPoints      models.ProofPoints `json:"proofPoints"`
	IssBase64Details models.IssClaim    `json:"issBase64Details"`
	HeaderBase64     string             `json:"headerBase64"`
	AddressSeed      string             `json:"addressSeed"`
	MaxEpoch         uint64             `json:"maxEpoch"`
	UserSignature    string             `json:"userSignature"`
}

// DefaultCombiner serializes the proof, address seed, max-epoch and the
// ephemeral user signature under the zkLogin scheme flag.
func DefaultCombiner(in SignatureInputs) (string, error) {
	if in.Proof.IsZero() {
		return "", ErrMissingProof
	}
	raw, err := json.Marshal(compositeEnvelope{
		ProofPoints:      in.Proof.ProofPoints,
		IssBase64Details: in.Proof.IssBase64Details,
		HeaderBase64:     in.Proof.HeaderBase64,
		AddressSeed:      base64.StdEncoding.EncodeToString(in.AddressSeed),
		MaxEpoch:         in.MaxEpoch,
		UserSignature:    in.UserSignature,
	})
	if err != nil {
		return "", err
	}
	flagged := make([]byte, 0, 1+len(raw))
	flagged = append(flagged, zkLoginFlag)
	flagged = append(flagged, raw...)
	return base64.StdEncoding.EncodeToString(flagged), nil
}

// SignTransactionBytes signs the intent digest of txBytes with the ephemeral
// key and returns the flagged serialized signature.
func SignTransactionBytes(key *EphemeralKey, txBytes []byte) string {
	digest := blake2b.Sum256(append(append([]byte(nil), transactionIntent...), txBytes...))
	sig := key.Sign(digest[:])
	flagged := make([]byte, 0, 1+ed25519.SignatureSize+ed25519.PublicKeySize)
	flagged = append(flagged, ed25519Flag)
	flagged = append(flagged, sig...)
	flagged = append(flagged, key.pub...)
	return base64.StdEncoding.EncodeToString(flagged)
}

// VerifyTransactionSignature checks a flagged serialized signature against
// transaction bytes.
func VerifyTransactionSignature(serialized string, txBytes []byte) bool {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return false
	}
	if len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize || raw[0] != ed25519Flag {
		return false
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])
	digest := blake2b.Sum256(append(append([]byte(nil), transactionIntent...), txBytes...))
	return ed25519.Verify(pub, digest[:], sig)
}
