package zklogin

import (
	"context"

	"warranchain/go-backend/pkg/models"
)

// ProofRequest is the prover's input: the identity token and salt, the
// flagged ephemeral public key, and the epoch fence.
type ProofRequest struct {
	JWT                        string
	Salt                       string
	ExtendedEphemeralPublicKey string
	MaxEpoch                   uint64
}

// ProofFetcher obtains a zero-knowledge proof binding a proof request.
// Implemented by prover.Client.
type ProofFetcher interface {
	FetchProof(ctx context.Context, req ProofRequest) (models.ZkProof, error)
}

// SignedTransaction pairs the signed bytes with the composite signature the
// ledger accepts for a zkLogin account.
type SignedTransaction struct {
	Bytes              []byte
	CompositeSignature string
}

// TransactionSigner signs transactions for one authenticated session. It is
// ready only after a completed login: token, salt and address seed are fixed
// for the signer's lifetime.
type TransactionSigner struct {
	keys     *EphemeralKeyStore
	prover   ProofFetcher
	combine  Combiner
	jwt      string
	salt     string
	seed     []byte
	maxEpoch uint64
}

func NewTransactionSigner(keys *EphemeralKeyStore, prover ProofFetcher, combine Combiner, jwt, salt string, addressSeed []byte, maxEpoch uint64) *TransactionSigner {
	if combine == nil {
		combine = DefaultCombiner
	}
	return &TransactionSigner{
		keys:     keys,
		prover:   prover,
		combine:  combine,
		jwt:      jwt,
		salt:     salt,
		seed:     append([]byte(nil), addressSeed...),
		maxEpoch: maxEpoch,
	}
}

func (s *TransactionSigner) MaxEpoch() uint64 { return s.maxEpoch }

// SignTransaction signs txBytes with the ephemeral key, fetches a proof for
// the current session binding, and folds both into the composite signature.
// A proof failure aborts the whole attempt; callers retrying must call
// SignTransaction again so a fresh proof is requested.
func (s *TransactionSigner) SignTransaction(ctx context.Context, txBytes []byte) (SignedTransaction, error) {
	key, err := s.keys.LoadOrCreate()
	if err != nil {
		return SignedTransaction{}, err
	}
	userSignature := SignTransactionBytes(key, txBytes)

	proof, err := s.prover.FetchProof(ctx, ProofRequest{
		JWT:                        s.jwt,
		Salt:                       s.salt,
		ExtendedEphemeralPublicKey: key.ExtendedPublicKey(),
		MaxEpoch:                   s.maxEpoch,
	})
	if err != nil {
		return SignedTransaction{}, err
	}

	composite, err := s.combine(SignatureInputs{
		Proof:         proof,
		AddressSeed:   s.seed,
		MaxEpoch:      s.maxEpoch,
		UserSignature: userSignature,
	})
	if err != nil {
		return SignedTransaction{}, err
	}
	return SignedTransaction{Bytes: txBytes, CompositeSignature: composite}, nil
}
