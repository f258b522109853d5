package sponsor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"warranchain/go-backend/internal/ledger"
)

var ErrNoSigner = errors.New("sponsor: no signing key configured")

// Prepared is a sponsored transaction awaiting the sender's signature.
type Prepared struct {
	Bytes            []byte
	Digest           string
	SponsorSignature string
}

// Gateway attaches the sponsor's gas to user transactions and submits them.
// Submissions are idempotent by transaction digest: a duplicate arriving
// while the first is still in flight waits for that outcome, and a digest
// already executed replays the recorded result instead of executing twice.
// Failures are never recorded or retried here; the caller decides whether
// to submit again.
type Gateway struct {
	signer    *Signer
	ledger    ledger.Client
	gasPrice  uint64
	gasBudget uint64
	log       *slog.Logger

	mu        sync.Mutex
	inflight  map[string]*submission
	submitted map[string]ledger.ExecuteResult
	order     []string
	recordCap int
}

// submission is the latch duplicates block on while the first submitter of
// a digest talks to the ledger. res and err are set before done closes.
type submission struct {
	done chan struct{}
	res  ledger.ExecuteResult
	err  error
}

// defaultRecordCap bounds the idempotency table; the oldest digest is
// dropped once it overflows, after which a resubmission of that digest
// executes again.
const defaultRecordCap = 4096

func NewGateway(signer *Signer, client ledger.Client, gasPrice, gasBudget uint64, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		signer:    signer,
		ledger:    client,
		gasPrice:  gasPrice,
		gasBudget: gasBudget,
		log:       log,
		inflight:  make(map[string]*submission),
		submitted: make(map[string]ledger.ExecuteResult),
		recordCap: defaultRecordCap,
	}
}

// Address returns the gas owner's address.
func (g *Gateway) Address() string {
	if g.signer == nil {
		return ""
	}
	return g.signer.Address()
}

// Prepare builds the sponsored transaction for a user-sent kind: the sender
// stays the user while the sponsor owns the gas. The sponsor signature is
// produced immediately; the sender countersigns the returned bytes.
func (g *Gateway) Prepare(kind ledger.TransactionKind, sender string) (Prepared, error) {
	if g.signer == nil {
		return Prepared{}, ErrNoSigner
	}
	kindBytes, err := kind.Encode()
	if err != nil {
		return Prepared{}, err
	}
	txBytes, err := ledger.TransactionData{
		KindBytes: kindBytes,
		Sender:    sender,
		Gas: ledger.GasData{
			Owner:  g.signer.Address(),
			Price:  g.gasPrice,
			Budget: g.gasBudget,
		},
	}.Encode()
	if err != nil {
		return Prepared{}, err
	}
	return Prepared{
		Bytes:            txBytes,
		Digest:           ledger.Digest(txBytes),
		SponsorSignature: g.signer.Sign(txBytes),
	}, nil
}

// Submit executes a prepared transaction with the sender's signature plus
// the sponsor's. A digest already submitted returns its recorded result.
func (g *Gateway) Submit(ctx context.Context, txBytes []byte, senderSignature string) (ledger.ExecuteResult, error) {
	if g.signer == nil {
		return ledger.ExecuteResult{}, ErrNoSigner
	}
	digest := ledger.Digest(txBytes)
	return g.execute(ctx, digest, txBytes, []string{senderSignature, g.signer.Sign(txBytes)})
}

// execute runs the digest-idempotent submission. Exactly one caller per
// digest reaches the ledger; concurrent duplicates wait on its latch and
// share the outcome.
func (g *Gateway) execute(ctx context.Context, digest string, txBytes []byte, signatures []string) (ledger.ExecuteResult, error) {
	g.mu.Lock()
	if res, ok := g.submitted[digest]; ok {
		g.mu.Unlock()
		g.log.Info("duplicate submission served from record", "digest", digest)
		return res, nil
	}
	if sub, ok := g.inflight[digest]; ok {
		g.mu.Unlock()
		select {
		case <-sub.done:
			if sub.err != nil {
				return ledger.ExecuteResult{}, sub.err
			}
			g.log.Info("duplicate submission joined in-flight execution", "digest", digest)
			return sub.res, nil
		case <-ctx.Done():
			return ledger.ExecuteResult{}, ctx.Err()
		}
	}
	sub := &submission{done: make(chan struct{})}
	g.inflight[digest] = sub
	g.mu.Unlock()

	res, err := g.ledger.ExecuteTransaction(ctx, txBytes, signatures)
	if err != nil {
		err = fmt.Errorf("sponsor: submit %s: %w", digest, err)
	}

	g.mu.Lock()
	delete(g.inflight, digest)
	if err == nil {
		g.recordLocked(digest, res)
	}
	g.mu.Unlock()

	sub.res, sub.err = res, err
	close(sub.done)

	if err != nil {
		return ledger.ExecuteResult{}, err
	}
	g.log.Info("transaction submitted", "digest", digest, "status", res.Status)
	return res, nil
}

func (g *Gateway) recordLocked(digest string, res ledger.ExecuteResult) {
	if _, ok := g.submitted[digest]; ok {
		return
	}
	g.submitted[digest] = res
	g.order = append(g.order, digest)
	if len(g.order) > g.recordCap {
		delete(g.submitted, g.order[0])
		g.order = g.order[1:]
	}
}

// ExecuteDirect builds, signs and submits a transaction whose sender is the
// sponsor account itself. Server-initiated mints go through here.
func (g *Gateway) ExecuteDirect(ctx context.Context, kind ledger.TransactionKind) (ledger.ExecuteResult, error) {
	if g.signer == nil {
		return ledger.ExecuteResult{}, ErrNoSigner
	}
	kindBytes, err := kind.Encode()
	if err != nil {
		return ledger.ExecuteResult{}, err
	}
	txBytes, err := ledger.TransactionData{
		KindBytes: kindBytes,
		Sender:    g.signer.Address(),
		Gas: ledger.GasData{
			Owner:  g.signer.Address(),
			Price:  g.gasPrice,
			Budget: g.gasBudget,
		},
	}.Encode()
	if err != nil {
		return ledger.ExecuteResult{}, err
	}
	return g.execute(ctx, ledger.Digest(txBytes), txBytes, []string{g.signer.Sign(txBytes)})
}
