package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// FixtureClient is a deterministic in-memory ledger used for development and
// tests. Object ids and digests are derived from submitted bytes so repeated
// runs produce identical results.
type FixtureClient struct {
	mu       sync.Mutex
	epoch    uint64
	gasPrice uint64
	balances map[string]uint64
	objects  map[string][]OwnedObject
	executed map[string]ExecuteResult
}

func NewFixtureClient() *FixtureClient {
	return &FixtureClient{
		epoch:    150,
		gasPrice: 1_000,
		balances: make(map[string]uint64),
		objects:  make(map[string][]OwnedObject),
		executed: make(map[string]ExecuteResult),
	}
}

// AdvanceEpoch moves ledger time forward; tests use it to expire proofs.
func (f *FixtureClient) AdvanceEpoch(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epoch += n
}

func (f *FixtureClient) SetBalance(owner string, mist uint64) {
	addr, err := NormalizeAddress(owner)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[addr] = mist
}

func (f *FixtureClient) LatestEpoch(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch, nil
}

func (f *FixtureClient) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gasPrice, nil
}

func (f *FixtureClient) Balance(ctx context.Context, owner, coinType string) (Balance, error) {
	addr, err := NormalizeAddress(owner)
	if err != nil {
		return Balance{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return Balance{
		CoinType:        coinType,
		TotalBalance:    fmt.Sprintf("%d", f.balances[addr]),
		CoinObjectCount: 1,
	}, nil
}

func (f *FixtureClient) AllBalances(ctx context.Context, owner string) ([]Balance, error) {
	b, err := f.Balance(ctx, owner, SuiCoinType)
	if err != nil {
		return nil, err
	}
	return []Balance{b}, nil
}

func (f *FixtureClient) OwnedObjects(ctx context.Context, owner, structType string) ([]OwnedObject, error) {
	addr, err := NormalizeAddress(owner)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OwnedObject
	for _, obj := range f.objects[addr] {
		if structType == "" || obj.Type == structType {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *FixtureClient) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (ExecuteResult, error) {
	if len(txBytes) == 0 {
		return ExecuteResult{}, ErrEmptyTransaction
	}
	if len(signatures) == 0 {
		return ExecuteResult{}, fmt.Errorf("fixture ledger: at least one signature required")
	}
	digest := Digest(txBytes)

	f.mu.Lock()
	defer f.mu.Unlock()
	if prior, ok := f.executed[digest]; ok {
		return prior, nil
	}

	objectID := fixtureObjectID(txBytes)
	effects, _ := json.Marshal(map[string]any{
		"status":  map[string]string{"status": "success"},
		"created": []string{objectID},
		"epoch":   f.epoch,
	})
	result := ExecuteResult{
		Digest:  digest,
		Status:  "success",
		Effects: effects,
		Created: []string{objectID},
	}
	f.executed[digest] = result
	return result, nil
}

// AttachObject registers an owned object, used to seed warranty listings.
func (f *FixtureClient) AttachObject(owner string, obj OwnedObject) error {
	addr, err := NormalizeAddress(owner)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[addr] = append(f.objects[addr], obj)
	return nil
}

func fixtureObjectID(txBytes []byte) string {
	h := blake2b.Sum256(append([]byte("fixture-object::"), txBytes...))
	return "0x" + hex.EncodeToString(h[:])
}
