package prover

import (
	"context"
	"fmt"
	"sync"

	"warranchain/go-backend/internal/zklogin"
	"warranchain/go-backend/pkg/models"
)

// CachingFetcher memoizes proofs by {salt, ephemeral public key, max epoch}
// for the lifetime of the key. Entries whose max-epoch fence has elapsed are
// dropped on the next Prune, so an expired proof is never served; the ledger
// remains the final authority either way.
type CachingFetcher struct {
	next zklogin.ProofFetcher

	mu      sync.Mutex
	entries map[string]cachedProof
}

type cachedProof struct {
	proof    models.ZkProof
	maxEpoch uint64
}

func NewCachingFetcher(next zklogin.ProofFetcher) *CachingFetcher {
	return &CachingFetcher{next: next, entries: make(map[string]cachedProof)}
}

func (c *CachingFetcher) FetchProof(ctx context.Context, req zklogin.ProofRequest) (models.ZkProof, error) {
	key := cacheKey(req)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return entry.proof, nil
	}
	c.mu.Unlock()

	proof, err := c.next.FetchProof(ctx, req)
	if err != nil {
		return models.ZkProof{}, err
	}

	c.mu.Lock()
	c.entries[key] = cachedProof{proof: proof, maxEpoch: req.MaxEpoch}
	c.mu.Unlock()
	return proof, nil
}

// Prune removes proofs whose max epoch is behind the current ledger epoch.
func (c *CachingFetcher) Prune(currentEpoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.maxEpoch < currentEpoch {
			delete(c.entries, key)
		}
	}
}

// Clear drops every cached proof; called on logout alongside key-store Clear.
func (c *CachingFetcher) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedProof)
}

func cacheKey(req zklogin.ProofRequest) string {
	return fmt.Sprintf("%s|%s|%d", req.Salt, req.ExtendedEphemeralPublicKey, req.MaxEpoch)
}
