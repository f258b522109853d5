package ledger

import "context"

// Client is the narrow view of the ledger node consumed by the gateway.
// Two implementations exist: the JSON-RPC fullnode client and a deterministic
// fixture used for local development and tests. Callers select one through
// configuration and never branch on the concrete type.
type Client interface {
	LatestEpoch(ctx context.Context) (uint64, error)
	ReferenceGasPrice(ctx context.Context) (uint64, error)
	Balance(ctx context.Context, owner, coinType string) (Balance, error)
	AllBalances(ctx context.Context, owner string) ([]Balance, error)
	OwnedObjects(ctx context.Context, owner, structType string) ([]OwnedObject, error)
	ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (ExecuteResult, error)
}
