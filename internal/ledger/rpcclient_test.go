package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestRPCClientConcurrentRequestIDsUnique(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int64]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int64 `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		seen[req.ID]++
		mu.Unlock()
		w.Write([]byte(`{"jsonrpc":"2.0","result":"1000"}`))
	}))
	defer srv.Close()

	c := NewRPCClient(srv.URL)
	const callers = 16
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ReferenceGasPrice(context.Background()); err != nil {
				t.Errorf("gas price: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != callers {
		t.Fatalf("expected %d distinct request ids, got %d", callers, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("request id %d reused %d times", id, n)
		}
	}
}

func TestRPCClientReferenceGasPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","result":"750"}`))
	}))
	defer srv.Close()

	price, err := NewRPCClient(srv.URL).ReferenceGasPrice(context.Background())
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	if price != 750 {
		t.Fatalf("expected 750, got %d", price)
	}
}
