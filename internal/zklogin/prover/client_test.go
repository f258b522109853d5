package prover

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"warranchain/go-backend/internal/zklogin"
	"warranchain/go-backend/pkg/models"
)

const proofJSON = `{
	"proofPoints": {"a": ["1","2","3"], "b": [["4","5"],["6","7"]], "c": ["8","9"]},
	"issBase64Details": {"value": "aXNz", "indexMod4": 1},
	"headerBase64": "aGVhZGVy"
}`

func testRequest() zklogin.ProofRequest {
	return zklogin.ProofRequest{
		JWT:                        "jwt-token",
		Salt:                       "1234567890",
		ExtendedEphemeralPublicKey: "AAaaa",
		MaxEpoch:                   152,
	}
}

func noSleep(t *testing.T, delays *[]time.Duration) func(context.Context, time.Duration) error {
	t.Helper()
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestFetchProofSucceedsFirstAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(proofJSON))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(srv.URL, WithSleeper(noSleep(t, &delays)))
	proof, err := c.FetchProof(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if proof.IsZero() {
		t.Fatal("expected populated proof")
	}
	if hits.Load() != 1 || len(delays) != 0 {
		t.Fatalf("expected a single attempt with no backoff, got %d attempts, delays %v", hits.Load(), delays)
	}
}

func TestFetchProofRetriesWithLinearBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(proofJSON))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(srv.URL, WithSleeper(noSleep(t, &delays)))
	if _, err := c.FetchProof(context.Background(), testRequest()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("expected backoff [1s 2s], got %v", delays)
	}
}

func TestFetchProofExhaustsAfterThreeFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no proof for you", http.StatusBadGateway)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(srv.URL, WithSleeper(noSleep(t, &delays)))
	_, err := c.FetchProof(context.Background(), testRequest())
	if !errors.Is(err, ErrProofFetchExhausted) {
		t.Fatalf("expected ErrProofFetchExhausted, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", hits.Load())
	}
}

func TestFetchProofCancellationAbortsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}))
	_, err := c.FetchProof(ctx, testRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetchProofRejectsEmptyProofBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(srv.URL, WithSleeper(noSleep(t, &delays)))
	if _, err := c.FetchProof(context.Background(), testRequest()); !errors.Is(err, ErrProofFetchExhausted) {
		t.Fatalf("empty proof body should count as failure, got %v", err)
	}
}

type countingFetcher struct {
	calls int
	proof models.ZkProof
}

func (c *countingFetcher) FetchProof(context.Context, zklogin.ProofRequest) (models.ZkProof, error) {
	c.calls++
	return c.proof, nil
}

func TestCachingFetcherReusesProofUntilEpochElapses(t *testing.T) {
	inner := &countingFetcher{proof: models.ZkProof{
		ProofPoints:  models.ProofPoints{A: []string{"1"}, B: [][]string{{"2"}}, C: []string{"3"}},
		HeaderBase64: "aGVhZGVy",
	}}
	cache := NewCachingFetcher(inner)
	req := testRequest()

	for i := 0; i < 3; i++ {
		if _, err := cache.FetchProof(context.Background(), req); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected one upstream fetch, got %d", inner.calls)
	}

	// Epoch moves past the fence: cached proof must be dropped.
	cache.Prune(req.MaxEpoch + 1)
	if _, err := cache.FetchProof(context.Background(), req); err != nil {
		t.Fatalf("fetch after prune: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected refetch after prune, got %d calls", inner.calls)
	}
}
