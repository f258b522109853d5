package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"warranchain/go-backend/internal/zklogin"
	"warranchain/go-backend/pkg/models"
)

// ErrProofFetchExhausted is returned after the final failed attempt. It wraps
// the last underlying cause.
var ErrProofFetchExhausted = errors.New("proof fetch attempts exhausted")

// RetryPolicy controls how many times a proof request is attempted and how
// long to wait between attempts.
type RetryPolicy struct {
	Attempts int
	Backoff  func(attempt int) time.Duration
}

// DefaultRetryPolicy: 3 attempts with linear backoff (1s after the first
// failure, 2s after the second).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultRetryPolicy().Attempts
	}
	if p.Backoff == nil {
		p.Backoff = DefaultRetryPolicy().Backoff
	}
	return p
}

// Client requests zero-knowledge proofs from the remote prover service.
type Client struct {
	url    string
	httpc  *http.Client
	policy RetryPolicy

	// sleep is injectable so tests observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
	// onAttempt, when set, observes every attempt (metrics hook).
	onAttempt func()
}

type Option func(*Client)

func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) { c.policy = policy.normalized() }
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

func WithAttemptObserver(fn func()) Option {
	return func(c *Client) { c.onAttempt = fn }
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:    url,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		policy: DefaultRetryPolicy(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type proofRequestBody struct {
	JWT                        string `json:"jwt"`
	Salt                       string `json:"salt"`
	ExtendedEphemeralPublicKey string `json:"extendedEphemeralPublicKey"`
	MaxEpoch                   uint64 `json:"maxEpoch"`
}

// FetchProof requests a proof binding {jwt, salt, ephemeral key, max epoch},
// retrying per the policy. Cancellation of ctx aborts both in-flight requests
// and backoff waits, so a page navigation does not leak the retry loop.
func (c *Client) FetchProof(ctx context.Context, req zklogin.ProofRequest) (models.ZkProof, error) {
	body, err := json.Marshal(proofRequestBody{
		JWT:                        req.JWT,
		Salt:                       req.Salt,
		ExtendedEphemeralPublicKey: req.ExtendedEphemeralPublicKey,
		MaxEpoch:                   req.MaxEpoch,
	})
	if err != nil {
		return models.ZkProof{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if c.onAttempt != nil {
			c.onAttempt()
		}
		proof, err := c.fetchOnce(ctx, body)
		if err == nil {
			return proof, nil
		}
		lastErr = err
		if attempt == c.policy.Attempts {
			break
		}
		if err := c.sleep(ctx, c.policy.Backoff(attempt)); err != nil {
			return models.ZkProof{}, err
		}
	}
	return models.ZkProof{}, fmt.Errorf("%w: %w", ErrProofFetchExhausted, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, body []byte) (models.ZkProof, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return models.ZkProof{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return models.ZkProof{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.ZkProof{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return models.ZkProof{}, fmt.Errorf("prover returned status %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	var proof models.ZkProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return models.ZkProof{}, fmt.Errorf("prover response malformed: %w", err)
	}
	if proof.IsZero() {
		return models.ZkProof{}, errors.New("prover response missing proof points")
	}
	return proof, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
