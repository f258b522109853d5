// Package resolver fetches the per-user salt and the current ledger epoch
// from the backend service on behalf of a logging-in client.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"warranchain/go-backend/internal/auth"
)

var (
	ErrSaltUnavailable  = errors.New("resolver: salt unavailable")
	ErrEpochUnavailable = errors.New("resolver: epoch unavailable")
)

const defaultTimeout = 15 * time.Second

// Client backs the login flow's salt and epoch lookups.
var _ auth.SaltEpochSource = (*Client)(nil)

// Client talks to the backend salt and epoch endpoints. Neither call is
// retried here: a failed fetch fails the login attempt that issued it.
type Client struct {
	baseURL string
	httpc   *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpc = h
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSalt exchanges an identity token for the stable per-user salt.
func (c *Client) FetchSalt(ctx context.Context, idToken string) (string, error) {
	body, err := json.Marshal(map[string]string{"jwt": idToken})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %w", ErrSaltUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/get-salt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSaltUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSaltUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status %d", ErrSaltUnavailable, resp.StatusCode)
	}

	var out struct {
		Salt string `json:"salt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrSaltUnavailable, err)
	}
	if out.Salt == "" {
		return "", fmt.Errorf("%w: empty salt in response", ErrSaltUnavailable)
	}
	return out.Salt, nil
}

// FetchLatestEpoch returns the current ledger epoch. The backend may encode
// the epoch as a JSON number or as a decimal string; both are accepted.
func (c *Client) FetchLatestEpoch(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest-epoch", nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEpochUnavailable, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEpochUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: unexpected status %d", ErrEpochUnavailable, resp.StatusCode)
	}

	var out struct {
		Epoch json.Number `json:"epoch"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decode response: %w", ErrEpochUnavailable, err)
	}
	epoch, err := parseEpoch(out.Epoch)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEpochUnavailable, err)
	}
	return epoch, nil
}

func parseEpoch(n json.Number) (uint64, error) {
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("epoch %q is not an integer", n.String())
	}
	if v < 0 {
		return 0, fmt.Errorf("epoch %d is negative", v)
	}
	return uint64(v), nil
}
