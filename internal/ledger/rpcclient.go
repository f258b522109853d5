package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// RPCClient talks JSON-RPC 2.0 to a fullnode. One client is shared by every
// handler goroutine, so the request id counter is atomic.
type RPCClient struct {
	url   string
	httpc *http.Client
	reqID atomic.Int64
}

func NewRPCClient(url string) *RPCClient {
	return &RPCClient{
		url:   url,
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcErrorBody   `json:"error"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("ledger rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("ledger rpc %s: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger rpc %s: status %d", method, resp.StatusCode)
	}
	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("ledger rpc %s: %w", method, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("ledger rpc %s: %s (code %d)", method, parsed.Error.Message, parsed.Error.Code)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(parsed.Result, out)
}

func (c *RPCClient) LatestEpoch(ctx context.Context) (uint64, error) {
	var state struct {
		Epoch json.Number `json:"epoch"`
	}
	if err := c.call(ctx, "suix_getLatestSuiSystemState", nil, &state); err != nil {
		return 0, err
	}
	// Fullnodes report the epoch as a decimal string.
	epoch, err := strconv.ParseUint(state.Epoch.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger rpc: unparseable epoch %q", state.Epoch.String())
	}
	return epoch, nil
}

func (c *RPCClient) ReferenceGasPrice(ctx context.Context) (uint64, error) {
	var price json.Number
	if err := c.call(ctx, "suix_getReferenceGasPrice", nil, &price); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(price.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger rpc: unparseable gas price %q", price.String())
	}
	return v, nil
}

func (c *RPCClient) Balance(ctx context.Context, owner, coinType string) (Balance, error) {
	addr, err := NormalizeAddress(owner)
	if err != nil {
		return Balance{}, err
	}
	var out Balance
	if err := c.call(ctx, "suix_getBalance", []any{addr, coinType}, &out); err != nil {
		return Balance{}, err
	}
	return out, nil
}

func (c *RPCClient) AllBalances(ctx context.Context, owner string) ([]Balance, error) {
	addr, err := NormalizeAddress(owner)
	if err != nil {
		return nil, err
	}
	var out []Balance
	if err := c.call(ctx, "suix_getAllBalances", []any{addr}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RPCClient) OwnedObjects(ctx context.Context, owner, structType string) ([]OwnedObject, error) {
	addr, err := NormalizeAddress(owner)
	if err != nil {
		return nil, err
	}
	query := map[string]any{
		"options": map[string]any{"showContent": true, "showType": true},
	}
	if structType != "" {
		query["filter"] = map[string]any{"StructType": structType}
	}
	var page struct {
		Data []struct {
			Data *struct {
				ObjectID string          `json:"objectId"`
				Type     string          `json:"type"`
				Version  json.Number     `json:"version"`
				Content  json.RawMessage `json:"content"`
			} `json:"data"`
		} `json:"data"`
	}
	if err := c.call(ctx, "suix_getOwnedObjects", []any{addr, query}, &page); err != nil {
		return nil, err
	}
	out := make([]OwnedObject, 0, len(page.Data))
	for _, item := range page.Data {
		if item.Data == nil {
			continue
		}
		version, _ := strconv.ParseUint(item.Data.Version.String(), 10, 64)
		out = append(out, OwnedObject{
			ObjectID: item.Data.ObjectID,
			Type:     item.Data.Type,
			Version:  version,
			Content:  item.Data.Content,
		})
	}
	return out, nil
}

func (c *RPCClient) ExecuteTransaction(ctx context.Context, txBytes []byte, signatures []string) (ExecuteResult, error) {
	options := map[string]any{"showEffects": true, "showObjectChanges": true}
	var out struct {
		Digest  string `json:"digest"`
		Effects struct {
			Status struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			} `json:"status"`
		} `json:"effects"`
		RawEffects json.RawMessage `json:"rawEffects,omitempty"`
	}
	params := []any{base64.StdEncoding.EncodeToString(txBytes), signatures, options, "WaitForLocalExecution"}
	raw := json.RawMessage(nil)
	if err := c.call(ctx, "sui_executeTransactionBlock", params, &raw); err != nil {
		return ExecuteResult{}, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return ExecuteResult{}, fmt.Errorf("ledger rpc execute: %w", err)
	}
	result := ExecuteResult{
		Digest:  out.Digest,
		Status:  out.Effects.Status.Status,
		Effects: raw,
	}
	if !result.Succeeded() && out.Effects.Status.Error != "" {
		return result, fmt.Errorf("ledger execution failed: %s", out.Effects.Status.Error)
	}
	return result, nil
}
