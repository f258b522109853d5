package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// SuiCoinType is the canonical gas coin type.
	SuiCoinType = "0x2::sui::SUI"
	// MistPerSui is the conversion factor between the raw unit and SUI.
	MistPerSui = 1_000_000_000
	// ClockObjectID is the shared on-chain clock consumed by warranty calls.
	ClockObjectID = "0x6"
)

var ErrInvalidAddress = errors.New("invalid ledger address")

type Balance struct {
	CoinType        string `json:"coinType"`
	TotalBalance    string `json:"totalBalance"`
	CoinObjectCount int    `json:"coinObjectCount"`
}

type OwnedObject struct {
	ObjectID string          `json:"objectId"`
	Type     string          `json:"type"`
	Version  uint64          `json:"version"`
	Content  json.RawMessage `json:"content,omitempty"`
}

type ExecuteResult struct {
	Digest  string          `json:"digest"`
	Status  string          `json:"status"`
	Effects json.RawMessage `json:"effects,omitempty"`
	Created []string        `json:"created,omitempty"`
}

func (r ExecuteResult) Succeeded() bool {
	return strings.EqualFold(r.Status, "success")
}

// NormalizeAddress pads a 0x-prefixed hex address to the canonical
// 0x + 64 hex character form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if !strings.HasPrefix(addr, "0x") {
		return "", fmt.Errorf("%w: missing 0x prefix", ErrInvalidAddress)
	}
	hexPart := addr[2:]
	if len(hexPart) == 0 || len(hexPart) > 64 {
		return "", fmt.Errorf("%w: bad length %d", ErrInvalidAddress, len(hexPart))
	}
	for _, c := range hexPart {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: non-hex character", ErrInvalidAddress)
		}
	}
	return "0x" + strings.Repeat("0", 64-len(hexPart)) + hexPart, nil
}
