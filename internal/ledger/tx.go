package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	txKindVersion = byte(1)
	txDataVersion = byte(1)

	argTagPure   = byte(0)
	argTagObject = byte(1)
)

// Digests are computed over the domain-separated transaction bytes so they
// can never collide with other signed payloads.
const txDigestPrefix = "TransactionData::"

var (
	ErrEmptyTransaction = errors.New("transaction has no commands")
	ErrBadTarget        = errors.New("move call target must be package::module::function")
)

// Arg is a single encoded move-call argument.
type Arg struct {
	Tag   byte
	Value []byte
}

func PureString(s string) Arg { return Arg{Tag: argTagPure, Value: []byte(s)} }

func PureU64(v uint64) Arg {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return Arg{Tag: argTagPure, Value: buf}
}

func PureAddress(addr string) Arg { return Arg{Tag: argTagPure, Value: []byte(addr)} }

func Object(id string) Arg { return Arg{Tag: argTagObject, Value: []byte(id)} }

// MoveCall is one programmable command targeting package::module::function.
type MoveCall struct {
	Target string
	Args   []Arg
}

func (c MoveCall) split() (pkg, mod, fn string, err error) {
	parts := strings.Split(c.Target, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrBadTarget, c.Target)
	}
	return parts[0], parts[1], parts[2], nil
}

// TransactionKind is the gas-free command list. Sponsored flows build kind
// bytes first and attach gas data on the sponsor side.
type TransactionKind struct {
	Calls []MoveCall
}

func (k TransactionKind) Encode() ([]byte, error) {
	if len(k.Calls) == 0 {
		return nil, ErrEmptyTransaction
	}
	var out []byte
	out = append(out, txKindVersion)
	out = appendUvarint(out, uint64(len(k.Calls)))
	for _, call := range k.Calls {
		pkg, mod, fn, err := call.split()
		if err != nil {
			return nil, err
		}
		out = appendBytes(out, []byte(pkg))
		out = appendBytes(out, []byte(mod))
		out = appendBytes(out, []byte(fn))
		out = appendUvarint(out, uint64(len(call.Args)))
		for _, arg := range call.Args {
			out = append(out, arg.Tag)
			out = appendBytes(out, arg.Value)
		}
	}
	return out, nil
}

// GasData names the party paying for execution. Owner may differ from the
// transaction sender, which is exactly the sponsored case.
type GasData struct {
	Owner  string
	Price  uint64
	Budget uint64
}

// TransactionData is the fully addressed transaction: kind bytes plus sender
// and gas. Encode output is what both sender and sponsor sign.
type TransactionData struct {
	KindBytes []byte
	Sender    string
	Gas       GasData
}

func (d TransactionData) Encode() ([]byte, error) {
	if len(d.KindBytes) == 0 {
		return nil, ErrEmptyTransaction
	}
	sender, err := NormalizeAddress(d.Sender)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	gasOwner := sender
	if d.Gas.Owner != "" {
		gasOwner, err = NormalizeAddress(d.Gas.Owner)
		if err != nil {
			return nil, fmt.Errorf("gas owner: %w", err)
		}
	}
	var out []byte
	out = append(out, txDataVersion)
	out = appendBytes(out, d.KindBytes)
	out = appendBytes(out, []byte(sender))
	out = appendBytes(out, []byte(gasOwner))
	out = binary.LittleEndian.AppendUint64(out, d.Gas.Price)
	out = binary.LittleEndian.AppendUint64(out, d.Gas.Budget)
	return out, nil
}

// Digest returns the base58 transaction digest over the encoded bytes.
func Digest(txBytes []byte) string {
	h := blake2b.Sum256(append([]byte(txDigestPrefix), txBytes...))
	return base58.Encode(h[:])
}

func appendUvarint(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

func appendBytes(dst, b []byte) []byte {
	dst = appendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}
