package ledger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"warranchain/go-backend/pkg/models"
)

const testPackageID = "0xddf9437133e37cdc9278a3ffaf625eb54ff0cba8dc60797f8a84a0e09596f49d"

func testMintKind(t *testing.T) TransactionKind {
	t.Helper()
	kind, err := MintWarrantyKind(testPackageID, models.MintRequest{
		Product:        "Washing Machine",
		Manufacturer:   "Acme",
		SerialNumber:   "SN-001",
		WarrantyPeriod: 365,
		BuyerEmail:     "buyer@example.com",
	}, "0xabc")
	if err != nil {
		t.Fatalf("build mint kind: %v", err)
	}
	return kind
}

func TestKindEncodeDeterministic(t *testing.T) {
	kind := testMintKind(t)
	a, err := kind.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := kind.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("kind encoding must be deterministic")
	}
}

func TestKindEncodeRejectsEmpty(t *testing.T) {
	if _, err := (TransactionKind{}).Encode(); !errors.Is(err, ErrEmptyTransaction) {
		t.Fatalf("expected ErrEmptyTransaction, got %v", err)
	}
}

func TestKindEncodeRejectsBadTarget(t *testing.T) {
	kind := TransactionKind{Calls: []MoveCall{{Target: "not-a-target"}}}
	if _, err := kind.Encode(); !errors.Is(err, ErrBadTarget) {
		t.Fatalf("expected ErrBadTarget, got %v", err)
	}
}

func TestTransactionDataBindsGasOwner(t *testing.T) {
	kindBytes, err := testMintKind(t).Encode()
	if err != nil {
		t.Fatalf("encode kind: %v", err)
	}
	withSponsor, err := TransactionData{
		KindBytes: kindBytes,
		Sender:    "0xabc",
		Gas:       GasData{Owner: "0xdef", Price: 1000, Budget: 10_000_000},
	}.Encode()
	if err != nil {
		t.Fatalf("encode sponsored: %v", err)
	}
	selfPaid, err := TransactionData{
		KindBytes: kindBytes,
		Sender:    "0xabc",
		Gas:       GasData{Price: 1000, Budget: 10_000_000},
	}.Encode()
	if err != nil {
		t.Fatalf("encode self-paid: %v", err)
	}
	if bytes.Equal(withSponsor, selfPaid) {
		t.Fatal("sponsored and self-paid transactions must differ in encoded bytes")
	}
	if Digest(withSponsor) == Digest(selfPaid) {
		t.Fatal("digests must differ when gas owner differs")
	}
}

func TestDigestStable(t *testing.T) {
	d1 := Digest([]byte("payload"))
	d2 := Digest([]byte("payload"))
	if d1 != d2 || d1 == "" {
		t.Fatalf("digest must be stable and non-empty: %q vs %q", d1, d2)
	}
	if Digest([]byte("other")) == d1 {
		t.Fatal("different payloads should not share a digest")
	}
}

func TestNormalizeAddressPads(t *testing.T) {
	got, err := NormalizeAddress("0xabc")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(got) != 66 {
		t.Fatalf("expected 66 chars, got %d (%q)", len(got), got)
	}
	if got[:2] != "0x" || got[len(got)-3:] != "abc" {
		t.Fatalf("unexpected normalization: %q", got)
	}
	if _, err := NormalizeAddress("abc"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := NormalizeAddress("0xzz"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress for non-hex, got %v", err)
	}
}

func TestFixtureExecuteIsIdempotentPerDigest(t *testing.T) {
	f := NewFixtureClient()
	kindBytes, err := testMintKind(t).Encode()
	if err != nil {
		t.Fatalf("encode kind: %v", err)
	}
	txBytes, err := TransactionData{
		KindBytes: kindBytes,
		Sender:    "0xabc",
		Gas:       GasData{Owner: "0xdef", Price: 1000, Budget: 10_000_000},
	}.Encode()
	if err != nil {
		t.Fatalf("encode tx: %v", err)
	}

	first, err := f.ExecuteTransaction(context.Background(), txBytes, []string{"sig"})
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	second, err := f.ExecuteTransaction(context.Background(), txBytes, []string{"sig"})
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if first.Digest != second.Digest {
		t.Fatalf("resubmission changed digest: %q vs %q", first.Digest, second.Digest)
	}
	if len(first.Created) != 1 || first.Created[0] != second.Created[0] {
		t.Fatal("resubmission must not create a second object")
	}
}
