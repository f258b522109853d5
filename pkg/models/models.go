package models

import (
	"strings"
	"time"
)

type Warranty struct {
	ObjectID       string        `json:"object_id"`
	SerialNumber   string        `json:"serial_number"`
	ProductName    string        `json:"product_name"`
	Manufacturer   string        `json:"manufacturer"`
	PurchaseDate   time.Time     `json:"purchase_date"`
	WarrantyDays   int           `json:"warranty_period_days"`
	ExpiryDate     time.Time     `json:"expiry_date"`
	Owner          string        `json:"owner"`
	BuyerEmail     string        `json:"buyer_email,omitempty"`
	RepairHistory  []RepairEvent `json:"repair_history,omitempty"`
	TransferStatus string        `json:"transfer_status,omitempty"`
}

type RepairEvent struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

// ZkProof is the opaque proof object returned by the remote prover. The
// backend never inspects it beyond serialization; field shape follows the
// prover's wire format.
type ZkProof struct {
	ProofPoints      ProofPoints `json:"proofPoints"`
	IssBase64Details IssClaim    `json:"issBase64Details"`
	HeaderBase64     string      `json:"headerBase64"`
}

type ProofPoints struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

type IssClaim struct {
	Value     string `json:"value"`
	IndexMod4 int    `json:"indexMod4"`
}

func (p ZkProof) IsZero() bool {
	return len(p.ProofPoints.A) == 0 && len(p.ProofPoints.B) == 0 && len(p.ProofPoints.C) == 0
}

type MintRequest struct {
	JWT            string `json:"jwt"`
	Product        string `json:"product"`
	Manufacturer   string `json:"manufacturer"`
	SerialNumber   string `json:"serialNumber"`
	WarrantyPeriod int    `json:"warrantyPeriod"`
	BuyerEmail     string `json:"buyerEmail"`
}

// Complete reports whether every required mint field is present.
func (r MintRequest) Complete() bool {
	return strings.TrimSpace(r.JWT) != "" &&
		strings.TrimSpace(r.Product) != "" &&
		strings.TrimSpace(r.Manufacturer) != "" &&
		strings.TrimSpace(r.SerialNumber) != "" &&
		r.WarrantyPeriod >= 1 &&
		strings.TrimSpace(r.BuyerEmail) != ""
}

type MintResult struct {
	Success       bool   `json:"success"`
	Digest        string `json:"digest,omitempty"`
	Effects       any    `json:"effects,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
}
