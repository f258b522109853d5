package ledger

import (
	"fmt"

	"warranchain/go-backend/pkg/models"
)

const (
	warrantyModule   = "warranty_nft"
	mintFunction     = "mint_warranty"
	transferFunction = "transfer_warranty"
	repairFunction   = "add_repair_event"
)

// WarrantyStructType returns the fully qualified struct type for owned-object
// filtering.
func WarrantyStructType(packageID string) string {
	return fmt.Sprintf("%s::%s::WarrantyNFT", packageID, warrantyModule)
}

// MintWarrantyKind builds the gas-free mint command for a sponsored
// submission.
func MintWarrantyKind(packageID string, req models.MintRequest, recipient string) (TransactionKind, error) {
	addr, err := NormalizeAddress(recipient)
	if err != nil {
		return TransactionKind{}, err
	}
	return TransactionKind{Calls: []MoveCall{{
		Target: fmt.Sprintf("%s::%s::%s", packageID, warrantyModule, mintFunction),
		Args: []Arg{
			PureString(req.Product),
			PureString(req.Manufacturer),
			PureString(req.SerialNumber),
			PureU64(uint64(req.WarrantyPeriod)),
			PureString(req.BuyerEmail),
			PureAddress(addr),
			Object(ClockObjectID),
		},
	}}}, nil
}

// TransferWarrantyKind builds the ownership transfer command.
func TransferWarrantyKind(packageID, objectID, recipient string) (TransactionKind, error) {
	addr, err := NormalizeAddress(recipient)
	if err != nil {
		return TransactionKind{}, err
	}
	return TransactionKind{Calls: []MoveCall{{
		Target: fmt.Sprintf("%s::%s::%s", packageID, warrantyModule, transferFunction),
		Args: []Arg{
			Object(objectID),
			PureAddress(addr),
			Object(ClockObjectID),
		},
	}}}, nil
}

// AddRepairEventKind appends a repair record to an existing warranty.
func AddRepairEventKind(packageID, objectID, description string) TransactionKind {
	return TransactionKind{Calls: []MoveCall{{
		Target: fmt.Sprintf("%s::%s::%s", packageID, warrantyModule, repairFunction),
		Args: []Arg{
			Object(objectID),
			PureString(description),
			Object(ClockObjectID),
		},
	}}}
}
