package fraction

import (
	"time"

	"gorm.io/gorm"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

const (
	StatusActive   = "ACTIVE"
	StatusRedeemed = "REDEEMED"
)

// IsTerminal reports whether a fraction status admits no further
// transitions.
func IsTerminal(status string) bool {
	return status == StatusRedeemed
}

// Fraction is a fractionalized NFT: the original owner escrows the asset
// and a fungible share supply is minted against it. A buyer who gathers the
// full supply and pays the reserve price redeems the underlying NFT, which
// retires the shares and deactivates the vault.
type Fraction struct {
	gorm.Model          `json:"-"`
	FractionID          string       `gorm:"uniqueIndex" json:"fraction_id"`
	ContractAddress     string       `json:"contract_address"`
	TokenID             string       `json:"token_id"`
	OriginalOwner       string       `gorm:"index" json:"original_owner"`
	Redeemer            string       `gorm:"index" json:"redeemer,omitempty"`
	PaymentAsset        string       `json:"payment_asset"`
	TotalSupply         types.Amount `json:"total_supply"`
	ReservePrice        types.Amount `json:"reserve_price"`
	Active              bool         `json:"active"`
	Status              string       `gorm:"index" json:"status"`
	PendingConfirmation bool         `json:"pending_confirmation"`
	NeedsReconciliation bool         `json:"needs_reconciliation"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

func (f *Fraction) Asset() types.AssetRef {
	return types.AssetRef{ContractAddress: f.ContractAddress, TokenID: f.TokenID}
}

// Clone returns a snapshot of the fraction for optimistic rollback.
func (f *Fraction) Clone() *Fraction {
	out := *f
	return &out
}

// ValidateTerms enforces construction invariants before the vault is
// created on the Ledger.
func (f *Fraction) ValidateTerms() error {
	if f.OriginalOwner == "" {
		return types.E(types.ErrInvalidTerms, "original owner address is required")
	}
	if f.TotalSupply.Sign() <= 0 {
		return types.E(types.ErrInvalidTerms, "total supply must be positive")
	}
	if f.ReservePrice.Sign() <= 0 {
		return types.E(types.ErrInvalidTerms, "reserve price must be positive")
	}
	return nil
}
