package rental

import (
	"time"

	"gorm.io/gorm"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

const (
	StatusListed    = "LISTED"
	StatusRented    = "RENTED"
	StatusCompleted = "COMPLETED"
	StatusExpired   = "EXPIRED"
	StatusDelisted  = "DELISTED"
)

// IsTerminal reports whether a rental status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusExpired, StatusDelisted:
		return true
	}
	return false
}

// Rental is a fixed-term NFT rental. The owner lists the asset with a fee
// and a collateral requirement; the renter takes custody for the duration
// and recovers the collateral by returning the asset on time.
type Rental struct {
	gorm.Model          `json:"-"`
	RentalID            string       `gorm:"uniqueIndex" json:"rental_id"`
	ContractAddress     string       `json:"contract_address"`
	TokenID             string       `json:"token_id"`
	Owner               string       `gorm:"index" json:"owner"`
	Renter              string       `gorm:"index" json:"renter,omitempty"`
	PaymentAsset        string       `json:"payment_asset"`
	RentalFee           types.Amount `json:"rental_fee"`
	DurationSeconds     int64        `json:"duration_seconds"`
	Collateral          types.Amount `json:"collateral"`
	RevenueSharing      bool         `json:"revenue_sharing"`
	RevenueShareBps     int64        `json:"revenue_share_bps"`
	StartTime           *time.Time   `json:"start_time,omitempty"`
	Status              string       `gorm:"index" json:"status"`
	PendingConfirmation bool         `json:"pending_confirmation"`
	NeedsReconciliation bool         `json:"needs_reconciliation"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

func (r *Rental) Asset() types.AssetRef {
	return types.AssetRef{ContractAddress: r.ContractAddress, TokenID: r.TokenID}
}

// Clone returns a snapshot of the rental for optimistic rollback.
func (r *Rental) Clone() *Rental {
	out := *r
	if r.StartTime != nil {
		t := *r.StartTime
		out.StartTime = &t
	}
	return &out
}

// EndTime is the instant the rental term lapses. Zero until rented.
func (r *Rental) EndTime() time.Time {
	if r.StartTime == nil {
		return time.Time{}
	}
	return r.StartTime.Add(time.Duration(r.DurationSeconds) * time.Second)
}

// ValidateTerms enforces construction invariants before listing.
func (r *Rental) ValidateTerms() error {
	if r.Owner == "" {
		return types.E(types.ErrInvalidTerms, "owner address is required")
	}
	if r.RentalFee.Sign() <= 0 {
		return types.E(types.ErrInvalidTerms, "rental fee must be positive")
	}
	if r.DurationSeconds <= 0 {
		return types.E(types.ErrInvalidTerms, "duration must be positive")
	}
	if r.Collateral.Sign() < 0 {
		return types.E(types.ErrInvalidTerms, "collateral cannot be negative")
	}
	if r.RevenueSharing {
		if r.RevenueShareBps < 1 || r.RevenueShareBps > 9900 {
			return types.E(types.ErrInvalidTerms,
				"revenue share must be within 1..9900 bps, got %d", r.RevenueShareBps)
		}
	} else if r.RevenueShareBps != 0 {
		return types.E(types.ErrInvalidTerms, "revenue share set without revenue sharing enabled")
	}
	return nil
}
