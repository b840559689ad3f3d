package derivative

import (
	"time"

	"gorm.io/gorm"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

const (
	StatusActive    = "ACTIVE"
	StatusExercised = "EXERCISED"
	StatusExpired   = "EXPIRED"
	StatusCancelled = "CANCELLED"
)

// IsTerminal reports whether a derivative status admits no further
// transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusExercised, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Derivative is a cash-settled contract written against an NFT underlying:
// a call or put option, a future, or a non-exercisable index tracker.
// Options grant the buyer a right that lapses at expiration; futures are an
// obligation settleable up to and including expiration. Index trackers have
// no strike, no premium, and no settlement leg: they record exposure to the
// underlying's valuation and lapse at expiration.
type Derivative struct {
	gorm.Model          `json:"-"`
	DerivativeID        string       `gorm:"uniqueIndex" json:"derivative_id"`
	ContractAddress     string       `json:"contract_address"`
	TokenID             string       `json:"token_id"`
	Creator             string       `gorm:"index" json:"creator"`
	Buyer               string       `gorm:"index" json:"buyer,omitempty"`
	PaymentAsset        string       `json:"payment_asset"`
	Kind                string       `json:"kind"`
	StrikePrice         types.Amount `json:"strike_price"`
	Premium             types.Amount `json:"premium"`
	ExpirationTime      time.Time    `json:"expiration_time"`
	Status              string       `gorm:"index" json:"status"`
	PendingConfirmation bool         `json:"pending_confirmation"`
	NeedsReconciliation bool         `json:"needs_reconciliation"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

func (d *Derivative) Asset() types.AssetRef {
	return types.AssetRef{ContractAddress: d.ContractAddress, TokenID: d.TokenID}
}

// Clone returns a snapshot of the derivative for optimistic rollback.
func (d *Derivative) Clone() *Derivative {
	out := *d
	return &out
}

// IsOption reports whether the contract kind carries a premium and a
// lapsing exercise right.
func (d *Derivative) IsOption() bool {
	return d.Kind == types.DerivativeCall || d.Kind == types.DerivativePut
}

// EffectiveStatus derives the status as of the given instant. There is no
// ambient scheduler in the engine, so expiry is a lazy read: a contract
// past its expiration is EXPIRED regardless of what the stored status still
// says. The background sweep persists this observation eventually.
func (d *Derivative) EffectiveStatus(now time.Time) string {
	if d.Status == StatusActive && now.After(d.ExpirationTime) {
		return StatusExpired
	}
	return d.Status
}

// ValidateTerms enforces construction invariants before the contract is
// written to the Ledger.
func (d *Derivative) ValidateTerms(now time.Time) error {
	if d.Creator == "" {
		return types.E(types.ErrInvalidTerms, "creator address is required")
	}
	switch d.Kind {
	case types.DerivativeCall, types.DerivativePut:
		if d.Premium.Sign() <= 0 {
			return types.E(types.ErrInvalidTerms, "options require a positive premium")
		}
	case types.DerivativeFuture, types.DerivativeIndex:
		if d.Premium.Sign() != 0 {
			return types.E(types.ErrInvalidTerms, "%s contracts carry no premium", d.Kind)
		}
	default:
		return types.E(types.ErrInvalidTerms, "unknown derivative kind %q", d.Kind)
	}
	if d.Kind != types.DerivativeIndex && d.StrikePrice.Sign() <= 0 {
		return types.E(types.ErrInvalidTerms, "strike price must be positive")
	}
	if !d.ExpirationTime.After(now) {
		return types.E(types.ErrInvalidTerms, "expiration must lie in the future")
	}
	return nil
}
