package lending

import (
	"time"

	"gorm.io/gorm"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/finmath"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

const (
	StatusPending    = "PENDING"
	StatusActive     = "ACTIVE"
	StatusRepaid     = "REPAID"
	StatusLiquidated = "LIQUIDATED"
	StatusCancelled  = "CANCELLED"
)

// IsTerminal reports whether a loan status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusRepaid, StatusLiquidated, StatusCancelled:
		return true
	}
	return false
}

// Loan is a collateralized NFT loan. The borrower escrows the NFT and asks
// for at least PrincipalMin; a lender matches with a concrete principal,
// which is fixed from that point on. Ids are minted by the Ledger.
type Loan struct {
	gorm.Model              `json:"-"`
	LoanID                  string       `gorm:"uniqueIndex" json:"loan_id"`
	ContractAddress         string       `json:"contract_address"`
	TokenID                 string       `json:"token_id"`
	Borrower                string       `gorm:"index" json:"borrower"`
	Lender                  string       `gorm:"index" json:"lender,omitempty"`
	PaymentAsset            string       `json:"payment_asset"`
	PrincipalMin            types.Amount `json:"principal_min"`
	Principal               types.Amount `json:"principal"`
	InterestRateBps         int64        `json:"interest_rate_bps"`
	DurationSeconds         int64        `json:"duration_seconds"`
	CollateralFactorBps     int64        `json:"collateral_factor_bps"`
	LiquidationThresholdBps int64        `json:"liquidation_threshold_bps"`
	StartTime               *time.Time   `json:"start_time,omitempty"`
	Status                  string       `gorm:"index" json:"status"`
	PendingConfirmation     bool         `json:"pending_confirmation"`
	NeedsReconciliation     bool         `json:"needs_reconciliation"`
	CreatedAt               time.Time    `json:"created_at"`
	UpdatedAt               time.Time    `json:"updated_at"`
}

// Asset is the custody reference for the escrowed NFT.
func (l *Loan) Asset() types.AssetRef {
	return types.AssetRef{ContractAddress: l.ContractAddress, TokenID: l.TokenID}
}

// Clone returns a snapshot of the loan for optimistic rollback.
func (l *Loan) Clone() *Loan {
	out := *l
	if l.StartTime != nil {
		t := *l.StartTime
		out.StartTime = &t
	}
	return &out
}

// ValidateTerms enforces construction invariants before a listing is ever
// submitted to the Ledger.
func (l *Loan) ValidateTerms() error {
	if l.Borrower == "" {
		return types.E(types.ErrInvalidTerms, "borrower address is required")
	}
	if l.PrincipalMin.Sign() <= 0 {
		return types.E(types.ErrInvalidTerms, "principal floor must be positive")
	}
	if l.DurationSeconds <= 0 {
		return types.E(types.ErrInvalidTerms, "duration must be positive")
	}
	if l.InterestRateBps < 0 {
		return types.E(types.ErrInvalidTerms, "interest rate cannot be negative")
	}
	if l.CollateralFactorBps <= 0 || l.CollateralFactorBps > l.LiquidationThresholdBps || l.LiquidationThresholdBps > 10000 {
		return types.E(types.ErrInvalidTerms,
			"require 0 < collateral factor (%d) <= liquidation threshold (%d) <= 10000",
			l.CollateralFactorBps, l.LiquidationThresholdBps)
	}
	return nil
}

// RepayAmountAt is the outstanding debt at the given instant. Only valid
// once the loan is matched.
func (l *Loan) RepayAmountAt(now time.Time) types.Amount {
	if l.StartTime == nil {
		return types.NewAmount(0)
	}
	elapsed := int64(now.Sub(*l.StartTime) / time.Second)
	return finmath.RepayAmount(l.Principal, l.InterestRateBps, elapsed, l.DurationSeconds)
}
