package lending

import (
	"time"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/finmath"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// EventKind enumerates the loan lifecycle events.
type EventKind string

const (
	EventMatchOffer EventKind = "MATCH_OFFER"
	EventCancel     EventKind = "CANCEL"
	EventRepay      EventKind = "REPAY"
	EventLiquidate  EventKind = "LIQUIDATE"
)

// Event carries a lifecycle event and its payload.
type Event struct {
	Kind      EventKind
	Caller    string
	Lender    string       // MatchOffer
	Principal types.Amount // MatchOffer: the lender's offer
	Payment   types.Amount // Repay
}

// Context carries the numeric inputs a transition guard needs. The machine
// itself never reads clocks or oracles.
type Context struct {
	Now         time.Time
	OracleValue types.Amount
}

// Apply is the loan lifecycle state machine: a pure transition from
// (loan, event, context) to (loan', effects). On any error the input loan
// is returned unchanged and nothing may be mutated by the caller.
//
//	Pending --MatchOffer--> Active
//	Pending --Cancel-->     Cancelled
//	Active  --Repay-->      Repaid
//	Active  --Liquidate-->  Liquidated
func Apply(loan Loan, ev Event, ctx Context) (Loan, []types.Effect, error) {
	switch ev.Kind {
	case EventMatchOffer:
		return applyMatchOffer(loan, ev, ctx)
	case EventCancel:
		return applyCancel(loan, ev)
	case EventRepay:
		return applyRepay(loan, ev, ctx)
	case EventLiquidate:
		return applyLiquidate(loan, ev, ctx)
	default:
		return loan, nil, types.E(types.ErrIllegalTransition, "loan %s: unknown event %q", loan.LoanID, ev.Kind)
	}
}

func applyMatchOffer(loan Loan, ev Event, ctx Context) (Loan, []types.Effect, error) {
	if loan.Status != StatusPending {
		if loan.Status == StatusActive {
			return loan, nil, types.E(types.ErrAlreadyMatched, "loan %s already has a lender", loan.LoanID)
		}
		return loan, nil, illegal(loan, ev.Kind)
	}
	if ev.Principal.Cmp(loan.PrincipalMin) < 0 {
		return loan, nil, types.E(types.ErrInvalidTerms,
			"offer %s below borrower floor %s", ev.Principal, loan.PrincipalMin)
	}
	max := finmath.MaxPrincipal(ctx.OracleValue, loan.CollateralFactorBps)
	if ev.Principal.Cmp(max) > 0 {
		return loan, nil, types.E(types.ErrInsufficientCollateral,
			"offer %s exceeds max principal %s at oracle value %s", ev.Principal, max, ctx.OracleValue)
	}

	start := ctx.Now
	loan.Status = StatusActive
	loan.Lender = ev.Lender
	loan.Principal = ev.Principal
	loan.StartTime = &start

	effects := []types.Effect{
		types.CreditAccount(ev.Lender, loan.Borrower, ev.Principal, "loan principal advance"),
	}
	return loan, effects, nil
}

func applyCancel(loan Loan, ev Event) (Loan, []types.Effect, error) {
	if loan.Status != StatusPending {
		return loan, nil, illegal(loan, ev.Kind)
	}
	if ev.Caller != loan.Borrower {
		return loan, nil, types.E(types.ErrNotOwner, "only the borrower may cancel loan %s", loan.LoanID)
	}

	loan.Status = StatusCancelled
	effects := []types.Effect{
		types.TransferCustody(loan.Asset(), types.EscrowAccount, loan.Borrower, "listing cancelled"),
	}
	return loan, effects, nil
}

func applyRepay(loan Loan, ev Event, ctx Context) (Loan, []types.Effect, error) {
	if loan.Status != StatusActive {
		return loan, nil, illegal(loan, ev.Kind)
	}
	owed := loan.RepayAmountAt(ctx.Now)
	if ev.Payment.Cmp(owed) < 0 {
		return loan, nil, types.E(types.ErrInsufficientPayment,
			"payment %s below repay amount %s", ev.Payment, owed)
	}

	loan.Status = StatusRepaid
	effects := []types.Effect{
		types.CreditAccount(ev.Caller, loan.Lender, owed, "loan repayment"),
		types.TransferCustody(loan.Asset(), types.EscrowAccount, loan.Borrower, "collateral returned"),
	}
	return loan, effects, nil
}

func applyLiquidate(loan Loan, ev Event, ctx Context) (Loan, []types.Effect, error) {
	if loan.Status != StatusActive {
		return loan, nil, illegal(loan, ev.Kind)
	}
	if ev.Caller != loan.Lender {
		return loan, nil, types.E(types.ErrNotOwner, "only the lender may liquidate loan %s", loan.LoanID)
	}

	owed := loan.RepayAmountAt(ctx.Now)
	hf, err := finmath.HealthFactor(ctx.OracleValue, owed)
	if err != nil {
		return loan, nil, err
	}
	if !finmath.IsLiquidatable(ctx.Now, *loan.StartTime, loan.DurationSeconds, hf, loan.LiquidationThresholdBps) {
		return loan, nil, types.E(types.ErrNotExpired,
			"loan %s is neither matured nor undercollateralized (health %d bps)", loan.LoanID, hf)
	}

	loan.Status = StatusLiquidated
	effects := []types.Effect{
		types.TransferCustody(loan.Asset(), types.EscrowAccount, loan.Lender, "collateral seized"),
	}
	return loan, effects, nil
}

func illegal(loan Loan, ev EventKind) error {
	return types.E(types.ErrIllegalTransition, "loan %s: %s not allowed in state %s", loan.LoanID, ev, loan.Status)
}
