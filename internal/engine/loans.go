package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/ledger"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/lending"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// CreateLoanParams are the borrower's listing terms. The principal is not
// among them: the floor is a constraint, the lender's offer sets the value.
type CreateLoanParams struct {
	ContractAddress         string
	TokenID                 string
	Borrower                string
	PaymentAsset            string
	PrincipalMin            types.Amount
	InterestRateBps         int64
	DurationSeconds         int64
	CollateralFactorBps     int64
	LiquidationThresholdBps int64
}

// CreateLoanListing escrows the borrower's NFT and opens a PENDING loan
// listing. The loan id is minted by the Ledger on confirmation.
func (e *Engine) CreateLoanListing(ctx context.Context, p CreateLoanParams, idempotencyKey string) (*lending.Loan, error) {
	logger := log.With().
		Str("operation", "create_loan_listing").
		Str("borrower", p.Borrower).
		Logger()

	if id, ok := e.lookupIdempotent(idempotencyKey); ok {
		logger.Info().Str("loan_id", id).Msg("returning loan from idempotency record")
		return e.loans.Get(id)
	}

	loan := &lending.Loan{
		ContractAddress:         p.ContractAddress,
		TokenID:                 p.TokenID,
		Borrower:                p.Borrower,
		PaymentAsset:            paymentAssetOrNative(p.PaymentAsset),
		PrincipalMin:            p.PrincipalMin,
		InterestRateBps:         p.InterestRateBps,
		DurationSeconds:         p.DurationSeconds,
		CollateralFactorBps:     p.CollateralFactorBps,
		LiquidationThresholdBps: p.LiquidationThresholdBps,
		Status:                  lending.StatusPending,
	}
	if err := loan.ValidateTerms(); err != nil {
		return nil, err
	}

	intent := &ledger.Intent{
		IntentID:   "INT_" + uuid.New().String(),
		EntityKind: types.EntityLoan,
		Action:     "CREATE_LISTING",
		NewStatus:  lending.StatusPending,
		Initiator:  p.Borrower,
		Effects: []types.Effect{
			types.TransferCustody(loan.Asset(), p.Borrower, types.EscrowAccount, "loan collateral escrowed"),
		},
	}

	finality, err := e.submitAndAwait(ctx, intent, logger)
	if err != nil {
		return nil, err
	}
	if finality.Status != ledger.FinalityConfirmed {
		return nil, types.E(types.ErrLedgerRejected, "loan listing reverted: %s", finality.Reason)
	}

	loan.LoanID = finality.State.EntityID
	if err := e.loans.Create(loan); err != nil {
		return nil, err
	}
	if err := e.saveIdempotent(idempotencyKey, types.EntityLoan, loan.LoanID); err != nil {
		logger.Error().Err(err).Msg("failed to save idempotency record")
	}

	logger.Info().Str("loan_id", loan.LoanID).Msg("loan listing created")
	e.record(types.EntityLoan, loan.LoanID, intent.Action, loan.Status)
	return loan, nil
}

// MatchLoanOffer matches a lender's offer against a pending listing. The
// offer must clear the borrower's floor and fit within the oracle-valued
// collateral capacity.
func (e *Engine) MatchLoanOffer(ctx context.Context, loanID, lender string, principal types.Amount) (*lending.Loan, error) {
	return e.mutateLoan(ctx, loanID, lender, string(lending.EventMatchOffer), true,
		func(loan lending.Loan, oracleValue types.Amount) (lending.Loan, []types.Effect, error) {
			return lending.Apply(loan, lending.Event{
				Kind:      lending.EventMatchOffer,
				Caller:    lender,
				Lender:    lender,
				Principal: principal,
			}, lending.Context{Now: e.now(), OracleValue: oracleValue})
		})
}

// RepayLoan settles the outstanding debt and releases the collateral back
// to the borrower. Any payer may repay; the payment flows to the lender.
func (e *Engine) RepayLoan(ctx context.Context, loanID, caller string, payment types.Amount) (*lending.Loan, error) {
	return e.mutateLoan(ctx, loanID, caller, string(lending.EventRepay), false,
		func(loan lending.Loan, _ types.Amount) (lending.Loan, []types.Effect, error) {
			return lending.Apply(loan, lending.Event{
				Kind:    lending.EventRepay,
				Caller:  caller,
				Payment: payment,
			}, lending.Context{Now: e.now()})
		})
}

// LiquidateLoan lets the lender seize the collateral once the loan has
// matured unpaid or the health factor fell through the threshold.
func (e *Engine) LiquidateLoan(ctx context.Context, loanID, caller string) (*lending.Loan, error) {
	return e.mutateLoan(ctx, loanID, caller, string(lending.EventLiquidate), true,
		func(loan lending.Loan, oracleValue types.Amount) (lending.Loan, []types.Effect, error) {
			return lending.Apply(loan, lending.Event{
				Kind:   lending.EventLiquidate,
				Caller: caller,
			}, lending.Context{Now: e.now(), OracleValue: oracleValue})
		})
}

// CancelLoan withdraws an unmatched listing and returns the collateral.
func (e *Engine) CancelLoan(ctx context.Context, loanID, caller string) (*lending.Loan, error) {
	return e.mutateLoan(ctx, loanID, caller, string(lending.EventCancel), false,
		func(loan lending.Loan, _ types.Amount) (lending.Loan, []types.Effect, error) {
			return lending.Apply(loan, lending.Event{
				Kind:   lending.EventCancel,
				Caller: caller,
			}, lending.Context{Now: e.now()})
		})
}

func (e *Engine) GetLoan(loanID string) (*lending.Loan, error) {
	return e.loans.Get(loanID)
}

func (e *Engine) ListLoansByParticipant(address string) ([]lending.Loan, error) {
	return e.loans.ListByParticipant(address)
}

// mutateLoan runs one loan lifecycle transition under the coordinator
// protocol: lock, load, guard, optimistic apply, submit, finality.
func (e *Engine) mutateLoan(ctx context.Context, loanID, initiator, action string, needsOracle bool,
	step func(lending.Loan, types.Amount) (lending.Loan, []types.Effect, error)) (*lending.Loan, error) {

	logger := log.With().
		Str("operation", action).
		Str("loan_id", loanID).
		Str("initiator", initiator).
		Logger()

	if !e.locks.TryAcquire(loanID) {
		return nil, types.E(types.ErrEntityBusy, "another operation is in flight for loan %s", loanID)
	}
	defer e.locks.Release(loanID)

	loan, err := e.loans.Get(loanID)
	if err != nil {
		return nil, err
	}

	var oracleValue types.Amount
	if needsOracle {
		oracleValue, err = e.quoteFor(ctx, loan.Asset())
		if err != nil {
			return nil, err
		}
	}

	next, effects, err := step(*loan, oracleValue)
	if err != nil {
		return nil, err
	}

	snapshot := loan.Clone()
	next.PendingConfirmation = true
	if err := e.loans.Update(&next); err != nil {
		return nil, err
	}

	intent := &ledger.Intent{
		IntentID:   "INT_" + uuid.New().String(),
		EntityKind: types.EntityLoan,
		EntityID:   loanID,
		Action:     action,
		NewStatus:  next.Status,
		Initiator:  initiator,
		Effects:    effects,
	}

	finality, err := e.submitAndAwait(ctx, intent, logger)
	switch {
	case err == nil && finality.Status == ledger.FinalityConfirmed:
		next.PendingConfirmation = false
		if err := e.loans.Update(&next); err != nil {
			return nil, err
		}
		logger.Info().Str("status", next.Status).Msg("loan transition confirmed")
		e.record(types.EntityLoan, loanID, action, next.Status)
		return &next, nil

	case err == nil:
		if uerr := e.loans.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		logger.Warn().Str("reason", finality.Reason).Msg("loan transition reverted by ledger")
		return nil, types.E(types.ErrLedgerRejected, "loan %s %s reverted: %s", loanID, action, finality.Reason)

	case types.IsKind(err, types.ErrTimeout):
		next.PendingConfirmation = false
		e.stashPendingTransition(types.EntityLoan, loanID, next.Status, &next, logger)
		snapshot.NeedsReconciliation = true
		if uerr := e.loans.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		logger.Warn().Msg("finality timeout, loan flagged for reconciliation")
		return nil, err

	default:
		if uerr := e.loans.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		return nil, err
	}
}

func paymentAssetOrNative(asset string) string {
	if asset == "" {
		return types.PaymentNative
	}
	return asset
}
