package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/fraction"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/ledger"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

type CreateFractionParams struct {
	ContractAddress string
	TokenID         string
	OriginalOwner   string
	PaymentAsset    string
	TotalSupply     types.Amount
	ReservePrice    types.Amount
}

// CreateFraction escrows the NFT and opens the share vault against it.
// The share mint itself is the Ledger's side of the FRACTIONALIZE action.
func (e *Engine) CreateFraction(ctx context.Context, p CreateFractionParams, idempotencyKey string) (*fraction.Fraction, error) {
	logger := log.With().
		Str("operation", "create_fraction").
		Str("original_owner", p.OriginalOwner).
		Logger()

	if id, ok := e.lookupIdempotent(idempotencyKey); ok {
		logger.Info().Str("fraction_id", id).Msg("returning fraction from idempotency record")
		return e.fractions.Get(id)
	}

	f := &fraction.Fraction{
		ContractAddress: p.ContractAddress,
		TokenID:         p.TokenID,
		OriginalOwner:   p.OriginalOwner,
		PaymentAsset:    paymentAssetOrNative(p.PaymentAsset),
		TotalSupply:     p.TotalSupply,
		ReservePrice:    p.ReservePrice,
		Active:          true,
		Status:          fraction.StatusActive,
	}
	if err := f.ValidateTerms(); err != nil {
		return nil, err
	}

	intent := &ledger.Intent{
		IntentID:   "INT_" + uuid.New().String(),
		EntityKind: types.EntityFraction,
		Action:     "FRACTIONALIZE",
		NewStatus:  fraction.StatusActive,
		Initiator:  p.OriginalOwner,
		Effects: []types.Effect{
			types.TransferCustody(f.Asset(), p.OriginalOwner, types.EscrowAccount, "fractionalized asset escrowed"),
		},
	}

	finality, err := e.submitAndAwait(ctx, intent, logger)
	if err != nil {
		return nil, err
	}
	if finality.Status != ledger.FinalityConfirmed {
		return nil, types.E(types.ErrLedgerRejected, "fractionalization reverted: %s", finality.Reason)
	}

	f.FractionID = finality.State.EntityID
	if err := e.fractions.Create(f); err != nil {
		return nil, err
	}
	if err := e.saveIdempotent(idempotencyKey, types.EntityFraction, f.FractionID); err != nil {
		logger.Error().Err(err).Msg("failed to save idempotency record")
	}

	logger.Info().Str("fraction_id", f.FractionID).Msg("fraction vault created")
	e.record(types.EntityFraction, f.FractionID, intent.Action, f.Status)
	return f, nil
}

// RedeemFraction is the full buyback: the caller surrenders the entire
// share supply and pays the reserve price, the supply is burned and the
// underlying NFT leaves escrow.
func (e *Engine) RedeemFraction(ctx context.Context, fractionID, caller string, payment, shares types.Amount) (*fraction.Fraction, error) {
	logger := log.With().
		Str("operation", string(fraction.EventRedeem)).
		Str("fraction_id", fractionID).
		Str("initiator", caller).
		Logger()

	if !e.locks.TryAcquire(fractionID) {
		return nil, types.E(types.ErrEntityBusy, "another operation is in flight for fraction %s", fractionID)
	}
	defer e.locks.Release(fractionID)

	f, err := e.fractions.Get(fractionID)
	if err != nil {
		return nil, err
	}

	next, effects, err := fraction.Apply(*f, fraction.Event{
		Kind:    fraction.EventRedeem,
		Caller:  caller,
		Payment: payment,
		Shares:  shares,
	}, fraction.Context{Now: e.now()})
	if err != nil {
		return nil, err
	}

	snapshot := f.Clone()
	next.PendingConfirmation = true
	if err := e.fractions.Update(&next); err != nil {
		return nil, err
	}

	intent := &ledger.Intent{
		IntentID:   "INT_" + uuid.New().String(),
		EntityKind: types.EntityFraction,
		EntityID:   fractionID,
		Action:     string(fraction.EventRedeem),
		NewStatus:  next.Status,
		Initiator:  caller,
		Effects:    effects,
	}

	finality, err := e.submitAndAwait(ctx, intent, logger)
	switch {
	case err == nil && finality.Status == ledger.FinalityConfirmed:
		next.PendingConfirmation = false
		if err := e.fractions.Update(&next); err != nil {
			return nil, err
		}
		logger.Info().Str("status", next.Status).Msg("fraction redemption confirmed")
		e.record(types.EntityFraction, fractionID, intent.Action, next.Status)
		return &next, nil

	case err == nil:
		if uerr := e.fractions.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		logger.Warn().Str("reason", finality.Reason).Msg("fraction redemption reverted by ledger")
		return nil, types.E(types.ErrLedgerRejected, "fraction %s redeem reverted: %s", fractionID, finality.Reason)

	case types.IsKind(err, types.ErrTimeout):
		next.PendingConfirmation = false
		e.stashPendingTransition(types.EntityFraction, fractionID, next.Status, &next, logger)
		snapshot.NeedsReconciliation = true
		if uerr := e.fractions.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		logger.Warn().Msg("finality timeout, fraction flagged for reconciliation")
		return nil, err

	default:
		if uerr := e.fractions.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		return nil, err
	}
}

func (e *Engine) GetFraction(fractionID string) (*fraction.Fraction, error) {
	return e.fractions.Get(fractionID)
}

func (e *Engine) ListFractionsByParticipant(address string) ([]fraction.Fraction, error) {
	return e.fractions.ListByParticipant(address)
}
