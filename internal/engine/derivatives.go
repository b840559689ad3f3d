package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/derivative"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/ledger"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

type CreateDerivativeParams struct {
	ContractAddress string
	TokenID         string
	Creator         string
	PaymentAsset    string
	Kind            string
	StrikePrice     types.Amount
	Premium         types.Amount
	ExpirationTime  time.Time
}

// CreateDerivative writes a cash-settled contract against the underlying.
// No custody moves at creation: the underlying stays with its owner and
// settlement is purely monetary.
func (e *Engine) CreateDerivative(ctx context.Context, p CreateDerivativeParams, idempotencyKey string) (*derivative.Derivative, error) {
	logger := log.With().
		Str("operation", "create_derivative").
		Str("creator", p.Creator).
		Str("kind", p.Kind).
		Logger()

	if id, ok := e.lookupIdempotent(idempotencyKey); ok {
		logger.Info().Str("derivative_id", id).Msg("returning derivative from idempotency record")
		return e.derivatives.Get(id)
	}

	d := &derivative.Derivative{
		ContractAddress: p.ContractAddress,
		TokenID:         p.TokenID,
		Creator:         p.Creator,
		PaymentAsset:    paymentAssetOrNative(p.PaymentAsset),
		Kind:            p.Kind,
		StrikePrice:     p.StrikePrice,
		Premium:         p.Premium,
		ExpirationTime:  p.ExpirationTime,
		Status:          derivative.StatusActive,
	}
	if err := d.ValidateTerms(e.now()); err != nil {
		return nil, err
	}

	intent := &ledger.Intent{
		IntentID:   "INT_" + uuid.New().String(),
		EntityKind: types.EntityDerivative,
		Action:     "CREATE",
		NewStatus:  derivative.StatusActive,
		Initiator:  p.Creator,
	}

	finality, err := e.submitAndAwait(ctx, intent, logger)
	if err != nil {
		return nil, err
	}
	if finality.Status != ledger.FinalityConfirmed {
		return nil, types.E(types.ErrLedgerRejected, "derivative creation reverted: %s", finality.Reason)
	}

	d.DerivativeID = finality.State.EntityID
	if err := e.derivatives.Create(d); err != nil {
		return nil, err
	}
	if err := e.saveIdempotent(idempotencyKey, types.EntityDerivative, d.DerivativeID); err != nil {
		logger.Error().Err(err).Msg("failed to save idempotency record")
	}

	logger.Info().Str("derivative_id", d.DerivativeID).Msg("derivative created")
	e.record(types.EntityDerivative, d.DerivativeID, intent.Action, d.Status)
	return d, nil
}

// PurchaseDerivative takes the buyer side of an open contract, paying the
// premium to the creator for options.
func (e *Engine) PurchaseDerivative(ctx context.Context, derivativeID, buyer string) (*derivative.Derivative, error) {
	return e.mutateDerivative(ctx, derivativeID, buyer, string(derivative.EventPurchase), false,
		func(d derivative.Derivative, _ types.Amount) (derivative.Derivative, []types.Effect, error) {
			return derivative.Apply(d, derivative.Event{
				Kind:   derivative.EventPurchase,
				Caller: buyer,
				Buyer:  buyer,
			}, derivative.Context{Now: e.now()})
		})
}

// ExerciseDerivative settles the contract in cash at the oracle valuation
// of the underlying.
func (e *Engine) ExerciseDerivative(ctx context.Context, derivativeID, caller string) (*derivative.Derivative, error) {
	return e.mutateDerivative(ctx, derivativeID, caller, string(derivative.EventExercise), true,
		func(d derivative.Derivative, oracleValue types.Amount) (derivative.Derivative, []types.Effect, error) {
			return derivative.Apply(d, derivative.Event{
				Kind:   derivative.EventExercise,
				Caller: caller,
			}, derivative.Context{Now: e.now(), OracleValue: oracleValue})
		})
}

// CancelDerivative withdraws a contract nobody has bought.
func (e *Engine) CancelDerivative(ctx context.Context, derivativeID, caller string) (*derivative.Derivative, error) {
	return e.mutateDerivative(ctx, derivativeID, caller, string(derivative.EventCancel), false,
		func(d derivative.Derivative, _ types.Amount) (derivative.Derivative, []types.Effect, error) {
			return derivative.Apply(d, derivative.Event{
				Kind:   derivative.EventCancel,
				Caller: caller,
			}, derivative.Context{Now: e.now()})
		})
}

// GetDerivative reports the contract with its lazily derived status: a
// stored ACTIVE past expiration reads as EXPIRED even before the sweep
// persists it.
func (e *Engine) GetDerivative(derivativeID string) (*derivative.Derivative, error) {
	d, err := e.derivatives.Get(derivativeID)
	if err != nil {
		return nil, err
	}
	d.Status = d.EffectiveStatus(e.now())
	return d, nil
}

func (e *Engine) ListDerivativesByParticipant(address string) ([]derivative.Derivative, error) {
	derivs, err := e.derivatives.ListByParticipant(address)
	if err != nil {
		return nil, err
	}
	for i := range derivs {
		derivs[i].Status = derivs[i].EffectiveStatus(e.now())
	}
	return derivs, nil
}

func (e *Engine) mutateDerivative(ctx context.Context, derivativeID, initiator, action string, needsOracle bool,
	step func(derivative.Derivative, types.Amount) (derivative.Derivative, []types.Effect, error)) (*derivative.Derivative, error) {

	logger := log.With().
		Str("operation", action).
		Str("derivative_id", derivativeID).
		Str("initiator", initiator).
		Logger()

	if !e.locks.TryAcquire(derivativeID) {
		return nil, types.E(types.ErrEntityBusy, "another operation is in flight for derivative %s", derivativeID)
	}
	defer e.locks.Release(derivativeID)

	d, err := e.derivatives.Get(derivativeID)
	if err != nil {
		return nil, err
	}

	var oracleValue types.Amount
	if needsOracle {
		oracleValue, err = e.quoteFor(ctx, d.Asset())
		if err != nil {
			return nil, err
		}
	}

	next, effects, err := step(*d, oracleValue)
	if err != nil {
		return nil, err
	}

	snapshot := d.Clone()
	next.PendingConfirmation = true
	if err := e.derivatives.Update(&next); err != nil {
		return nil, err
	}

	intent := &ledger.Intent{
		IntentID:   "INT_" + uuid.New().String(),
		EntityKind: types.EntityDerivative,
		EntityID:   derivativeID,
		Action:     action,
		NewStatus:  next.Status,
		Initiator:  initiator,
		Effects:    effects,
	}

	finality, err := e.submitAndAwait(ctx, intent, logger)
	switch {
	case err == nil && finality.Status == ledger.FinalityConfirmed:
		next.PendingConfirmation = false
		if err := e.derivatives.Update(&next); err != nil {
			return nil, err
		}
		logger.Info().Str("status", next.Status).Msg("derivative transition confirmed")
		e.record(types.EntityDerivative, derivativeID, action, next.Status)
		return &next, nil

	case err == nil:
		if uerr := e.derivatives.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		logger.Warn().Str("reason", finality.Reason).Msg("derivative transition reverted by ledger")
		return nil, types.E(types.ErrLedgerRejected, "derivative %s %s reverted: %s", derivativeID, action, finality.Reason)

	case types.IsKind(err, types.ErrTimeout):
		next.PendingConfirmation = false
		e.stashPendingTransition(types.EntityDerivative, derivativeID, next.Status, &next, logger)
		snapshot.NeedsReconciliation = true
		if uerr := e.derivatives.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		logger.Warn().Msg("finality timeout, derivative flagged for reconciliation")
		return nil, err

	default:
		if uerr := e.derivatives.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		return nil, err
	}
}
