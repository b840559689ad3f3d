package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/derivative"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

// Reconciler is the background loop that squares the local cache with the
// Ledger. It has two jobs: re-reading records whose transaction timed out
// locally (the intent may still have landed), and persisting the EXPIRED
// status of derivative contracts past their expiration.
type Reconciler struct {
	engine   *Engine
	interval time.Duration
}

func NewReconciler(e *Engine) *Reconciler {
	return &Reconciler{
		engine:   e,
		interval: e.cfg.ReconcileInterval,
	}
}

// Start runs the reconciliation loop until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	logger := log.With().Str("component", "reconciler").Logger()
	logger.Info().Dur("interval", r.interval).Msg("starting reconciler")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down reconciler")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	logger := log.With().Str("component", "reconciler").Logger()

	r.reconcileLoans(ctx, logger)
	r.reconcileRentals(ctx, logger)
	r.reconcileFractions(ctx, logger)
	r.reconcileDerivatives(ctx, logger)
	r.sweepExpiredDerivatives(ctx, logger)
}

// adoptLedgerState re-reads one entity from the Ledger and returns the
// status the local record should carry. ok is false when the entity must
// be skipped this pass.
func (r *Reconciler) adoptLedgerState(ctx context.Context, entityID, localStatus string, logger zerolog.Logger) (string, bool) {
	state, err := r.engine.ledger.ReadEntity(ctx, entityID)
	if err != nil {
		if types.IsKind(err, types.ErrNotFound) {
			// The timed-out intent never landed. The rolled-back local
			// state stands.
			return localStatus, true
		}
		logger.Error().Err(err).Str("entity_id", entityID).Msg("ledger read failed, will retry next pass")
		return "", false
	}
	if state.Status != localStatus {
		logger.Info().
			Str("entity_id", entityID).
			Str("local_status", localStatus).
			Str("ledger_status", state.Status).
			Msg("adopting ledger state after timeout")
	}
	return state.Status, true
}

func (r *Reconciler) reconcileLoans(ctx context.Context, logger zerolog.Logger) {
	loans, err := r.engine.loans.ListNeedingReconciliation()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list loans needing reconciliation")
		return
	}
	for i := range loans {
		loan := loans[i]
		if !r.engine.locks.TryAcquire(loan.LoanID) {
			continue
		}
		status, ok := r.adoptLedgerState(ctx, loan.LoanID, loan.Status, logger)
		if ok {
			changed := status != loan.Status
			if changed {
				// The intent landed: restore the transition's full payload,
				// not just the status, so the loan keeps its lender,
				// principal, and start time.
				if !r.engine.restorePendingTransition(loan.LoanID, status, &loan, logger) {
					loan.Status = status
				}
				loan.PendingConfirmation = false
			}
			loan.NeedsReconciliation = false
			if err := r.engine.loans.Update(&loan); err != nil {
				logger.Error().Err(err).Str("loan_id", loan.LoanID).Msg("failed to persist reconciled loan")
			} else {
				r.engine.clearPendingTransition(loan.LoanID)
				if changed {
					r.engine.record(types.EntityLoan, loan.LoanID, "RECONCILE", loan.Status)
				}
			}
		}
		r.engine.locks.Release(loan.LoanID)
	}
}

func (r *Reconciler) reconcileRentals(ctx context.Context, logger zerolog.Logger) {
	rentals, err := r.engine.rentals.ListNeedingReconciliation()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list rentals needing reconciliation")
		return
	}
	for i := range rentals {
		rec := rentals[i]
		if !r.engine.locks.TryAcquire(rec.RentalID) {
			continue
		}
		status, ok := r.adoptLedgerState(ctx, rec.RentalID, rec.Status, logger)
		if ok {
			changed := status != rec.Status
			if changed {
				if !r.engine.restorePendingTransition(rec.RentalID, status, &rec, logger) {
					rec.Status = status
				}
				rec.PendingConfirmation = false
			}
			rec.NeedsReconciliation = false
			if err := r.engine.rentals.Update(&rec); err != nil {
				logger.Error().Err(err).Str("rental_id", rec.RentalID).Msg("failed to persist reconciled rental")
			} else {
				r.engine.clearPendingTransition(rec.RentalID)
				if changed {
					r.engine.record(types.EntityRental, rec.RentalID, "RECONCILE", rec.Status)
				}
			}
		}
		r.engine.locks.Release(rec.RentalID)
	}
}

func (r *Reconciler) reconcileFractions(ctx context.Context, logger zerolog.Logger) {
	fractions, err := r.engine.fractions.ListNeedingReconciliation()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list fractions needing reconciliation")
		return
	}
	for i := range fractions {
		rec := fractions[i]
		if !r.engine.locks.TryAcquire(rec.FractionID) {
			continue
		}
		status, ok := r.adoptLedgerState(ctx, rec.FractionID, rec.Status, logger)
		if ok {
			changed := status != rec.Status
			if changed {
				if !r.engine.restorePendingTransition(rec.FractionID, status, &rec, logger) {
					rec.Status = status
				}
				rec.PendingConfirmation = false
			}
			rec.NeedsReconciliation = false
			if err := r.engine.fractions.Update(&rec); err != nil {
				logger.Error().Err(err).Str("fraction_id", rec.FractionID).Msg("failed to persist reconciled fraction")
			} else {
				r.engine.clearPendingTransition(rec.FractionID)
				if changed {
					r.engine.record(types.EntityFraction, rec.FractionID, "RECONCILE", rec.Status)
				}
			}
		}
		r.engine.locks.Release(rec.FractionID)
	}
}

func (r *Reconciler) reconcileDerivatives(ctx context.Context, logger zerolog.Logger) {
	derivs, err := r.engine.derivatives.ListNeedingReconciliation()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list derivatives needing reconciliation")
		return
	}
	for i := range derivs {
		rec := derivs[i]
		if !r.engine.locks.TryAcquire(rec.DerivativeID) {
			continue
		}
		status, ok := r.adoptLedgerState(ctx, rec.DerivativeID, rec.Status, logger)
		if ok {
			changed := status != rec.Status
			if changed {
				if !r.engine.restorePendingTransition(rec.DerivativeID, status, &rec, logger) {
					rec.Status = status
				}
				rec.PendingConfirmation = false
			}
			rec.NeedsReconciliation = false
			if err := r.engine.derivatives.Update(&rec); err != nil {
				logger.Error().Err(err).Str("derivative_id", rec.DerivativeID).Msg("failed to persist reconciled derivative")
			} else {
				r.engine.clearPendingTransition(rec.DerivativeID)
				if changed {
					r.engine.record(types.EntityDerivative, rec.DerivativeID, "RECONCILE", rec.Status)
				}
			}
		}
		r.engine.locks.Release(rec.DerivativeID)
	}
}

// sweepExpiredDerivatives persists the lazy-expiry observation: contracts
// stored ACTIVE but past expiration are settled as EXPIRED through the
// ordinary coordinator path, so the Ledger records the lapse too.
func (r *Reconciler) sweepExpiredDerivatives(ctx context.Context, logger zerolog.Logger) {
	expired, err := r.engine.derivatives.ListExpiredActive(r.engine.now())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list expired derivatives")
		return
	}
	for _, d := range expired {
		_, err := r.engine.mutateDerivative(ctx, d.DerivativeID, "system", string(derivative.EventExpire), false,
			func(rec derivative.Derivative, _ types.Amount) (derivative.Derivative, []types.Effect, error) {
				return derivative.Apply(rec, derivative.Event{Kind: derivative.EventExpire},
					derivative.Context{Now: r.engine.now()})
			})
		if err != nil {
			if types.IsKind(err, types.ErrEntityBusy) {
				continue
			}
			logger.Error().Err(err).Str("derivative_id", d.DerivativeID).Msg("failed to expire derivative")
			continue
		}
		logger.Info().Str("derivative_id", d.DerivativeID).Msg("derivative expired by sweep")
	}
}
