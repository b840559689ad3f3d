package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/ledger"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/rental"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

type CreateRentalParams struct {
	ContractAddress string
	TokenID         string
	Owner           string
	PaymentAsset    string
	RentalFee       types.Amount
	DurationSeconds int64
	Collateral      types.Amount
	RevenueSharing  bool
	RevenueShareBps int64
}

// CreateRentalListing escrows the owner's NFT and lists it for rent.
func (e *Engine) CreateRentalListing(ctx context.Context, p CreateRentalParams, idempotencyKey string) (*rental.Rental, error) {
	logger := log.With().
		Str("operation", "create_rental_listing").
		Str("owner", p.Owner).
		Logger()

	if id, ok := e.lookupIdempotent(idempotencyKey); ok {
		logger.Info().Str("rental_id", id).Msg("returning rental from idempotency record")
		return e.rentals.Get(id)
	}

	r := &rental.Rental{
		ContractAddress: p.ContractAddress,
		TokenID:         p.TokenID,
		Owner:           p.Owner,
		PaymentAsset:    paymentAssetOrNative(p.PaymentAsset),
		RentalFee:       p.RentalFee,
		DurationSeconds: p.DurationSeconds,
		Collateral:      p.Collateral,
		RevenueSharing:  p.RevenueSharing,
		RevenueShareBps: p.RevenueShareBps,
		Status:          rental.StatusListed,
	}
	if err := r.ValidateTerms(); err != nil {
		return nil, err
	}

	intent := &ledger.Intent{
		IntentID:   "INT_" + uuid.New().String(),
		EntityKind: types.EntityRental,
		Action:     "CREATE_LISTING",
		NewStatus:  rental.StatusListed,
		Initiator:  p.Owner,
		Effects: []types.Effect{
			types.TransferCustody(r.Asset(), p.Owner, types.EscrowAccount, "rental asset escrowed"),
		},
	}

	finality, err := e.submitAndAwait(ctx, intent, logger)
	if err != nil {
		return nil, err
	}
	if finality.Status != ledger.FinalityConfirmed {
		return nil, types.E(types.ErrLedgerRejected, "rental listing reverted: %s", finality.Reason)
	}

	r.RentalID = finality.State.EntityID
	if err := e.rentals.Create(r); err != nil {
		return nil, err
	}
	if err := e.saveIdempotent(idempotencyKey, types.EntityRental, r.RentalID); err != nil {
		logger.Error().Err(err).Msg("failed to save idempotency record")
	}

	logger.Info().Str("rental_id", r.RentalID).Msg("rental listing created")
	e.record(types.EntityRental, r.RentalID, intent.Action, r.Status)
	return r, nil
}

// RentAsset hands custody to the renter for the term, escrowing the fee
// and the collateral.
func (e *Engine) RentAsset(ctx context.Context, rentalID, renter string) (*rental.Rental, error) {
	return e.mutateRental(ctx, rentalID, renter, string(rental.EventRent),
		func(r rental.Rental) (rental.Rental, []types.Effect, error) {
			return rental.Apply(r, rental.Event{
				Kind:   rental.EventRent,
				Caller: renter,
				Renter: renter,
			}, rental.Context{Now: e.now()})
		})
}

// CompleteRental is the renter's on-time return: collateral comes back and
// the escrowed fee is released, split when revenue sharing is on.
func (e *Engine) CompleteRental(ctx context.Context, rentalID, caller string) (*rental.Rental, error) {
	return e.mutateRental(ctx, rentalID, caller, string(rental.EventComplete),
		func(r rental.Rental) (rental.Rental, []types.Effect, error) {
			return rental.Apply(r, rental.Event{
				Kind:   rental.EventComplete,
				Caller: caller,
			}, rental.Context{Now: e.now()})
		})
}

// ExpireRental lets the owner claim the fee and the forfeited collateral
// when the term lapsed without a return.
func (e *Engine) ExpireRental(ctx context.Context, rentalID, caller string) (*rental.Rental, error) {
	return e.mutateRental(ctx, rentalID, caller, string(rental.EventExpire),
		func(r rental.Rental) (rental.Rental, []types.Effect, error) {
			return rental.Apply(r, rental.Event{
				Kind:   rental.EventExpire,
				Caller: caller,
			}, rental.Context{Now: e.now()})
		})
}

// DelistRental withdraws an unrented listing and returns the asset.
func (e *Engine) DelistRental(ctx context.Context, rentalID, caller string) (*rental.Rental, error) {
	return e.mutateRental(ctx, rentalID, caller, string(rental.EventDelist),
		func(r rental.Rental) (rental.Rental, []types.Effect, error) {
			return rental.Apply(r, rental.Event{
				Kind:   rental.EventDelist,
				Caller: caller,
			}, rental.Context{Now: e.now()})
		})
}

func (e *Engine) GetRental(rentalID string) (*rental.Rental, error) {
	return e.rentals.Get(rentalID)
}

func (e *Engine) ListRentalsByParticipant(address string) ([]rental.Rental, error) {
	return e.rentals.ListByParticipant(address)
}

func (e *Engine) mutateRental(ctx context.Context, rentalID, initiator, action string,
	step func(rental.Rental) (rental.Rental, []types.Effect, error)) (*rental.Rental, error) {

	logger := log.With().
		Str("operation", action).
		Str("rental_id", rentalID).
		Str("initiator", initiator).
		Logger()

	if !e.locks.TryAcquire(rentalID) {
		return nil, types.E(types.ErrEntityBusy, "another operation is in flight for rental %s", rentalID)
	}
	defer e.locks.Release(rentalID)

	r, err := e.rentals.Get(rentalID)
	if err != nil {
		return nil, err
	}

	next, effects, err := step(*r)
	if err != nil {
		return nil, err
	}

	snapshot := r.Clone()
	next.PendingConfirmation = true
	if err := e.rentals.Update(&next); err != nil {
		return nil, err
	}

	intent := &ledger.Intent{
		IntentID:   "INT_" + uuid.New().String(),
		EntityKind: types.EntityRental,
		EntityID:   rentalID,
		Action:     action,
		NewStatus:  next.Status,
		Initiator:  initiator,
		Effects:    effects,
	}

	finality, err := e.submitAndAwait(ctx, intent, logger)
	switch {
	case err == nil && finality.Status == ledger.FinalityConfirmed:
		next.PendingConfirmation = false
		if err := e.rentals.Update(&next); err != nil {
			return nil, err
		}
		logger.Info().Str("status", next.Status).Msg("rental transition confirmed")
		e.record(types.EntityRental, rentalID, action, next.Status)
		return &next, nil

	case err == nil:
		if uerr := e.rentals.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		logger.Warn().Str("reason", finality.Reason).Msg("rental transition reverted by ledger")
		return nil, types.E(types.ErrLedgerRejected, "rental %s %s reverted: %s", rentalID, action, finality.Reason)

	case types.IsKind(err, types.ErrTimeout):
		next.PendingConfirmation = false
		e.stashPendingTransition(types.EntityRental, rentalID, next.Status, &next, logger)
		snapshot.NeedsReconciliation = true
		if uerr := e.rentals.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		logger.Warn().Msg("finality timeout, rental flagged for reconciliation")
		return nil, err

	default:
		if uerr := e.rentals.Update(snapshot); uerr != nil {
			return nil, uerr
		}
		return nil, err
	}
}
