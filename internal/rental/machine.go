package rental

import (
	"time"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/finmath"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

type EventKind string

const (
	EventRent     EventKind = "RENT"
	EventComplete EventKind = "COMPLETE"
	EventExpire   EventKind = "EXPIRE"
	EventDelist   EventKind = "DELIST"
)

type Event struct {
	Kind   EventKind
	Caller string
	Renter string // Rent
}

type Context struct {
	Now time.Time
}

// Apply is the rental lifecycle state machine.
//
//	Listed --Rent-->     Rented
//	Listed --Delist-->   Delisted
//	Rented --Complete--> Completed  (on-time return, collateral refunded)
//	Rented --Expire-->   Expired    (never returned, collateral forfeited)
func Apply(rental Rental, ev Event, ctx Context) (Rental, []types.Effect, error) {
	switch ev.Kind {
	case EventRent:
		return applyRent(rental, ev, ctx)
	case EventComplete:
		return applyComplete(rental, ev, ctx)
	case EventExpire:
		return applyExpire(rental, ev, ctx)
	case EventDelist:
		return applyDelist(rental, ev)
	default:
		return rental, nil, types.E(types.ErrIllegalTransition, "rental %s: unknown event %q", rental.RentalID, ev.Kind)
	}
}

func applyRent(rental Rental, ev Event, ctx Context) (Rental, []types.Effect, error) {
	if rental.Status != StatusListed {
		if rental.Status == StatusRented {
			return rental, nil, types.E(types.ErrAlreadyMatched, "rental %s already has a renter", rental.RentalID)
		}
		return rental, nil, illegal(rental, ev.Kind)
	}
	if ev.Renter == "" || ev.Renter == rental.Owner {
		return rental, nil, types.E(types.ErrInvalidTerms, "rental %s: invalid renter", rental.RentalID)
	}

	start := ctx.Now
	rental.Status = StatusRented
	rental.Renter = ev.Renter
	rental.StartTime = &start

	effects := []types.Effect{
		types.CreditAccount(ev.Renter, types.EscrowAccount, rental.RentalFee, "rental fee escrowed"),
	}
	if rental.Collateral.Sign() > 0 {
		effects = append(effects,
			types.CreditAccount(ev.Renter, types.EscrowAccount, rental.Collateral, "rental collateral escrowed"))
	}
	effects = append(effects,
		types.TransferCustody(rental.Asset(), types.EscrowAccount, ev.Renter, "asset handed to renter"))
	return rental, effects, nil
}

func applyComplete(rental Rental, ev Event, ctx Context) (Rental, []types.Effect, error) {
	if rental.Status != StatusRented {
		return rental, nil, illegal(rental, ev.Kind)
	}
	if ev.Caller != rental.Renter {
		return rental, nil, types.E(types.ErrNotOwner, "only the renter may complete rental %s", rental.RentalID)
	}
	if ctx.Now.Before(rental.EndTime()) {
		return rental, nil, types.E(types.ErrNotExpired,
			"rental %s term runs until %s", rental.RentalID, rental.EndTime().Format(time.RFC3339))
	}

	rental.Status = StatusCompleted

	effects := []types.Effect{
		types.TransferCustody(rental.Asset(), rental.Renter, rental.Owner, "asset returned"),
	}
	if rental.Collateral.Sign() > 0 {
		effects = append(effects,
			types.CreditAccount(types.EscrowAccount, rental.Renter, rental.Collateral, "collateral returned"))
	}
	if rental.RevenueSharing {
		ownerCut := finmath.MulBps(rental.RentalFee, rental.RevenueShareBps)
		effects = append(effects,
			types.CreditAccount(types.EscrowAccount, rental.Owner, ownerCut, "owner revenue share"),
			types.CreditAccount(types.EscrowAccount, rental.Renter, rental.RentalFee.Sub(ownerCut), "renter revenue share"))
	} else {
		effects = append(effects,
			types.CreditAccount(types.EscrowAccount, rental.Owner, rental.RentalFee, "rental fee released"))
	}
	return rental, effects, nil
}

func applyExpire(rental Rental, ev Event, ctx Context) (Rental, []types.Effect, error) {
	if rental.Status != StatusRented {
		return rental, nil, illegal(rental, ev.Kind)
	}
	if ev.Caller != rental.Owner {
		return rental, nil, types.E(types.ErrNotOwner, "only the owner may expire rental %s", rental.RentalID)
	}
	if ctx.Now.Before(rental.EndTime()) {
		return rental, nil, types.E(types.ErrNotExpired,
			"rental %s term runs until %s", rental.RentalID, rental.EndTime().Format(time.RFC3339))
	}

	// The asset was never returned: the owner keeps the fee and claims the
	// collateral in compensation.
	rental.Status = StatusExpired

	effects := []types.Effect{
		types.CreditAccount(types.EscrowAccount, rental.Owner, rental.RentalFee, "rental fee released"),
	}
	if rental.Collateral.Sign() > 0 {
		effects = append(effects,
			types.CreditAccount(types.EscrowAccount, rental.Owner, rental.Collateral, "collateral forfeited"))
	}
	return rental, effects, nil
}

func applyDelist(rental Rental, ev Event) (Rental, []types.Effect, error) {
	if rental.Status != StatusListed {
		return rental, nil, illegal(rental, ev.Kind)
	}
	if ev.Caller != rental.Owner {
		return rental, nil, types.E(types.ErrNotOwner, "only the owner may delist rental %s", rental.RentalID)
	}

	rental.Status = StatusDelisted
	effects := []types.Effect{
		types.TransferCustody(rental.Asset(), types.EscrowAccount, rental.Owner, "listing removed"),
	}
	return rental, effects, nil
}

func illegal(rental Rental, ev EventKind) error {
	return types.E(types.ErrIllegalTransition, "rental %s: %s not allowed in state %s", rental.RentalID, ev, rental.Status)
}
