package derivative

import (
	"time"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/finmath"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

type EventKind string

const (
	EventPurchase EventKind = "PURCHASE"
	EventExercise EventKind = "EXERCISE"
	EventCancel   EventKind = "CANCEL"
	EventExpire   EventKind = "EXPIRE"
)

type Event struct {
	Kind   EventKind
	Caller string
	Buyer  string // Purchase
}

type Context struct {
	Now         time.Time
	OracleValue types.Amount // Exercise: settlement valuation of the underlying
}

// Apply is the derivative lifecycle state machine.
//
//	Active --Purchase--> Active (buyer set, premium paid)
//	Active --Exercise--> Exercised (cash settlement at oracle value)
//	Active --Cancel-->   Cancelled (creator, unpurchased only)
//	Active --Expire-->   Expired (past expiration, no settlement)
func Apply(d Derivative, ev Event, ctx Context) (Derivative, []types.Effect, error) {
	switch ev.Kind {
	case EventPurchase:
		return applyPurchase(d, ev, ctx)
	case EventExercise:
		return applyExercise(d, ev, ctx)
	case EventCancel:
		return applyCancel(d, ev, ctx)
	case EventExpire:
		return applyExpire(d, ev, ctx)
	default:
		return d, nil, types.E(types.ErrIllegalTransition, "derivative %s: unknown event %q", d.DerivativeID, ev.Kind)
	}
}

func applyPurchase(d Derivative, ev Event, ctx Context) (Derivative, []types.Effect, error) {
	if status := d.EffectiveStatus(ctx.Now); status != StatusActive {
		return d, nil, illegal(d, ev.Kind, status)
	}
	if d.Buyer != "" {
		return d, nil, types.E(types.ErrAlreadyMatched, "derivative %s already has a buyer", d.DerivativeID)
	}
	if ev.Buyer == "" || ev.Buyer == d.Creator {
		return d, nil, types.E(types.ErrInvalidTerms, "derivative %s: invalid buyer", d.DerivativeID)
	}

	d.Buyer = ev.Buyer

	var effects []types.Effect
	if d.Premium.Sign() > 0 {
		effects = append(effects,
			types.CreditAccount(ev.Buyer, d.Creator, d.Premium, "option premium"))
	}
	return d, effects, nil
}

func applyExercise(d Derivative, ev Event, ctx Context) (Derivative, []types.Effect, error) {
	if status := d.EffectiveStatus(ctx.Now); status != StatusActive {
		return d, nil, illegal(d, ev.Kind, status)
	}
	if d.Buyer == "" {
		return d, nil, types.E(types.ErrIllegalTransition,
			"derivative %s: cannot exercise an unpurchased contract", d.DerivativeID)
	}
	if ev.Caller != d.Buyer {
		return d, nil, types.E(types.ErrNotOwner, "only the buyer may exercise derivative %s", d.DerivativeID)
	}
	// Options lapse at expiration; futures are an obligation and settle up
	// to and including it.
	if d.IsOption() && !ctx.Now.Before(d.ExpirationTime) {
		return d, nil, types.E(types.ErrIllegalTransition,
			"derivative %s: option expired at %s", d.DerivativeID, d.ExpirationTime.Format(time.RFC3339))
	}
	if d.Kind == types.DerivativeFuture && ctx.Now.After(d.ExpirationTime) {
		return d, nil, types.E(types.ErrIllegalTransition,
			"derivative %s: future settlement window closed at %s", d.DerivativeID, d.ExpirationTime.Format(time.RFC3339))
	}

	payoff, err := finmath.OptionPayoff(d.Kind, d.StrikePrice, ctx.OracleValue)
	if err != nil {
		return d, nil, err
	}

	d.Status = StatusExercised

	var effects []types.Effect
	switch {
	case payoff.Sign() > 0:
		effects = append(effects,
			types.CreditAccount(d.Creator, d.Buyer, payoff, "derivative settlement"))
	case payoff.Sign() < 0:
		// Futures settle both ways: the buyer pays when the market closed
		// below the agreed price.
		effects = append(effects,
			types.CreditAccount(d.Buyer, d.Creator, payoff.Neg(), "derivative settlement"))
	}
	return d, effects, nil
}

func applyCancel(d Derivative, ev Event, ctx Context) (Derivative, []types.Effect, error) {
	if status := d.EffectiveStatus(ctx.Now); status != StatusActive {
		return d, nil, illegal(d, ev.Kind, status)
	}
	if d.Buyer != "" {
		return d, nil, types.E(types.ErrIllegalTransition,
			"derivative %s: cannot cancel a purchased contract", d.DerivativeID)
	}
	if ev.Caller != d.Creator {
		return d, nil, types.E(types.ErrNotOwner, "only the creator may cancel derivative %s", d.DerivativeID)
	}

	d.Status = StatusCancelled
	return d, nil, nil
}

func applyExpire(d Derivative, ev Event, ctx Context) (Derivative, []types.Effect, error) {
	if d.Status != StatusActive {
		return d, nil, illegal(d, ev.Kind, d.Status)
	}
	if !ctx.Now.After(d.ExpirationTime) {
		return d, nil, types.E(types.ErrNotExpired,
			"derivative %s runs until %s", d.DerivativeID, d.ExpirationTime.Format(time.RFC3339))
	}

	// Lapsing moves no money: an unexercised right simply ends, and the
	// premium was paid at purchase.
	d.Status = StatusExpired
	return d, nil, nil
}

func illegal(d Derivative, ev EventKind, status string) error {
	return types.E(types.ErrIllegalTransition, "derivative %s: %s not allowed in state %s", d.DerivativeID, ev, status)
}
