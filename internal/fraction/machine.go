package fraction

import (
	"time"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

type EventKind string

const (
	EventRedeem EventKind = "REDEEM"
)

type Event struct {
	Kind    EventKind
	Caller  string
	Payment types.Amount // Redeem: buyback payment, must cover the reserve price
	Shares  types.Amount // Redeem: shares surrendered, must equal the full supply
}

type Context struct {
	Now time.Time
}

// Apply is the fraction lifecycle state machine.
//
//	Active --Redeem--> Redeemed
func Apply(frac Fraction, ev Event, _ Context) (Fraction, []types.Effect, error) {
	if ev.Kind != EventRedeem {
		return frac, nil, types.E(types.ErrIllegalTransition, "fraction %s: unknown event %q", frac.FractionID, ev.Kind)
	}
	if frac.Status != StatusActive || !frac.Active {
		return frac, nil, types.E(types.ErrIllegalTransition,
			"fraction %s: %s not allowed in state %s", frac.FractionID, ev.Kind, frac.Status)
	}
	if ev.Shares.Cmp(frac.TotalSupply) != 0 {
		return frac, nil, types.E(types.ErrInvalidTerms,
			"redeem requires the full share supply %s, got %s", frac.TotalSupply, ev.Shares)
	}
	if ev.Payment.Cmp(frac.ReservePrice) < 0 {
		return frac, nil, types.E(types.ErrInsufficientPayment,
			"payment %s below reserve price %s", ev.Payment, frac.ReservePrice)
	}

	frac.Status = StatusRedeemed
	frac.Active = false
	frac.Redeemer = ev.Caller

	effects := []types.Effect{
		types.CreditAccount(ev.Caller, frac.OriginalOwner, frac.ReservePrice, "reserve price buyback"),
		{Kind: types.EffectBurnShares, From: ev.Caller, Amount: frac.TotalSupply, Memo: "share supply retired"},
		types.TransferCustody(frac.Asset(), types.EscrowAccount, ev.Caller, "underlying redeemed"),
	}
	return frac, effects, nil
}
