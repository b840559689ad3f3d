package derivative

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

var t0 = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func callOption() Derivative {
	return Derivative{
		DerivativeID:    "DRV_test",
		ContractAddress: "0xabc",
		TokenID:         "3",
		Creator:         "0xcreator",
		PaymentAsset:    types.PaymentNative,
		Kind:            types.DerivativeCall,
		StrikePrice:     types.MustParseAmount("500000000000000000"), // 0.5 ETH
		Premium:         types.MustParseAmount("20000000000000000"),  // 0.02 ETH
		ExpirationTime:  t0.Add(30 * 24 * time.Hour),
		Status:          StatusActive,
	}
}

func purchasedCall() Derivative {
	d := callOption()
	d.Buyer = "0xbuyer"
	return d
}

func TestPurchasePaysPremium(t *testing.T) {
	d := callOption()

	next, effects, err := Apply(d, Event{Kind: EventPurchase, Caller: "0xbuyer", Buyer: "0xbuyer"},
		Context{Now: t0})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, next.Status)
	assert.Equal(t, "0xbuyer", next.Buyer)
	require.Len(t, effects, 1)
	assert.Equal(t, types.EffectCreditAccount, effects[0].Kind)
	assert.Equal(t, "0xcreator", effects[0].To)
	assert.Equal(t, 0, effects[0].Amount.Cmp(d.Premium))
}

func TestPurchaseTwice(t *testing.T) {
	d := purchasedCall()
	_, _, err := Apply(d, Event{Kind: EventPurchase, Buyer: "0xother"}, Context{Now: t0})
	require.Error(t, err)
	assert.Equal(t, types.ErrAlreadyMatched, types.KindOf(err))
}

func TestPurchaseAfterExpirationLazilyExpired(t *testing.T) {
	d := callOption()
	_, _, err := Apply(d, Event{Kind: EventPurchase, Buyer: "0xbuyer"},
		Context{Now: d.ExpirationTime.Add(time.Hour)})
	require.Error(t, err)
	assert.Equal(t, types.ErrIllegalTransition, types.KindOf(err))
}

func TestExerciseCallInTheMoney(t *testing.T) {
	// Strike 0.5 ETH, market rises to 0.8 ETH before expiration: the
	// buyer settles for a 0.3 ETH payoff.
	d := purchasedCall()

	next, effects, err := Apply(d, Event{Kind: EventExercise, Caller: "0xbuyer"},
		Context{Now: t0.Add(time.Hour), OracleValue: types.MustParseAmount("800000000000000000")})
	require.NoError(t, err)
	assert.Equal(t, StatusExercised, next.Status)
	require.Len(t, effects, 1)
	assert.Equal(t, "0xbuyer", effects[0].To)
	assert.Equal(t, "300000000000000000", effects[0].Amount.String())
}

func TestExerciseAfterExpiration(t *testing.T) {
	d := purchasedCall()
	_, _, err := Apply(d, Event{Kind: EventExercise, Caller: "0xbuyer"},
		Context{Now: d.ExpirationTime.Add(time.Minute), OracleValue: types.MustParseAmount("800000000000000000")})
	require.Error(t, err)
	assert.Equal(t, types.ErrIllegalTransition, types.KindOf(err))
}

func TestExerciseUnpurchased(t *testing.T) {
	d := callOption()
	_, _, err := Apply(d, Event{Kind: EventExercise, Caller: "0xbuyer"},
		Context{Now: t0, OracleValue: types.MustParseAmount("800000000000000000")})
	require.Error(t, err)
	assert.Equal(t, types.ErrIllegalTransition, types.KindOf(err))
}

func TestExerciseOnlyByBuyer(t *testing.T) {
	d := purchasedCall()
	_, _, err := Apply(d, Event{Kind: EventExercise, Caller: "0xcreator"},
		Context{Now: t0, OracleValue: types.MustParseAmount("800000000000000000")})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotOwner, types.KindOf(err))
}

func TestFutureSettlesAtExpirationBothWays(t *testing.T) {
	d := callOption()
	d.Kind = types.DerivativeFuture
	d.Premium = types.NewAmount(0)
	d.Buyer = "0xbuyer"

	// A future is an obligation: settlement is permitted at expiration
	// itself, and a below-strike close pays the creator.
	next, effects, err := Apply(d, Event{Kind: EventExercise, Caller: "0xbuyer"},
		Context{Now: d.ExpirationTime, OracleValue: types.MustParseAmount("200000000000000000")})
	require.NoError(t, err)
	assert.Equal(t, StatusExercised, next.Status)
	require.Len(t, effects, 1)
	assert.Equal(t, "0xcreator", effects[0].To)
	assert.Equal(t, "300000000000000000", effects[0].Amount.String())

	// Past expiration the settlement window is closed.
	_, _, err = Apply(d, Event{Kind: EventExercise, Caller: "0xbuyer"},
		Context{Now: d.ExpirationTime.Add(time.Second), OracleValue: types.MustParseAmount("200000000000000000")})
	require.Error(t, err)
	assert.Equal(t, types.ErrIllegalTransition, types.KindOf(err))
}

func TestIndexTrackerLapsesWithoutSettlement(t *testing.T) {
	d := callOption()
	d.Kind = types.DerivativeIndex
	d.StrikePrice = types.NewAmount(0)
	d.Premium = types.NewAmount(0)
	require.NoError(t, d.ValidateTerms(t0))

	// Taking the position moves no premium.
	purchased, effects, err := Apply(d, Event{Kind: EventPurchase, Caller: "0xbuyer", Buyer: "0xbuyer"},
		Context{Now: t0})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, "0xbuyer", purchased.Buyer)

	// Index trackers are not exercisable.
	_, _, err = Apply(purchased, Event{Kind: EventExercise, Caller: "0xbuyer"},
		Context{Now: t0.Add(time.Hour), OracleValue: types.MustParseAmount("800000000000000000")})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTerms, types.KindOf(err))

	// At expiration the position lapses with no settlement leg.
	expired, effects, err := Apply(purchased, Event{Kind: EventExpire},
		Context{Now: purchased.ExpirationTime.Add(time.Second)})
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, StatusExpired, expired.Status)
}

func TestCancelUnpurchasedOnly(t *testing.T) {
	d := callOption()

	next, effects, err := Apply(d, Event{Kind: EventCancel, Caller: "0xcreator"}, Context{Now: t0})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, next.Status)
	assert.Empty(t, effects)

	purchased := purchasedCall()
	_, _, err = Apply(purchased, Event{Kind: EventCancel, Caller: "0xcreator"}, Context{Now: t0})
	require.Error(t, err)
	assert.Equal(t, types.ErrIllegalTransition, types.KindOf(err))
}

func TestExpireSweep(t *testing.T) {
	d := purchasedCall()

	_, _, err := Apply(d, Event{Kind: EventExpire}, Context{Now: t0})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotExpired, types.KindOf(err))

	next, effects, err := Apply(d, Event{Kind: EventExpire},
		Context{Now: d.ExpirationTime.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, next.Status)
	assert.Empty(t, effects)
}

func TestEffectiveStatusLazyExpiry(t *testing.T) {
	d := purchasedCall()
	assert.Equal(t, StatusActive, d.EffectiveStatus(t0))
	assert.Equal(t, StatusExpired, d.EffectiveStatus(d.ExpirationTime.Add(time.Second)))

	// Stored terminal statuses are not re-derived.
	d.Status = StatusExercised
	assert.Equal(t, StatusExercised, d.EffectiveStatus(d.ExpirationTime.Add(time.Second)))
}

func TestTerminalStatesAbsorb(t *testing.T) {
	events := []Event{
		{Kind: EventPurchase, Buyer: "0xother"},
		{Kind: EventExercise, Caller: "0xbuyer"},
		{Kind: EventCancel, Caller: "0xcreator"},
		{Kind: EventExpire},
	}
	for _, status := range []string{StatusExercised, StatusExpired, StatusCancelled} {
		d := purchasedCall()
		d.Status = status
		for _, ev := range events {
			next, effects, err := Apply(d, ev, Context{Now: t0, OracleValue: types.MustParseAmount("800000000000000000")})
			require.Error(t, err, "status %s accepted event %s", status, ev.Kind)
			assert.Empty(t, effects)
			assert.Equal(t, status, next.Status)
		}
	}
}

func TestValidateTerms(t *testing.T) {
	d := callOption()
	require.NoError(t, d.ValidateTerms(t0))

	bad := callOption()
	bad.Premium = types.NewAmount(0)
	assert.Error(t, bad.ValidateTerms(t0))

	bad = callOption()
	bad.Kind = types.DerivativeFuture // future with a premium
	assert.Error(t, bad.ValidateTerms(t0))

	bad = callOption()
	bad.ExpirationTime = t0.Add(-time.Hour)
	err := bad.ValidateTerms(t0)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTerms, types.KindOf(err))

	bad = callOption()
	bad.Kind = "SWAP"
	assert.Error(t, bad.ValidateTerms(t0))
}
