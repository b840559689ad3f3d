package rental

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

var t0 = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func listedRental() Rental {
	return Rental{
		RentalID:        "RNT_test",
		ContractAddress: "0xabc",
		TokenID:         "7",
		Owner:           "0xowner",
		PaymentAsset:    types.PaymentNative,
		RentalFee:       types.MustParseAmount("10000000000000000"), // 0.01 ETH
		DurationSeconds: 7 * 86400,
		Collateral:      types.MustParseAmount("50000000000000000"), // 0.05 ETH
		Status:          StatusListed,
	}
}

func rentedRental() Rental {
	r := listedRental()
	start := t0
	r.Status = StatusRented
	r.Renter = "0xrenter"
	r.StartTime = &start
	return r
}

func TestRentEscrowsFeeAndCollateral(t *testing.T) {
	r := listedRental()

	next, effects, err := Apply(r, Event{Kind: EventRent, Caller: "0xrenter", Renter: "0xrenter"}, Context{Now: t0})
	require.NoError(t, err)
	assert.Equal(t, StatusRented, next.Status)
	assert.Equal(t, "0xrenter", next.Renter)
	require.NotNil(t, next.StartTime)

	require.Len(t, effects, 3)
	assert.Equal(t, types.EffectCreditAccount, effects[0].Kind)
	assert.Equal(t, 0, effects[0].Amount.Cmp(r.RentalFee))
	assert.Equal(t, types.EffectCreditAccount, effects[1].Kind)
	assert.Equal(t, 0, effects[1].Amount.Cmp(r.Collateral))
	assert.Equal(t, types.EffectTransferCustody, effects[2].Kind)
	assert.Equal(t, "0xrenter", effects[2].To)
}

func TestRentTwice(t *testing.T) {
	r := rentedRental()
	_, _, err := Apply(r, Event{Kind: EventRent, Renter: "0xother"}, Context{Now: t0})
	require.Error(t, err)
	assert.Equal(t, types.ErrAlreadyMatched, types.KindOf(err))
}

func TestCompleteTimingGuard(t *testing.T) {
	// 7-day rental started at t0: completing at t0+3d fails the guard,
	// completing at t0+7d succeeds and returns the collateral.
	r := rentedRental()

	_, _, err := Apply(r, Event{Kind: EventComplete, Caller: "0xrenter"},
		Context{Now: t0.Add(3 * 24 * time.Hour)})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotExpired, types.KindOf(err))

	next, effects, err := Apply(r, Event{Kind: EventComplete, Caller: "0xrenter"},
		Context{Now: t0.Add(7 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, next.Status)

	require.Len(t, effects, 3)
	assert.Equal(t, types.EffectTransferCustody, effects[0].Kind)
	assert.Equal(t, "0xowner", effects[0].To)
	// Collateral back to the renter.
	assert.Equal(t, types.EffectCreditAccount, effects[1].Kind)
	assert.Equal(t, "0xrenter", effects[1].To)
	assert.Equal(t, 0, effects[1].Amount.Cmp(r.Collateral))
	// Fee released to the owner.
	assert.Equal(t, "0xowner", effects[2].To)
	assert.Equal(t, 0, effects[2].Amount.Cmp(r.RentalFee))
}

func TestCompleteWithRevenueSharing(t *testing.T) {
	r := rentedRental()
	r.RevenueSharing = true
	r.RevenueShareBps = 3000 // owner keeps 30% of the fee

	_, effects, err := Apply(r, Event{Kind: EventComplete, Caller: "0xrenter"},
		Context{Now: t0.Add(7 * 24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, effects, 4)

	ownerCut := effects[2]
	renterCut := effects[3]
	assert.Equal(t, "0xowner", ownerCut.To)
	assert.Equal(t, "3000000000000000", ownerCut.Amount.String())
	assert.Equal(t, "0xrenter", renterCut.To)
	assert.Equal(t, "7000000000000000", renterCut.Amount.String())
	// The split never mints or burns value.
	assert.Equal(t, 0, ownerCut.Amount.Add(renterCut.Amount).Cmp(r.RentalFee))
}

func TestCompleteOnlyByRenter(t *testing.T) {
	r := rentedRental()
	_, _, err := Apply(r, Event{Kind: EventComplete, Caller: "0xowner"},
		Context{Now: t0.Add(7 * 24 * time.Hour)})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotOwner, types.KindOf(err))
}

func TestExpireForfeitsCollateral(t *testing.T) {
	r := rentedRental()

	// Before the term lapses the owner cannot expire.
	_, _, err := Apply(r, Event{Kind: EventExpire, Caller: "0xowner"},
		Context{Now: t0.Add(24 * time.Hour)})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotExpired, types.KindOf(err))

	next, effects, err := Apply(r, Event{Kind: EventExpire, Caller: "0xowner"},
		Context{Now: t0.Add(8 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, next.Status)
	require.Len(t, effects, 2)
	for _, e := range effects {
		assert.Equal(t, "0xowner", e.To)
	}
}

func TestDelist(t *testing.T) {
	r := listedRental()

	_, _, err := Apply(r, Event{Kind: EventDelist, Caller: "0xstranger"}, Context{Now: t0})
	require.Error(t, err)
	assert.Equal(t, types.ErrNotOwner, types.KindOf(err))

	next, effects, err := Apply(r, Event{Kind: EventDelist, Caller: "0xowner"}, Context{Now: t0})
	require.NoError(t, err)
	assert.Equal(t, StatusDelisted, next.Status)
	require.Len(t, effects, 1)
	assert.Equal(t, "0xowner", effects[0].To)
}

func TestTerminalStatesAbsorb(t *testing.T) {
	events := []Event{
		{Kind: EventRent, Renter: "0xrenter"},
		{Kind: EventComplete, Caller: "0xrenter"},
		{Kind: EventExpire, Caller: "0xowner"},
		{Kind: EventDelist, Caller: "0xowner"},
	}
	for _, status := range []string{StatusCompleted, StatusExpired, StatusDelisted} {
		r := rentedRental()
		r.Status = status
		for _, ev := range events {
			next, effects, err := Apply(r, ev, Context{Now: t0.Add(30 * 24 * time.Hour)})
			require.Error(t, err, "status %s accepted event %s", status, ev.Kind)
			assert.Empty(t, effects)
			assert.Equal(t, status, next.Status)
		}
	}
}

func TestValidateTerms(t *testing.T) {
	r := listedRental()
	require.NoError(t, r.ValidateTerms())

	bad := listedRental()
	bad.RevenueSharing = true
	bad.RevenueShareBps = 9950
	err := bad.ValidateTerms()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTerms, types.KindOf(err))

	bad = listedRental()
	bad.RevenueShareBps = 100 // set without enabling sharing
	assert.Error(t, bad.ValidateTerms())
}
