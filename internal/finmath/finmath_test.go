package finmath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

func eth(s string) types.Amount {
	return types.MustParseAmount(s)
}

func TestAccruedInterestZeroElapsed(t *testing.T) {
	principal := eth("1000000000000000000") // 1 ETH

	interest := AccruedInterest(principal, 500, 0, 86400)
	assert.True(t, interest.IsZero())

	// repayAmount(loan, loan.startTime) == loan.principal
	repay := RepayAmount(principal, 500, 0, 86400)
	assert.Equal(t, 0, repay.Cmp(principal))
}

func TestAccruedInterestLinear(t *testing.T) {
	principal := eth("1000000000000000000")

	// 10% over the full term, half elapsed => 5%.
	half := AccruedInterest(principal, 1000, 43200, 86400)
	assert.Equal(t, "50000000000000000", half.String())

	full := AccruedInterest(principal, 1000, 86400, 86400)
	assert.Equal(t, "100000000000000000", full.String())
}

func TestAccruedInterestCapsAtDuration(t *testing.T) {
	principal := eth("1000000000000000000")

	atMaturity := AccruedInterest(principal, 1000, 86400, 86400)
	past := AccruedInterest(principal, 1000, 86400*10, 86400)
	assert.Equal(t, 0, atMaturity.Cmp(past))
}

func TestRepayAmountMonotonicallyIncreases(t *testing.T) {
	principal := eth("2000000000000000000")

	prev := RepayAmount(principal, 750, 0, 604800)
	for elapsed := int64(3600); elapsed <= 604800; elapsed += 3600 {
		cur := RepayAmount(principal, 750, elapsed, 604800)
		assert.True(t, cur.Cmp(prev) >= 0, "repay amount decreased at elapsed=%d", elapsed)
		prev = cur
	}
}

func TestHealthFactorDecreasesOverTime(t *testing.T) {
	principal := eth("1000000000000000000")
	collateral := eth("1500000000000000000")

	// While the loan is unpaid the health factor strictly decreases as
	// interest accrues (sampled daily so each step moves the integer ratio).
	prev := int64(0)
	for i, elapsed := range []int64{0, 86400, 172800, 345600, 604800} {
		repay := RepayAmount(principal, 2000, elapsed, 604800)
		hf, err := HealthFactor(collateral, repay)
		require.NoError(t, err)
		if i > 0 {
			assert.Less(t, hf, prev, "health factor did not decrease at elapsed=%d", elapsed)
		}
		prev = hf
	}
}

func TestHealthFactorDivisionByZero(t *testing.T) {
	_, err := HealthFactor(eth("1000000000000000000"), types.NewAmount(0))
	require.Error(t, err)
	assert.Equal(t, types.ErrDivisionByZero, types.KindOf(err))
}

func TestIsLiquidatable(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Healthy and within term.
	assert.False(t, IsLiquidatable(start.Add(time.Hour), start, 86400, 12000, 8500))
	// Past maturity, regardless of health.
	assert.True(t, IsLiquidatable(start.Add(25*time.Hour), start, 86400, 12000, 8500))
	// Within term but undercollateralized.
	assert.True(t, IsLiquidatable(start.Add(time.Hour), start, 86400, 8000, 8500))
}

func TestMaxPrincipalScenario(t *testing.T) {
	// Oracle value 1.5 ETH at a 70% collateral factor supports at most
	// 1.05 ETH of principal.
	max := MaxPrincipal(eth("1500000000000000000"), 7000)
	assert.Equal(t, "1050000000000000000", max.String())

	offerTooHigh := eth("1100000000000000000")
	offerOK := eth("1000000000000000000")
	assert.True(t, offerTooHigh.Cmp(max) > 0)
	assert.True(t, offerOK.Cmp(max) <= 0)
}

func TestOptionPayoff(t *testing.T) {
	strike := eth("500000000000000000") // 0.5 ETH

	// Call in the money: market 0.8 => payoff 0.3.
	payoff, err := OptionPayoff(types.DerivativeCall, strike, eth("800000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "300000000000000000", payoff.String())

	// Call out of the money floors at zero.
	payoff, err = OptionPayoff(types.DerivativeCall, strike, eth("400000000000000000"))
	require.NoError(t, err)
	assert.True(t, payoff.IsZero())

	// Put in the money.
	payoff, err = OptionPayoff(types.DerivativePut, strike, eth("200000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "300000000000000000", payoff.String())

	// Future payoff is signed.
	payoff, err = OptionPayoff(types.DerivativeFuture, strike, eth("200000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "-300000000000000000", payoff.String())

	// Index contracts have no payoff.
	_, err = OptionPayoff(types.DerivativeIndex, strike, eth("200000000000000000"))
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTerms, types.KindOf(err))
}
