// Package finmath is the engine's financial calculation library: pure,
// deterministic functions over fixed-point integer amounts. Nothing in this
// package reads clocks, stores state, or talks to the Ledger; callers pass
// every input explicitly.
package finmath

import (
	"math"
	"math/big"
	"time"

	"github.com/yb1734492970508/CultureBridge-Frontend1-sub002/internal/types"
)

var basisPoints = big.NewInt(10_000)

// MulBps returns amount * bps / 10000, floor division.
func MulBps(amount types.Amount, bps int64) types.Amount {
	out := amount.BigInt()
	out.Mul(out, big.NewInt(bps))
	out.Quo(out, basisPoints)
	return types.NewAmountFromBig(out)
}

// AccruedInterest computes linear pro-rata interest:
//
//	principal * rateBps * elapsed / (10000 * duration)
//
// Elapsed time is capped at the loan duration; accrual stops at maturity.
// Non-positive elapsed time or duration yields zero.
func AccruedInterest(principal types.Amount, rateBps, elapsedSeconds, durationSeconds int64) types.Amount {
	if durationSeconds <= 0 || elapsedSeconds <= 0 || rateBps <= 0 {
		return types.NewAmount(0)
	}
	if elapsedSeconds > durationSeconds {
		elapsedSeconds = durationSeconds
	}
	num := principal.BigInt()
	num.Mul(num, big.NewInt(rateBps))
	num.Mul(num, big.NewInt(elapsedSeconds))
	den := new(big.Int).Mul(basisPoints, big.NewInt(durationSeconds))
	num.Quo(num, den)
	return types.NewAmountFromBig(num)
}

// RepayAmount is the outstanding debt at the given elapsed time: principal
// plus accrued interest.
func RepayAmount(principal types.Amount, rateBps, elapsedSeconds, durationSeconds int64) types.Amount {
	return principal.Add(AccruedInterest(principal, rateBps, elapsedSeconds, durationSeconds))
}

// HealthFactor returns collateralValue * 10000 / repayAmount in basis
// points; below 10000 the position is undercollateralized. A zero repay
// amount is never valid for an active loan (guarded at construction) and
// fails with DIVISION_BY_ZERO. Results beyond int64 range saturate.
func HealthFactor(collateralValue, repayAmount types.Amount) (int64, error) {
	if repayAmount.Sign() == 0 {
		return 0, types.E(types.ErrDivisionByZero, "repay amount is zero")
	}
	hf := collateralValue.BigInt()
	hf.Mul(hf, basisPoints)
	hf.Quo(hf, repayAmount.BigInt())
	if !hf.IsInt64() {
		return math.MaxInt64, nil
	}
	return hf.Int64(), nil
}

// IsLiquidatable reports whether a loan position may be seized: either the
// term has elapsed, or the health factor has fallen below the liquidation
// threshold.
func IsLiquidatable(now, startTime time.Time, durationSeconds, healthFactorBps, liquidationThresholdBps int64) bool {
	if now.After(startTime.Add(time.Duration(durationSeconds) * time.Second)) {
		return true
	}
	return healthFactorBps < liquidationThresholdBps
}

// MaxPrincipal is the largest principal an oracle valuation supports at the
// given collateral factor: oracleValue * collateralFactorBps / 10000.
func MaxPrincipal(oracleValue types.Amount, collateralFactorBps int64) types.Amount {
	return MulBps(oracleValue, collateralFactorBps)
}

// OptionPayoff computes the intrinsic value of a derivative at the given
// market value. Calls and puts floor at zero; futures are signed (negative
// when the market settled below the agreed price). Index contracts have no
// payoff function.
func OptionPayoff(kind string, strike, marketValue types.Amount) (types.Amount, error) {
	switch kind {
	case types.DerivativeCall:
		p := marketValue.Sub(strike)
		if p.Sign() < 0 {
			return types.NewAmount(0), nil
		}
		return p, nil
	case types.DerivativePut:
		p := strike.Sub(marketValue)
		if p.Sign() < 0 {
			return types.NewAmount(0), nil
		}
		return p, nil
	case types.DerivativeFuture:
		return marketValue.Sub(strike), nil
	default:
		return types.Amount{}, types.E(types.ErrInvalidTerms, "no payoff defined for derivative kind %q", kind)
	}
}
