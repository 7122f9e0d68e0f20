package builder

import (
	"fmt"
	"math"
	"math/big"

	"github.com/aman-zulfiqar/raydium-sniper/internal/constants"
)

// ExpectedOut computes the constant-product output for amountIn after the
// pool fee. Returns (amountOut, priceImpact, error).
func ExpectedOut(amountIn, reserveIn, reserveOut uint64, feeBps uint64) (uint64, float64, error) {
	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 {
		return 0, 0, fmt.Errorf("invalid inputs: amounts must be > 0")
	}
	if feeBps >= constants.BpsDenominator {
		return 0, 0, fmt.Errorf("fee %d bps leaves nothing to swap", feeBps)
	}

	// amountInAfterFee = amountIn * (10000 - feeBps) / 10000
	amountInAfterFee := new(big.Int).Mul(
		new(big.Int).SetUint64(amountIn),
		new(big.Int).SetUint64(constants.BpsDenominator-feeBps),
	)
	amountInAfterFee.Div(amountInAfterFee, big.NewInt(constants.BpsDenominator))

	// out = (amountInAfterFee * reserveOut) / (reserveIn + amountInAfterFee)
	numerator := new(big.Int).Mul(amountInAfterFee, new(big.Int).SetUint64(reserveOut))
	denominator := new(big.Int).Add(new(big.Int).SetUint64(reserveIn), amountInAfterFee)
	out := new(big.Int).Div(numerator, denominator)

	if !out.IsUint64() {
		return 0, 0, fmt.Errorf("output amount overflow")
	}
	amountOut := out.Uint64()

	idealRate := float64(reserveOut) / float64(reserveIn)
	executionRate := float64(amountOut) / float64(amountIn)
	priceImpact := 0.0
	if idealRate > 0 {
		priceImpact = math.Max(0, 1-(executionRate/idealRate))
	}

	return amountOut, priceImpact, nil
}

// MinimumOut applies slippage: floor(expected * (10000 - bps) / 10000).
func MinimumOut(expected uint64, slippageBps uint16) uint64 {
	if uint64(slippageBps) >= constants.BpsDenominator {
		return 0
	}

	result := new(big.Int).Mul(
		new(big.Int).SetUint64(expected),
		new(big.Int).SetUint64(constants.BpsDenominator-uint64(slippageBps)),
	)
	result.Div(result, big.NewInt(constants.BpsDenominator))
	return result.Uint64()
}

// ImpliedSlippageBps is the smallest slippage for which MinimumOut(expected, bps)
// equals minimum. It is never above the bps that produced minimum.
func ImpliedSlippageBps(expected, minimum uint64) uint64 {
	if expected == 0 || minimum >= expected {
		return 0
	}
	e := new(big.Int).SetUint64(expected)
	denom := big.NewInt(constants.BpsDenominator)

	// smallest b with e*(10000-b) < (minimum+1)*10000
	num := new(big.Int).Mul(e, denom)
	num.Sub(num, new(big.Int).Mul(new(big.Int).SetUint64(minimum+1), denom))
	num.Add(num, big.NewInt(1))
	if num.Sign() <= 0 {
		return 0
	}
	num.Add(num, new(big.Int).Sub(e, big.NewInt(1)))
	num.Div(num, e)
	return num.Uint64()
}
