// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"math/big"
)

// Engine applies the core pool-state transition for swaps and liquidity
// changes. The operation pipeline treats its arithmetic as authoritative;
// it validates parameters and permissions, not the math.
//
// Implementations may mutate the pool they are handed; the manager
// persists the post-state only when the whole operation succeeds.
type Engine interface {
	// Swap applies a swap at the given LP fee and returns the caller's
	// realized delta (input currency positive, output currency negative)
	// and the pool tick after the swap.
	Swap(pool *Pool, key PoolKey, params SwapParams, lpFee uint24) (BalanceDelta, int24, error)

	// ModifyLiquidity applies a liquidity change and returns the caller's
	// realized delta.
	ModifyLiquidity(pool *Pool, key PoolKey, params ModifyLiquidityParams) (BalanceDelta, error)
}

// curveEngine is the built-in Engine. It uses a simplified invariant
// (output = input * L / (L + input)) rather than full tick-by-tick
// concentrated-liquidity math; swap fees accrue to in-range liquidity via
// the Q128 fee-growth accumulators.
type curveEngine struct{}

// NewCurveEngine returns the default transition engine.
func NewCurveEngine() Engine {
	return curveEngine{}
}

const feeDenominator = 1_000_000

func (curveEngine) Swap(pool *Pool, key PoolKey, params SwapParams, lpFee uint24) (BalanceDelta, int24, error) {
	if pool.Liquidity.Sign() == 0 {
		return ZeroBalanceDelta(), pool.Tick, ErrNoLiquidity
	}
	if params.AmountSpecified == nil || params.AmountSpecified.Sign() == 0 {
		return ZeroBalanceDelta(), pool.Tick, nil
	}

	exactInput := params.AmountSpecified.Sign() > 0

	var amountIn, amountOut, feeAmount *big.Int

	if exactInput {
		amountIn = new(big.Int).Set(params.AmountSpecified)
		feeAmount = mulDivFee(amountIn, lpFee)
		effective := new(big.Int).Sub(amountIn, feeAmount)
		amountOut = swapOutput(pool.Liquidity, effective)
	} else {
		amountOut = new(big.Int).Neg(params.AmountSpecified)
		if amountOut.Cmp(pool.Liquidity) >= 0 {
			return ZeroBalanceDelta(), pool.Tick, ErrInsufficientLiquidity
		}
		required := swapInput(pool.Liquidity, amountOut)
		// gross the input up so the fee comes out of it
		gross := new(big.Int).Mul(required, big.NewInt(feeDenominator))
		gross.Div(gross, big.NewInt(feeDenominator-int64(lpFee)))
		feeAmount = new(big.Int).Sub(gross, required)
		amountIn = gross
	}

	// fee growth accrues on the input side: feeGrowth += fee * 2^128 / L
	if feeAmount.Sign() > 0 {
		growth := new(big.Int).Mul(feeAmount, Q128)
		growth.Div(growth, pool.Liquidity)
		if params.ZeroForOne {
			pool.FeeGrowth0X128 = new(big.Int).Add(pool.FeeGrowth0X128, growth)
		} else {
			pool.FeeGrowth1X128 = new(big.Int).Add(pool.FeeGrowth1X128, growth)
		}
	}

	var delta BalanceDelta
	if params.ZeroForOne {
		delta = NewBalanceDelta(amountIn, new(big.Int).Neg(amountOut))
	} else {
		delta = NewBalanceDelta(new(big.Int).Neg(amountOut), amountIn)
	}

	return delta, pool.Tick, nil
}

func (curveEngine) ModifyLiquidity(pool *Pool, key PoolKey, params ModifyLiquidityParams) (BalanceDelta, error) {
	liquidityDelta := params.LiquidityDelta
	if liquidityDelta == nil || liquidityDelta.Sign() == 0 {
		return ZeroBalanceDelta(), nil
	}

	if liquidityDelta.Sign() < 0 {
		removed := new(big.Int).Neg(liquidityDelta)
		if removed.Cmp(pool.Liquidity) > 0 {
			return ZeroBalanceDelta(), ErrInsufficientLiquidity
		}
	}

	currentTick := pool.Tick
	inRange := params.TickLower <= currentTick && currentTick < params.TickUpper

	var amount0, amount1 *big.Int

	switch {
	case inRange:
		// both currencies move, half each under the simplified curve
		half := new(big.Int).Quo(liquidityDelta, big.NewInt(2))
		amount0 = half
		amount1 = new(big.Int).Sub(liquidityDelta, half)
	case currentTick < params.TickLower:
		amount0 = new(big.Int).Set(liquidityDelta)
		amount1 = big.NewInt(0)
	default:
		amount0 = big.NewInt(0)
		amount1 = new(big.Int).Set(liquidityDelta)
	}

	if inRange {
		pool.Liquidity = new(big.Int).Add(pool.Liquidity, liquidityDelta)
	}

	return NewBalanceDelta(amount0, amount1), nil
}

// swapOutput computes output = input * L / (L + input).
func swapOutput(liquidity, amountIn *big.Int) *big.Int {
	if amountIn.Sign() <= 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(amountIn, liquidity)
	denominator := new(big.Int).Add(liquidity, amountIn)
	return numerator.Div(numerator, denominator)
}

// swapInput computes input = output * L / (L - output).
func swapInput(liquidity, amountOut *big.Int) *big.Int {
	numerator := new(big.Int).Mul(amountOut, liquidity)
	denominator := new(big.Int).Sub(liquidity, amountOut)
	return numerator.Div(numerator, denominator)
}

// mulDivFee computes amount * fee / 1_000_000.
func mulDivFee(amount *big.Int, fee uint24) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(fee)))
	return out.Div(out, big.NewInt(feeDenominator))
}

// SqrtPriceToTick converts a Q64.96 sqrt price to the greatest tick whose
// sqrt ratio is <= the price, by binary search.
func SqrtPriceToTick(sqrtPriceX96 *big.Int) int24 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0
	}

	if sqrtPriceX96.Cmp(MinSqrtRatio) <= 0 {
		return MinTick
	}
	if sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return MaxTick
	}

	low := MinTick
	high := MaxTick

	for low < high {
		mid := low + (high-low+1)/2
		if TickToSqrtPrice(mid).Cmp(sqrtPriceX96) <= 0 {
			low = mid
		} else {
			high = mid - 1
		}
	}

	return low
}

// sqrtMagics are 1/sqrt(1.0001^(2^i)) in Q64 format. The first nine are
// fixed constants; the rest are derived by squaring so the table covers
// every bit of the tick range.
var sqrtMagics = buildSqrtMagics()

func buildSqrtMagics() []*big.Int {
	seeds := [][]byte{
		{0xff, 0xf9, 0x71, 0x63, 0xe1, 0x37, 0x66, 0x35},
		{0xff, 0xf2, 0xe5, 0x0f, 0x62, 0x6c, 0x4c, 0x95},
		{0xff, 0xe5, 0xca, 0xca, 0x7e, 0x10, 0xe4, 0x46},
		{0xff, 0xcb, 0x9a, 0x97, 0x93, 0x42, 0xa9, 0x50},
		{0xff, 0x97, 0x38, 0x3c, 0x7e, 0x70, 0x01, 0x2a},
		{0xff, 0x2e, 0xa1, 0x34, 0x34, 0xc3, 0x39, 0x69},
		{0xfe, 0x5d, 0xee, 0x04, 0x6a, 0x99, 0xa1, 0x2d},
		{0xfc, 0xbe, 0x86, 0xc7, 0x90, 0x67, 0x90, 0x01},
		{0xf9, 0x87, 0xa7, 0x25, 0x30, 0x42, 0x46, 0x85},
	}

	// MaxTick < 2^20, so 20 entries cover every bit of |tick|
	magics := make([]*big.Int, 20)
	for i, seed := range seeds {
		magics[i] = new(big.Int).SetBytes(seed)
	}
	for i := len(seeds); i < len(magics); i++ {
		sq := new(big.Int).Mul(magics[i-1], magics[i-1])
		magics[i] = sq.Rsh(sq, 64)
	}
	return magics
}

var maxU256 = new(big.Int).Lsh(big.NewInt(1), 256)

// TickToSqrtPrice converts a tick to its Q64.96 sqrt price:
// sqrt(1.0001^tick) * 2^96.
func TickToSqrtPrice(tick int24) *big.Int {
	if tick == 0 {
		return new(big.Int).Set(Q96)
	}

	absTick := tick
	if tick < 0 {
		absTick = -tick
	}

	// accumulate 1/sqrt(1.0001^|tick|) in Q128 for precision
	ratio := new(big.Int).Lsh(big.NewInt(1), 128)

	for i, magic := range sqrtMagics {
		if int(absTick)&(1<<i) != 0 {
			ratio.Mul(ratio, magic)
			ratio.Rsh(ratio, 64)
		}
	}

	// the magics are reciprocal factors, so positive ticks invert
	if tick > 0 {
		ratio = new(big.Int).Div(maxU256, ratio)
	}

	// Q128 -> Q96
	result := new(big.Int).Rsh(ratio, 32)

	if result.Cmp(MinSqrtRatio) < 0 {
		return new(big.Int).Set(MinSqrtRatio)
	}
	if result.Cmp(MaxSqrtRatio) > 0 {
		return new(big.Int).Set(MaxSqrtRatio)
	}

	return result
}
