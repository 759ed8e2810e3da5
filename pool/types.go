// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool implements the LXPool singleton pool manager (LP-9010).
// Every pool lives in one manager, which gives flash accounting (net token
// transfers at the end of a sequence), unified liquidity across markets,
// and hook contracts whose capabilities are encoded in their own address.
package pool

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// LXPoolAddress is the precompile address of the manager (LP-9010).
// LP-aligned format: 0x0000000000000000000000000000000000LPNUM.
const LXPoolAddress = "0x0000000000000000000000000000000000009010"

// Gas costs for the precompile surface
const (
	GasInitialize uint64 = 50_000 // Create and initialize a pool
	GasViewCall   uint64 = 200    // Pool/delta/binding lookups
)

// Pool fee tiers (hundredths of a basis point)
const (
	Fee001 uint24 = 100    // 0.01% - stablecoins
	Fee005 uint24 = 500    // 0.05% - stable pairs
	Fee030 uint24 = 3000   // 0.30% - standard
	Fee100 uint24 = 10000  // 1.00% - exotic pairs
	FeeMax uint24 = 100000 // 10% max fee
)

// Tick spacing for different fee tiers
const (
	TickSpacing001 int24 = 1
	TickSpacing005 int24 = 10
	TickSpacing030 int24 = 60
	TickSpacing100 int24 = 200
)

// Currency represents a token (native or ERC20)
// Address(0) represents native LUX
type Currency struct {
	Address common.Address
}

// NativeCurrency represents native LUX (no wrapping needed)
var NativeCurrency = Currency{Address: common.Address{}}

// IsNative returns true if this currency is native LUX
func (c Currency) IsNative() bool {
	return c.Address == common.Address{}
}

// ToBytes serializes currency for storage
func (c Currency) ToBytes() []byte {
	return c.Address.Bytes()
}

// CurrencyFromBytes deserializes currency from storage
func CurrencyFromBytes(data []byte) Currency {
	return Currency{Address: common.BytesToAddress(data)}
}

// PoolKey uniquely identifies a pool.
// Sorted by currency address (currency0 < currency1). The hook address is
// part of the identity: two pools over the same pair with different hooks
// are distinct pools, so a binding can never be swapped after creation.
type PoolKey struct {
	Currency0   Currency       // Lower address token
	Currency1   Currency       // Higher address token
	Fee         uint24         // Fee in hundredths of a basis point
	TickSpacing int24          // Tick spacing for concentrated liquidity
	Hooks       common.Address // Hook contract address (zero = no hooks)
}

// PoolID is the content-derived identity of a pool.
type PoolID [32]byte

// ID computes the unique pool identifier over all five key fields.
func (pk PoolKey) ID() PoolID {
	h := blake3.New()
	h.Write(pk.Currency0.ToBytes())
	h.Write(pk.Currency1.ToBytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], uint32(pk.Fee))
	h.Write(feeBytes[1:]) // uint24

	var tickBytes [4]byte
	binary.BigEndian.PutUint32(tickBytes[:], uint32(pk.TickSpacing))
	h.Write(tickBytes[1:]) // int24

	h.Write(pk.Hooks.Bytes())

	var id PoolID
	h.Digest().Read(id[:])
	return id
}

// BalanceDelta represents the net token changes during an operation.
// Positive = owed to the pool, Negative = owed to the caller.
type BalanceDelta struct {
	Amount0 *big.Int // Currency0 delta (positive = caller owes pool)
	Amount1 *big.Int // Currency1 delta (positive = caller owes pool)
}

// NewBalanceDelta creates a new balance delta
func NewBalanceDelta(amount0, amount1 *big.Int) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Set(amount0),
		Amount1: new(big.Int).Set(amount1),
	}
}

// ZeroBalanceDelta returns a zero balance delta
func ZeroBalanceDelta() BalanceDelta {
	return BalanceDelta{
		Amount0: big.NewInt(0),
		Amount1: big.NewInt(0),
	}
}

// Add combines two balance deltas
func (bd BalanceDelta) Add(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Add(bd.Amount0, other.Amount0),
		Amount1: new(big.Int).Add(bd.Amount1, other.Amount1),
	}
}

// Sub subtracts another balance delta
func (bd BalanceDelta) Sub(other BalanceDelta) BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Sub(bd.Amount0, other.Amount0),
		Amount1: new(big.Int).Sub(bd.Amount1, other.Amount1),
	}
}

// Negate inverts the balance delta signs
func (bd BalanceDelta) Negate() BalanceDelta {
	return BalanceDelta{
		Amount0: new(big.Int).Neg(bd.Amount0),
		Amount1: new(big.Int).Neg(bd.Amount1),
	}
}

// IsZero returns true if both amounts are zero
func (bd BalanceDelta) IsZero() bool {
	return bd.Amount0.Sign() == 0 && bd.Amount1.Sign() == 0
}

// Pool represents the state of a liquidity pool
type Pool struct {
	SqrtPriceX96   *big.Int // sqrt(price) * 2^96 (Q64.96)
	Tick           int24    // Current tick
	Liquidity      *big.Int // Total liquidity (L)
	FeeGrowth0X128 *big.Int // Fee growth for currency0 (Q128.128)
	FeeGrowth1X128 *big.Int // Fee growth for currency1 (Q128.128)
}

// IsInitialized returns true if the pool has been initialized
func (p *Pool) IsInitialized() bool {
	return p.SqrtPriceX96 != nil && p.SqrtPriceX96.Sign() > 0
}

// NewPool creates a new uninitialized pool
func NewPool() *Pool {
	return &Pool{
		SqrtPriceX96:   big.NewInt(0),
		Tick:           0,
		Liquidity:      big.NewInt(0),
		FeeGrowth0X128: big.NewInt(0),
		FeeGrowth1X128: big.NewInt(0),
	}
}

// clone returns a deep copy, used for pre-state snapshots handed to hooks
// and for rollback on aborted operations.
func (p *Pool) clone() *Pool {
	return &Pool{
		SqrtPriceX96:   new(big.Int).Set(p.SqrtPriceX96),
		Tick:           p.Tick,
		Liquidity:      new(big.Int).Set(p.Liquidity),
		FeeGrowth0X128: new(big.Int).Set(p.FeeGrowth0X128),
		FeeGrowth1X128: new(big.Int).Set(p.FeeGrowth1X128),
	}
}

// Position represents a liquidity position
type Position struct {
	Owner     common.Address
	TickLower int24
	TickUpper int24
	Liquidity *big.Int
}

// PositionKey computes the unique position identifier
func PositionKey(owner common.Address, tickLower, tickUpper int24, salt [32]byte) [32]byte {
	h := blake3.New()
	h.Write(owner.Bytes())

	var tickBytes [8]byte
	binary.BigEndian.PutUint32(tickBytes[:4], uint32(tickLower))
	binary.BigEndian.PutUint32(tickBytes[4:], uint32(tickUpper))
	h.Write(tickBytes[:])
	h.Write(salt[:])

	var key [32]byte
	h.Digest().Read(key[:])
	return key
}

// SwapParams contains parameters for a swap
type SwapParams struct {
	ZeroForOne        bool     // true = swap currency0 for currency1
	AmountSpecified   *big.Int // Positive = exact input, Negative = exact output
	SqrtPriceLimitX96 *big.Int // Price limit (sqrt(price) * 2^96)
}

// SwapResult is the realized outcome of a swap. LpFee is the fee that was
// actually charged, after any authorized hook override, so callers can
// verify it independently of the hook.
type SwapResult struct {
	Delta BalanceDelta // Net caller delta folded into the ledger
	Tick  int24        // Pool tick after the swap
	LpFee uint24       // Fee actually applied
}

// ModifyLiquidityParams contains parameters for adding/removing liquidity
type ModifyLiquidityParams struct {
	TickLower      int24
	TickUpper      int24
	LiquidityDelta *big.Int // Positive = add, Negative = remove
	Salt           [32]byte // Position salt for uniqueness
}

// Errors - pool lifecycle and parameters
var (
	ErrPoolNotInitialized     = errors.New("pool not initialized")
	ErrPoolAlreadyInitialized = errors.New("pool already initialized")
	ErrInvalidTickRange       = errors.New("invalid tick range")
	ErrTickOutOfRange         = errors.New("tick out of range")
	ErrInvalidFee             = errors.New("invalid fee")
	ErrCurrencyNotSorted      = errors.New("currencies not sorted")
	ErrInvalidSqrtPrice       = errors.New("invalid sqrt price")
	ErrNoLiquidity            = errors.New("no liquidity in pool")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
)

// Errors - sequence gate and settlement
var (
	ErrManagerLocked      = errors.New("manager locked by another sequence")
	ErrNotUnlocked        = errors.New("no active sequence")
	ErrNonZeroDelta       = errors.New("non-zero balance delta after settlement")
	ErrSequenceFinished   = errors.New("sequence already finished")
	ErrInsufficientClaims = errors.New("insufficient claim balance")
)

// Errors - hooks
var (
	ErrHookNotRegistered          = errors.New("hook not registered")
	ErrHookInvalidAddress         = errors.New("hook address doesn't match capabilities")
	ErrHookAlreadyBound           = errors.New("pool already bound to a hook")
	ErrHookUnauthorizedAdjustment = errors.New("hook adjustment exceeds granted capability")
	ErrHookDeltaExceedsCap        = errors.New("hook delta exceeds realized operation delta")
	ErrFeeOverrideOutOfRange      = errors.New("hook fee override out of range")
)

// Errors - precompile surface
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInsufficientGas = errors.New("insufficient gas")
)

// Constants for math
var (
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)

	MinTick int24 = -887272
	MaxTick int24 = 887272

	MinSqrtRatio    = new(big.Int).SetUint64(4295128739)
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

// uint24 type alias for fees
type uint24 = uint32

// int24 type alias for ticks
type int24 = int32
