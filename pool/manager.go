// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/luxfi/lxpool/contract"
)

// Precompile address as bytes (LP-9010 LXPool)
var poolManagerAddr = common.HexToAddress(LXPoolAddress)

// Storage key prefixes for pool manager state
var (
	poolStatePrefix     = []byte("pool")
	poolLiquidityPrefix = []byte("pliq")
	positionPrefix      = []byte("posn")
	claimPrefix         = []byte("claim")
	bindingPrefix       = []byte("bind")
)

// PoolManager is the singleton pool manager. All pools live in this one
// contract, which enables flash accounting (net token transfers at the end
// of a sequence), unified liquidity across all markets, and gas-efficient
// multi-hop swaps.
//
// Every balance-touching operation runs inside a sequence acquired through
// Unlock. Initialize is the exception: it touches no balances and runs with
// or without an active sequence.
type PoolManager struct {
	// mu protects the in-memory pool and position caches
	mu sync.RWMutex

	// gate serializes sequences across the whole manager
	gate sequenceGate

	// registry holds hook implementations and pool bindings
	registry *HookRegistry

	// engine applies core state transitions
	engine Engine

	logger log.Logger

	// pools caches pool state by ID, write-through to the StateDB
	pools map[PoolID]*Pool

	// positions caches liquidity positions, write-through to the StateDB
	positions map[[32]byte]*Position
}

// NewPoolManager creates a pool manager with the default engine and an
// empty hook registry.
func NewPoolManager() *PoolManager {
	return &PoolManager{
		registry:  NewHookRegistry(),
		engine:    NewCurveEngine(),
		logger:    log.NewTestLogger(log.InfoLevel),
		pools:     make(map[PoolID]*Pool),
		positions: make(map[[32]byte]*Position),
	}
}

// SetLogger replaces the manager's logger.
func (pm *PoolManager) SetLogger(logger log.Logger) {
	pm.logger = logger
}

// SetEngine replaces the transition engine.
func (pm *PoolManager) SetEngine(engine Engine) {
	pm.engine = engine
}

// Registry returns the hook registry for installing implementations.
func (pm *PoolManager) Registry() *HookRegistry {
	return pm.registry
}

// makeStorageKey creates a storage key from prefix and identifier
func makeStorageKey(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// =========================================================================
// Sequences
// =========================================================================

// Unlock opens a sequence for [caller] and runs [fn] inside it. Re-entry by
// the same caller nests; any other caller fails with ErrManagerLocked
// without waiting. The gate is released on every path, and when the
// outermost level unwinds successfully the sequence's ledger must have
// reconciled to zero. A sequence that fails, for any reason, unwinds every
// write its operations committed: there is no partial commit.
func (pm *PoolManager) Unlock(
	stateDB contract.StateDB,
	caller common.Address,
	fn func(seq *Sequence) error,
) error {
	seq, err := pm.gate.enter(caller)
	if err != nil {
		return err
	}

	outermost := seq.depth == 1
	defer pm.gate.exit(seq)

	if err := fn(seq); err != nil {
		if outermost {
			seq.rollback()
		}
		return err
	}

	if outermost {
		if err := seq.ledger.verifySettled(); err != nil {
			seq.rollback()
			pm.logger.Debug("sequence failed settlement", "caller", caller.Hex(), "err", err)
			return err
		}
	}

	return nil
}

// currentSequence returns the active sequence or ErrNotUnlocked.
func (pm *PoolManager) currentSequence() (*Sequence, error) {
	seq := pm.gate.current()
	if seq == nil {
		return nil, ErrNotUnlocked
	}
	return seq, nil
}

// =========================================================================
// Hook resolution
// =========================================================================

// resolveHook returns the callable surface and capability flags for a pool
// key. A zero hook address yields a nil hook with no flags. A non-zero
// address whose implementation is missing fails: a pool must not silently
// run without the extension its identity names.
func (pm *PoolManager) resolveHook(key PoolKey) (Hook, Flags, error) {
	if key.Hooks == (common.Address{}) {
		return nil, 0, nil
	}

	flags := FlagsFromAddress(key.Hooks)
	hook, ok := pm.registry.Get(key.Hooks)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrHookNotRegistered, key.Hooks.Hex())
	}

	return hook, flags, nil
}

// authorizeHookDelta validates a callback's returned adjustment against the
// hook's capability bits and, when a realized delta is given, against the
// per-currency cap |adjustment| <= |realized|.
func authorizeHookDelta(flags Flags, adjustment *BalanceDelta, realized *BalanceDelta) error {
	if adjustment == nil || adjustment.IsZero() {
		return nil
	}
	if !flags.Has(HookDeltaReturn) {
		return fmt.Errorf("%w: delta return not granted", ErrHookUnauthorizedAdjustment)
	}
	if realized != nil {
		if new(big.Int).Abs(adjustment.Amount0).Cmp(new(big.Int).Abs(realized.Amount0)) > 0 ||
			new(big.Int).Abs(adjustment.Amount1).Cmp(new(big.Int).Abs(realized.Amount1)) > 0 {
			return fmt.Errorf("%w: adjustment=(%s,%s) realized=(%s,%s)",
				ErrHookDeltaExceedsCap,
				adjustment.Amount0, adjustment.Amount1,
				realized.Amount0, realized.Amount1)
		}
	}
	return nil
}

// foldDelta accumulates a balance delta into the sequence ledger.
func foldDelta(seq *Sequence, key PoolKey, delta BalanceDelta) {
	seq.ledger.add(key.Currency0, delta.Amount0)
	seq.ledger.add(key.Currency1, delta.Amount1)
}

// =========================================================================
// Pool Initialization
// =========================================================================

// Initialize creates and initializes a new pool, fixing its hook binding
// for life. It touches no balances, so it runs outside the sequence gate.
// Returns the tick corresponding to the starting price.
func (pm *PoolManager) Initialize(
	stateDB contract.StateDB,
	caller common.Address,
	key PoolKey,
	sqrtPriceX96 *big.Int,
	hookData []byte,
) (int24, error) {
	if !areCurrenciesSorted(key.Currency0, key.Currency1) {
		return 0, ErrCurrencyNotSorted
	}
	if key.Fee > FeeMax {
		return 0, fmt.Errorf("%w: %d > %d", ErrInvalidFee, key.Fee, FeeMax)
	}
	if key.TickSpacing <= 0 {
		return 0, fmt.Errorf("%w: tick spacing %d", ErrInvalidTickRange, key.TickSpacing)
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return 0, ErrInvalidSqrtPrice
	}

	hook, flags, err := pm.resolveHook(key)
	if err != nil {
		return 0, err
	}

	poolID := key.ID()

	pool := pm.getPool(stateDB, poolID)
	if pool.IsInitialized() {
		return 0, ErrPoolAlreadyInitialized
	}

	tick := SqrtPriceToTick(sqrtPriceX96)

	if flags.Has(HookBeforeInitialize) {
		if err := hook.BeforeInitialize(caller, key, sqrtPriceX96, hookData); err != nil {
			return 0, err
		}
	}

	working := pool.clone()
	working.SqrtPriceX96 = new(big.Int).Set(sqrtPriceX96)
	working.Tick = tick
	working.Liquidity = big.NewInt(0)
	working.FeeGrowth0X128 = big.NewInt(0)
	working.FeeGrowth1X128 = big.NewInt(0)

	if flags.Has(HookAfterInitialize) {
		if err := hook.AfterInitialize(caller, key, sqrtPriceX96, tick, hookData); err != nil {
			return 0, err
		}
	}

	// Commit only once both hooks have passed. A failed initialize leaves
	// no trace: no pool, no binding.
	if key.Hooks != (common.Address{}) {
		if err := pm.registry.Bind(poolID, key.Hooks); err != nil {
			return 0, err
		}
		pm.persistBinding(stateDB, poolID, key.Hooks)
	}
	pm.setPool(stateDB, poolID, working)

	pm.logger.Debug("pool initialized",
		"id", common.Hash(poolID).Hex(),
		"tick", tick,
		"hooks", key.Hooks.Hex(),
	)

	return tick, nil
}

// =========================================================================
// Core Operations
// =========================================================================

// Swap executes a swap inside the active sequence. The pipeline runs
// beforeSwap, the core transition, then afterSwap; any failure reverts
// exactly this operation's ledger entries and leaves pool state untouched.
func (pm *PoolManager) Swap(
	stateDB contract.StateDB,
	key PoolKey,
	params SwapParams,
	hookData []byte,
) (SwapResult, error) {
	seq, err := pm.currentSequence()
	if err != nil {
		return SwapResult{}, err
	}

	hook, flags, err := pm.resolveHook(key)
	if err != nil {
		return SwapResult{}, err
	}

	poolID := key.ID()
	pool := pm.getPool(stateDB, poolID)
	if !pool.IsInitialized() {
		return SwapResult{}, ErrPoolNotInitialized
	}

	cp := seq.ledger.checkpoint()
	abort := func(err error) (SwapResult, error) {
		seq.ledger.revert(cp)
		return SwapResult{}, err
	}

	lpFee := key.Fee
	total := ZeroBalanceDelta()

	if flags.Has(HookBeforeSwap) {
		res, err := hook.BeforeSwap(seq.caller, key, params, hookData)
		if err != nil {
			return abort(err)
		}
		if res.LpFeeOverride != nil {
			if !flags.Has(HookSwapFeeOverride) {
				return abort(fmt.Errorf("%w: fee override not granted", ErrHookUnauthorizedAdjustment))
			}
			if *res.LpFeeOverride > FeeMax {
				return abort(fmt.Errorf("%w: %d > %d", ErrFeeOverrideOutOfRange, *res.LpFeeOverride, FeeMax))
			}
			lpFee = *res.LpFeeOverride
		}
		// before-swap adjustments have no realized delta yet, so only the
		// capability bit gates them
		if err := authorizeHookDelta(flags, res.Delta, nil); err != nil {
			return abort(err)
		}
		if res.Delta != nil {
			foldDelta(seq, key, *res.Delta)
			total = total.Add(*res.Delta)
		}
	}

	working := pool.clone()
	delta, newTick, err := pm.engine.Swap(working, key, params, lpFee)
	if err != nil {
		return abort(err)
	}

	foldDelta(seq, key, delta)
	total = total.Add(delta)

	if flags.Has(HookAfterSwap) {
		res, err := hook.AfterSwap(seq.caller, key, params, delta, hookData)
		if err != nil {
			return abort(err)
		}
		if err := authorizeHookDelta(flags, res.Delta, &delta); err != nil {
			return abort(err)
		}
		if res.Delta != nil {
			foldDelta(seq, key, *res.Delta)
			total = total.Add(*res.Delta)
		}
	}

	prev := pool.clone()
	seq.recordUndo(func() { pm.setPool(stateDB, poolID, prev) })
	pm.setPool(stateDB, poolID, working)

	pm.logger.Debug("swap",
		"id", common.Hash(poolID).Hex(),
		"caller", seq.caller.Hex(),
		"amount0", total.Amount0,
		"amount1", total.Amount1,
		"fee", lpFee,
	)

	return SwapResult{Delta: total, Tick: newTick, LpFee: lpFee}, nil
}

// ModifyLiquidity adds or removes liquidity inside the active sequence.
// The position owner is the sequence caller.
func (pm *PoolManager) ModifyLiquidity(
	stateDB contract.StateDB,
	key PoolKey,
	params ModifyLiquidityParams,
	hookData []byte,
) (BalanceDelta, error) {
	seq, err := pm.currentSequence()
	if err != nil {
		return ZeroBalanceDelta(), err
	}

	if params.TickLower >= params.TickUpper {
		return ZeroBalanceDelta(), ErrInvalidTickRange
	}
	if params.TickLower < MinTick || params.TickUpper > MaxTick {
		return ZeroBalanceDelta(), ErrTickOutOfRange
	}
	if params.TickLower%key.TickSpacing != 0 || params.TickUpper%key.TickSpacing != 0 {
		return ZeroBalanceDelta(), fmt.Errorf("%w: ticks not aligned to spacing %d",
			ErrInvalidTickRange, key.TickSpacing)
	}

	hook, flags, err := pm.resolveHook(key)
	if err != nil {
		return ZeroBalanceDelta(), err
	}

	poolID := key.ID()
	pool := pm.getPool(stateDB, poolID)
	if !pool.IsInitialized() {
		return ZeroBalanceDelta(), ErrPoolNotInitialized
	}

	cp := seq.ledger.checkpoint()
	abort := func(err error) (BalanceDelta, error) {
		seq.ledger.revert(cp)
		return ZeroBalanceDelta(), err
	}

	total := ZeroBalanceDelta()

	if flags.Has(HookBeforeModifyLiquidity) {
		res, err := hook.BeforeModifyLiquidity(seq.caller, key, params, hookData)
		if err != nil {
			return abort(err)
		}
		if err := authorizeHookDelta(flags, res.Delta, nil); err != nil {
			return abort(err)
		}
		if res.Delta != nil {
			foldDelta(seq, key, *res.Delta)
			total = total.Add(*res.Delta)
		}
	}

	working := pool.clone()
	delta, err := pm.engine.ModifyLiquidity(working, key, params)
	if err != nil {
		return abort(err)
	}

	positionKey := PositionKey(seq.caller, params.TickLower, params.TickUpper, params.Salt)
	position := pm.getPosition(stateDB, positionKey)
	newLiquidity := new(big.Int).Add(position.Liquidity, params.LiquidityDelta)
	if newLiquidity.Sign() < 0 {
		return abort(fmt.Errorf("%w: position has %s", ErrInsufficientLiquidity, position.Liquidity))
	}

	foldDelta(seq, key, delta)
	total = total.Add(delta)

	if flags.Has(HookAfterModifyLiquidity) {
		res, err := hook.AfterModifyLiquidity(seq.caller, key, params, delta, hookData)
		if err != nil {
			return abort(err)
		}
		if err := authorizeHookDelta(flags, res.Delta, &delta); err != nil {
			return abort(err)
		}
		if res.Delta != nil {
			foldDelta(seq, key, *res.Delta)
			total = total.Add(*res.Delta)
		}
	}

	prevPool := pool.clone()
	prevPos := &Position{
		Owner:     position.Owner,
		TickLower: position.TickLower,
		TickUpper: position.TickUpper,
		Liquidity: new(big.Int).Set(position.Liquidity),
	}
	seq.recordUndo(func() {
		pm.setPosition(stateDB, positionKey, prevPos)
		pm.setPool(stateDB, poolID, prevPool)
	})

	pm.setPosition(stateDB, positionKey, &Position{
		Owner:     seq.caller,
		TickLower: params.TickLower,
		TickUpper: params.TickUpper,
		Liquidity: newLiquidity,
	})
	pm.setPool(stateDB, poolID, working)

	pm.logger.Debug("modify liquidity",
		"id", common.Hash(poolID).Hex(),
		"caller", seq.caller.Hex(),
		"liquidityDelta", params.LiquidityDelta,
	)

	return total, nil
}

// Donate pushes tokens to a pool's in-range liquidity providers through the
// fee-growth accumulators. Requires live liquidity to receive the donation.
func (pm *PoolManager) Donate(
	stateDB contract.StateDB,
	key PoolKey,
	amount0 *big.Int,
	amount1 *big.Int,
	hookData []byte,
) (BalanceDelta, error) {
	seq, err := pm.currentSequence()
	if err != nil {
		return ZeroBalanceDelta(), err
	}

	if amount0 == nil || amount1 == nil || amount0.Sign() < 0 || amount1.Sign() < 0 {
		return ZeroBalanceDelta(), fmt.Errorf("%w: donate amounts must be non-negative", ErrInvalidInput)
	}

	hook, flags, err := pm.resolveHook(key)
	if err != nil {
		return ZeroBalanceDelta(), err
	}

	poolID := key.ID()
	pool := pm.getPool(stateDB, poolID)
	if !pool.IsInitialized() {
		return ZeroBalanceDelta(), ErrPoolNotInitialized
	}
	if pool.Liquidity == nil || pool.Liquidity.Sign() <= 0 {
		return ZeroBalanceDelta(), ErrNoLiquidity
	}

	cp := seq.ledger.checkpoint()
	abort := func(err error) (BalanceDelta, error) {
		seq.ledger.revert(cp)
		return ZeroBalanceDelta(), err
	}

	if flags.Has(HookBeforeDonate) {
		if err := hook.BeforeDonate(seq.caller, key, amount0, amount1, hookData); err != nil {
			return abort(err)
		}
	}

	// feeGrowth += amount * 2^128 / liquidity
	working := pool.clone()
	if amount0.Sign() > 0 {
		growth0 := new(big.Int).Mul(amount0, Q128)
		growth0.Div(growth0, working.Liquidity)
		working.FeeGrowth0X128 = new(big.Int).Add(working.FeeGrowth0X128, growth0)
	}
	if amount1.Sign() > 0 {
		growth1 := new(big.Int).Mul(amount1, Q128)
		growth1.Div(growth1, working.Liquidity)
		working.FeeGrowth1X128 = new(big.Int).Add(working.FeeGrowth1X128, growth1)
	}

	delta := NewBalanceDelta(amount0, amount1)
	foldDelta(seq, key, delta)

	if flags.Has(HookAfterDonate) {
		if err := hook.AfterDonate(seq.caller, key, amount0, amount1, hookData); err != nil {
			return abort(err)
		}
	}

	prev := pool.clone()
	seq.recordUndo(func() { pm.setPool(stateDB, poolID, prev) })
	pm.setPool(stateDB, poolID, working)

	pm.logger.Debug("donate",
		"id", common.Hash(poolID).Hex(),
		"caller", seq.caller.Hex(),
		"amount0", amount0,
		"amount1", amount1,
	)

	return delta, nil
}

// =========================================================================
// Settlement
// =========================================================================

// Settle pays a currency into the pool for the active sequence, reducing
// what the caller owes. Native value moves through account balances; token
// currencies move through the manager's claim accounting.
func (pm *PoolManager) Settle(
	stateDB contract.StateDB,
	currency Currency,
	amount *big.Int,
) error {
	seq, err := pm.currentSequence()
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: settle amount must be positive", ErrInvalidInput)
	}

	if currency.IsNative() {
		amountU256, _ := uint256.FromBig(amount)
		stateDB.SubBalance(seq.caller, amountU256, tracing.BalanceChangeTransfer)
		stateDB.AddBalance(poolManagerAddr, amountU256, tracing.BalanceChangeTransfer)
		seq.recordUndo(func() {
			stateDB.SubBalance(poolManagerAddr, amountU256, tracing.BalanceChangeTransfer)
			stateDB.AddBalance(seq.caller, amountU256, tracing.BalanceChangeTransfer)
		})
	} else {
		if err := pm.moveClaim(stateDB, seq, currency, seq.caller, poolManagerAddr, amount); err != nil {
			return err
		}
	}

	seq.ledger.add(currency, new(big.Int).Neg(amount))
	return nil
}

// Take withdraws a currency owed to the sequence caller, sending it to
// [to] and increasing what the caller owes the pool.
func (pm *PoolManager) Take(
	stateDB contract.StateDB,
	currency Currency,
	to common.Address,
	amount *big.Int,
) error {
	seq, err := pm.currentSequence()
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: take amount must be positive", ErrInvalidInput)
	}

	if currency.IsNative() {
		amountU256, _ := uint256.FromBig(amount)
		stateDB.SubBalance(poolManagerAddr, amountU256, tracing.BalanceChangeTransfer)
		stateDB.AddBalance(to, amountU256, tracing.BalanceChangeTransfer)
		seq.recordUndo(func() {
			stateDB.SubBalance(to, amountU256, tracing.BalanceChangeTransfer)
			stateDB.AddBalance(poolManagerAddr, amountU256, tracing.BalanceChangeTransfer)
		})
	} else {
		if err := pm.moveClaim(stateDB, seq, currency, poolManagerAddr, to, amount); err != nil {
			return err
		}
	}

	seq.ledger.add(currency, amount)
	return nil
}

// moveClaim shifts token-currency claim balances inside the manager's own
// storage. Claims stand in for ERC20 transfers, which a precompile cannot
// issue directly. The manager can only pay out claims it holds; an external
// payer's balance may reach zero, with the remainder assumed paid from the
// payer's own token balance outside the manager's books.
func (pm *PoolManager) moveClaim(stateDB contract.StateDB, seq *Sequence, currency Currency, from, to common.Address, amount *big.Int) error {
	fromKey := makeStorageKey(claimPrefix, append(currency.ToBytes(), from.Bytes()...))
	toKey := makeStorageKey(claimPrefix, append(currency.ToBytes(), to.Bytes()...))

	fromBal := new(big.Int).SetBytes(stateDB.GetState(poolManagerAddr, fromKey).Bytes())
	toBal := new(big.Int).SetBytes(stateDB.GetState(poolManagerAddr, toKey).Bytes())

	if from == poolManagerAddr && fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientClaims, fromBal, amount)
	}

	fromBal.Sub(fromBal, amount)
	if fromBal.Sign() < 0 {
		fromBal.SetInt64(0)
	}
	toBal.Add(toBal, amount)

	var fromHash, toHash common.Hash
	fromBal.FillBytes(fromHash[:])
	toBal.FillBytes(toHash[:])

	prevFrom := stateDB.SetState(poolManagerAddr, fromKey, fromHash)
	prevTo := stateDB.SetState(poolManagerAddr, toKey, toHash)
	seq.recordUndo(func() {
		stateDB.SetState(poolManagerAddr, fromKey, prevFrom)
		stateDB.SetState(poolManagerAddr, toKey, prevTo)
	})

	return nil
}

// ClaimBalance returns the manager-tracked claim balance of a holder for a
// token currency.
func (pm *PoolManager) ClaimBalance(stateDB contract.StateDB, currency Currency, holder common.Address) *big.Int {
	key := makeStorageKey(claimPrefix, append(currency.ToBytes(), holder.Bytes()...))
	return new(big.Int).SetBytes(stateDB.GetState(poolManagerAddr, key).Bytes())
}

// =========================================================================
// State Management
// =========================================================================

// getPool retrieves pool state, from cache or storage. Hook callbacks may
// re-enter the manager, so pm.mu guards only these helpers, never a whole
// operation.
func (pm *PoolManager) getPool(stateDB contract.StateDB, poolID PoolID) *Pool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pool, ok := pm.pools[poolID]; ok {
		return pool
	}

	pool := NewPool()

	sqrtPriceKey := makeStorageKey(poolStatePrefix, append(poolID[:], []byte("sqrtPrice")...))
	sqrtPriceHash := stateDB.GetState(poolManagerAddr, sqrtPriceKey)
	if sqrtPriceHash != (common.Hash{}) {
		pool.SqrtPriceX96 = new(big.Int).SetBytes(sqrtPriceHash[:])
	}

	tickKey := makeStorageKey(poolStatePrefix, append(poolID[:], []byte("tick")...))
	tickHash := stateDB.GetState(poolManagerAddr, tickKey)
	if tickHash != (common.Hash{}) {
		pool.Tick = int24(binary.BigEndian.Uint32(tickHash[28:32]))
	}

	liqKey := makeStorageKey(poolLiquidityPrefix, poolID[:])
	liqHash := stateDB.GetState(poolManagerAddr, liqKey)
	if liqHash != (common.Hash{}) {
		pool.Liquidity = new(big.Int).SetBytes(liqHash[:])
	}

	growth0Key := makeStorageKey(poolStatePrefix, append(poolID[:], []byte("growth0")...))
	growth0Hash := stateDB.GetState(poolManagerAddr, growth0Key)
	if growth0Hash != (common.Hash{}) {
		pool.FeeGrowth0X128 = new(big.Int).SetBytes(growth0Hash[:])
	}

	growth1Key := makeStorageKey(poolStatePrefix, append(poolID[:], []byte("growth1")...))
	growth1Hash := stateDB.GetState(poolManagerAddr, growth1Key)
	if growth1Hash != (common.Hash{}) {
		pool.FeeGrowth1X128 = new(big.Int).SetBytes(growth1Hash[:])
	}

	pm.pools[poolID] = pool
	return pool
}

// setPool writes pool state through to storage.
func (pm *PoolManager) setPool(stateDB contract.StateDB, poolID PoolID, pool *Pool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.pools[poolID] = pool

	sqrtPriceKey := makeStorageKey(poolStatePrefix, append(poolID[:], []byte("sqrtPrice")...))
	var sqrtPriceHash common.Hash
	pool.SqrtPriceX96.FillBytes(sqrtPriceHash[:])
	stateDB.SetState(poolManagerAddr, sqrtPriceKey, sqrtPriceHash)

	tickKey := makeStorageKey(poolStatePrefix, append(poolID[:], []byte("tick")...))
	var tickHash common.Hash
	binary.BigEndian.PutUint32(tickHash[28:32], uint32(pool.Tick))
	stateDB.SetState(poolManagerAddr, tickKey, tickHash)

	liqKey := makeStorageKey(poolLiquidityPrefix, poolID[:])
	var liqHash common.Hash
	pool.Liquidity.FillBytes(liqHash[:])
	stateDB.SetState(poolManagerAddr, liqKey, liqHash)

	growth0Key := makeStorageKey(poolStatePrefix, append(poolID[:], []byte("growth0")...))
	var growth0Hash common.Hash
	pool.FeeGrowth0X128.FillBytes(growth0Hash[:])
	stateDB.SetState(poolManagerAddr, growth0Key, growth0Hash)

	growth1Key := makeStorageKey(poolStatePrefix, append(poolID[:], []byte("growth1")...))
	var growth1Hash common.Hash
	pool.FeeGrowth1X128.FillBytes(growth1Hash[:])
	stateDB.SetState(poolManagerAddr, growth1Key, growth1Hash)
}

// getPosition retrieves position state, from cache or storage.
func (pm *PoolManager) getPosition(stateDB contract.StateDB, positionKey [32]byte) *Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pos, ok := pm.positions[positionKey]; ok {
		return pos
	}

	pos := &Position{Liquidity: big.NewInt(0)}

	liqKey := makeStorageKey(positionPrefix, append(positionKey[:], []byte("liq")...))
	liqHash := stateDB.GetState(poolManagerAddr, liqKey)
	if liqHash != (common.Hash{}) {
		pos.Liquidity = new(big.Int).SetBytes(liqHash[:])
	}

	pm.positions[positionKey] = pos
	return pos
}

// setPosition writes position state through to storage.
func (pm *PoolManager) setPosition(stateDB contract.StateDB, positionKey [32]byte, pos *Position) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.positions[positionKey] = pos

	liqKey := makeStorageKey(positionPrefix, append(positionKey[:], []byte("liq")...))
	var liqHash common.Hash
	pos.Liquidity.FillBytes(liqHash[:])
	stateDB.SetState(poolManagerAddr, liqKey, liqHash)
}

// persistBinding records the pool's hook binding in storage so the
// immutability survives restarts.
func (pm *PoolManager) persistBinding(stateDB contract.StateDB, poolID PoolID, hookAddr common.Address) {
	key := makeStorageKey(bindingPrefix, poolID[:])
	stateDB.SetState(poolManagerAddr, key, common.BytesToHash(hookAddr.Bytes()))
}

// PersistedBinding returns the hook address recorded in storage for a pool.
func (pm *PoolManager) PersistedBinding(stateDB contract.StateDB, poolID PoolID) (common.Address, bool) {
	key := makeStorageKey(bindingPrefix, poolID[:])
	value := stateDB.GetState(poolManagerAddr, key)
	if value == (common.Hash{}) {
		return common.Address{}, false
	}
	return common.BytesToAddress(value.Bytes()), true
}

// =========================================================================
// View Functions
// =========================================================================

// GetPool returns the current state of an initialized pool.
func (pm *PoolManager) GetPool(stateDB contract.StateDB, key PoolKey) (*Pool, error) {
	pool := pm.getPool(stateDB, key.ID())
	if !pool.IsInitialized() {
		return nil, ErrPoolNotInitialized
	}
	return pool.clone(), nil
}

// GetPosition returns a liquidity position.
func (pm *PoolManager) GetPosition(
	stateDB contract.StateDB,
	owner common.Address,
	tickLower, tickUpper int24,
	salt [32]byte,
) (*Position, error) {
	posKey := PositionKey(owner, tickLower, tickUpper, salt)
	pos := pm.getPosition(stateDB, posKey)
	return &Position{
		Owner:     pos.Owner,
		TickLower: pos.TickLower,
		TickUpper: pos.TickUpper,
		Liquidity: new(big.Int).Set(pos.Liquidity),
	}, nil
}

// CurrencyDelta returns the active sequence's net amount for a currency,
// or zero when no sequence is open.
func (pm *PoolManager) CurrencyDelta(currency Currency) *big.Int {
	seq := pm.gate.current()
	if seq == nil {
		return big.NewInt(0)
	}
	return seq.Delta(currency)
}

// areCurrenciesSorted returns true if currencies are properly sorted.
// Uses bytes comparison for correct address ordering.
func areCurrenciesSorted(c0, c1 Currency) bool {
	return bytes.Compare(c0.Address.Bytes(), c1.Address.Bytes()) < 0
}
