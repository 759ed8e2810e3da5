// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/stretchr/testify/require"
)

// MockStateDB implements contract.StateDB for testing
type MockStateDB struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	nonces   map[common.Address]uint64
	accounts map[common.Address]bool
}

func NewMockStateDB() *MockStateDB {
	return &MockStateDB{
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		balances: make(map[common.Address]*uint256.Int),
		nonces:   make(map[common.Address]uint64),
		accounts: make(map[common.Address]bool),
	}
}

func (m *MockStateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	if m.storage[addr] == nil {
		return common.Hash{}
	}
	return m.storage[addr][key]
}

func (m *MockStateDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	if m.storage[addr] == nil {
		m.storage[addr] = make(map[common.Hash]common.Hash)
	}
	prev := m.storage[addr][key]
	m.storage[addr][key] = value
	return prev
}

func (m *MockStateDB) GetBalance(addr common.Address) *uint256.Int {
	if bal, ok := m.balances[addr]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (m *MockStateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	if m.balances[addr] == nil {
		m.balances[addr] = uint256.NewInt(0)
	}
	prev := m.balances[addr].Clone()
	m.balances[addr] = new(uint256.Int).Add(m.balances[addr], amount)
	return *prev
}

func (m *MockStateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	if m.balances[addr] == nil {
		m.balances[addr] = uint256.NewInt(0)
	}
	prev := m.balances[addr].Clone()
	m.balances[addr] = new(uint256.Int).Sub(m.balances[addr], amount)
	return *prev
}

func (m *MockStateDB) GetNonce(addr common.Address) uint64 { return m.nonces[addr] }

func (m *MockStateDB) SetNonce(addr common.Address, nonce uint64, _ tracing.NonceChangeReason) {
	m.nonces[addr] = nonce
}

func (m *MockStateDB) Exist(addr common.Address) bool    { return m.accounts[addr] }
func (m *MockStateDB) CreateAccount(addr common.Address) { m.accounts[addr] = true }

// recordingHook records which callbacks fire and returns canned payloads.
type recordingHook struct {
	permissions Permissions
	calls       []string

	beforeInitErr error
	afterInitErr  error

	beforeSwapRes BeforeSwapResult
	beforeSwapErr error
	afterSwapRes  HookResult
	afterSwapErr  error

	beforeModifyRes HookResult
	beforeModifyErr error
	afterModifyRes  HookResult
	afterModifyErr  error

	beforeDonateErr error
	afterDonateErr  error
}

func (h *recordingHook) Permissions() Permissions { return h.permissions }

func (h *recordingHook) BeforeInitialize(common.Address, PoolKey, *big.Int, []byte) error {
	h.calls = append(h.calls, "beforeInitialize")
	return h.beforeInitErr
}

func (h *recordingHook) AfterInitialize(common.Address, PoolKey, *big.Int, int24, []byte) error {
	h.calls = append(h.calls, "afterInitialize")
	return h.afterInitErr
}

func (h *recordingHook) BeforeModifyLiquidity(common.Address, PoolKey, ModifyLiquidityParams, []byte) (HookResult, error) {
	h.calls = append(h.calls, "beforeModifyLiquidity")
	return h.beforeModifyRes, h.beforeModifyErr
}

func (h *recordingHook) AfterModifyLiquidity(common.Address, PoolKey, ModifyLiquidityParams, BalanceDelta, []byte) (HookResult, error) {
	h.calls = append(h.calls, "afterModifyLiquidity")
	return h.afterModifyRes, h.afterModifyErr
}

func (h *recordingHook) BeforeSwap(common.Address, PoolKey, SwapParams, []byte) (BeforeSwapResult, error) {
	h.calls = append(h.calls, "beforeSwap")
	return h.beforeSwapRes, h.beforeSwapErr
}

func (h *recordingHook) AfterSwap(common.Address, PoolKey, SwapParams, BalanceDelta, []byte) (HookResult, error) {
	h.calls = append(h.calls, "afterSwap")
	return h.afterSwapRes, h.afterSwapErr
}

func (h *recordingHook) BeforeDonate(common.Address, PoolKey, *big.Int, *big.Int, []byte) error {
	h.calls = append(h.calls, "beforeDonate")
	return h.beforeDonateErr
}

func (h *recordingHook) AfterDonate(common.Address, PoolKey, *big.Int, *big.Int, []byte) error {
	h.calls = append(h.calls, "afterDonate")
	return h.afterDonateErr
}

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")

	token0 = Currency{Address: common.HexToAddress("0x00000000000000000000000000000000000000A0")}
	token1 = Currency{Address: common.HexToAddress("0x00000000000000000000000000000000000000B0")}
)

// installHook registers [hook] at an address derived from its permissions
// and returns that address.
func installHook(t *testing.T, pm *PoolManager, hook *recordingHook) common.Address {
	t.Helper()
	addr := GenerateHookAddress(common.HexToAddress("0xdeployer"), [32]byte{}, hook.permissions)
	require.NoError(t, pm.Registry().Register(addr, hook))
	return addr
}

// newTestPool initializes a token0/token1 pool with the given hook address.
func newTestPool(t *testing.T, pm *PoolManager, stateDB *MockStateDB, hooks common.Address) PoolKey {
	t.Helper()
	key := PoolKey{
		Currency0:   token0,
		Currency1:   token1,
		Fee:         Fee030,
		TickSpacing: TickSpacing030,
		Hooks:       hooks,
	}
	tick, err := pm.Initialize(stateDB, alice, key, new(big.Int).Set(Q96), nil)
	require.NoError(t, err)
	require.Equal(t, int24(0), tick)
	return key
}

// seedLiquidity adds in-range liquidity through a full settled sequence.
func seedLiquidity(t *testing.T, pm *PoolManager, stateDB *MockStateDB, key PoolKey, amount int64) {
	t.Helper()
	err := pm.Unlock(stateDB, alice, func(seq *Sequence) error {
		params := ModifyLiquidityParams{
			TickLower:      -60,
			TickUpper:      60,
			LiquidityDelta: big.NewInt(amount),
		}
		delta, err := pm.ModifyLiquidity(stateDB, key, params, nil)
		if err != nil {
			return err
		}
		if err := pm.Settle(stateDB, key.Currency0, delta.Amount0); err != nil {
			return err
		}
		return pm.Settle(stateDB, key.Currency1, delta.Amount1)
	})
	require.NoError(t, err)
}

// =========================================================================
// Initialize
// =========================================================================

func TestInitialize(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	key := newTestPool(t, pm, stateDB, common.Address{})

	pool, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)
	require.Equal(t, 0, pool.SqrtPriceX96.Cmp(Q96))
	require.Equal(t, int24(0), pool.Tick)
	require.Zero(t, pool.Liquidity.Sign())
}

func TestInitializeValidation(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	tests := []struct {
		name string
		key  PoolKey
		sqrt *big.Int
		want error
	}{
		{
			name: "unsorted currencies",
			key:  PoolKey{Currency0: token1, Currency1: token0, Fee: Fee030, TickSpacing: 60},
			sqrt: Q96,
			want: ErrCurrencyNotSorted,
		},
		{
			name: "equal currencies",
			key:  PoolKey{Currency0: token0, Currency1: token0, Fee: Fee030, TickSpacing: 60},
			sqrt: Q96,
			want: ErrCurrencyNotSorted,
		},
		{
			name: "fee too high",
			key:  PoolKey{Currency0: token0, Currency1: token1, Fee: FeeMax + 1, TickSpacing: 60},
			sqrt: Q96,
			want: ErrInvalidFee,
		},
		{
			name: "zero tick spacing",
			key:  PoolKey{Currency0: token0, Currency1: token1, Fee: Fee030, TickSpacing: 0},
			sqrt: Q96,
			want: ErrInvalidTickRange,
		},
		{
			name: "sqrt price too low",
			key:  PoolKey{Currency0: token0, Currency1: token1, Fee: Fee030, TickSpacing: 60},
			sqrt: big.NewInt(1),
			want: ErrInvalidSqrtPrice,
		},
		{
			name: "nil sqrt price",
			key:  PoolKey{Currency0: token0, Currency1: token1, Fee: Fee030, TickSpacing: 60},
			sqrt: nil,
			want: ErrInvalidSqrtPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pm.Initialize(stateDB, alice, tt.key, tt.sqrt, nil)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInitializeTwice(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	key := newTestPool(t, pm, stateDB, common.Address{})
	_, err := pm.Initialize(stateDB, alice, key, new(big.Int).Set(Q96), nil)
	require.ErrorIs(t, err, ErrPoolAlreadyInitialized)
}

func TestInitializeUnregisteredHook(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	key := PoolKey{
		Currency0:   token0,
		Currency1:   token1,
		Fee:         Fee030,
		TickSpacing: 60,
		Hooks:       common.HexToAddress("0x0800000000000000000000000000000000000099"),
	}
	_, err := pm.Initialize(stateDB, alice, key, new(big.Int).Set(Q96), nil)
	require.ErrorIs(t, err, ErrHookNotRegistered)
}

func TestInitializeCallsHooksAndBinds(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	hook := &recordingHook{permissions: Permissions{BeforeInitialize: true, AfterInitialize: true}}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)

	require.Equal(t, []string{"beforeInitialize", "afterInitialize"}, hook.calls)

	bound, ok := pm.Registry().Binding(key.ID())
	require.True(t, ok)
	require.Equal(t, addr, bound)

	persisted, ok := pm.PersistedBinding(stateDB, key.ID())
	require.True(t, ok)
	require.Equal(t, addr, persisted)
}

func TestInitializeBeforeHookAborts(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	boom := errors.New("hook rejected pool")
	hook := &recordingHook{
		permissions:   Permissions{BeforeInitialize: true},
		beforeInitErr: boom,
	}
	addr := installHook(t, pm, hook)

	key := PoolKey{Currency0: token0, Currency1: token1, Fee: Fee030, TickSpacing: 60, Hooks: addr}
	_, err := pm.Initialize(stateDB, alice, key, new(big.Int).Set(Q96), nil)
	require.ErrorIs(t, err, boom)

	// no pool, no binding
	_, err = pm.GetPool(stateDB, key)
	require.ErrorIs(t, err, ErrPoolNotInitialized)
	_, ok := pm.Registry().Binding(key.ID())
	require.False(t, ok)
}

func TestInitializeAfterHookAborts(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	boom := errors.New("post-init check failed")
	hook := &recordingHook{
		permissions:  Permissions{AfterInitialize: true},
		afterInitErr: boom,
	}
	addr := installHook(t, pm, hook)

	key := PoolKey{Currency0: token0, Currency1: token1, Fee: Fee030, TickSpacing: 60, Hooks: addr}
	_, err := pm.Initialize(stateDB, alice, key, new(big.Int).Set(Q96), nil)
	require.ErrorIs(t, err, boom)

	_, err = pm.GetPool(stateDB, key)
	require.ErrorIs(t, err, ErrPoolNotInitialized)
}

// =========================================================================
// Sequences
// =========================================================================

func TestOperationsRequireSequence(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})

	_, err := pm.Swap(stateDB, key, SwapParams{AmountSpecified: big.NewInt(1)}, nil)
	require.ErrorIs(t, err, ErrNotUnlocked)

	_, err = pm.ModifyLiquidity(stateDB, key, ModifyLiquidityParams{
		TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1),
	}, nil)
	require.ErrorIs(t, err, ErrNotUnlocked)

	_, err = pm.Donate(stateDB, key, big.NewInt(1), big.NewInt(1), nil)
	require.ErrorIs(t, err, ErrNotUnlocked)

	require.ErrorIs(t, pm.Settle(stateDB, token0, big.NewInt(1)), ErrNotUnlocked)
	require.ErrorIs(t, pm.Take(stateDB, token0, alice, big.NewInt(1)), ErrNotUnlocked)
}

func TestUnlockRequiresSettlement(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})

	err := pm.Unlock(stateDB, alice, func(seq *Sequence) error {
		params := ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1000),
		}
		_, err := pm.ModifyLiquidity(stateDB, key, params, nil)
		return err
	})
	require.ErrorIs(t, err, ErrNonZeroDelta)
}

func TestUnlockForeignCallerLockedOut(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	err := pm.Unlock(stateDB, alice, func(seq *Sequence) error {
		// a different caller cannot enter while alice holds the gate
		innerErr := pm.Unlock(stateDB, bob, func(*Sequence) error { return nil })
		require.ErrorIs(t, innerErr, ErrManagerLocked)
		return nil
	})
	require.NoError(t, err)

	// released afterwards
	require.NoError(t, pm.Unlock(stateDB, bob, func(*Sequence) error { return nil }))
}

func TestUnlockSameCallerNests(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	var outer *Sequence
	err := pm.Unlock(stateDB, alice, func(seq *Sequence) error {
		outer = seq
		return pm.Unlock(stateDB, alice, func(inner *Sequence) error {
			require.Same(t, outer, inner)
			return nil
		})
	})
	require.NoError(t, err)
	require.Nil(t, pm.gate.current())
}

func TestFailedSequenceRollsBackState(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})

	// the liquidity add succeeds, but the sequence never settles
	err := pm.Unlock(stateDB, alice, func(seq *Sequence) error {
		params := ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(1000),
		}
		_, err := pm.ModifyLiquidity(stateDB, key, params, nil)
		return err
	})
	require.ErrorIs(t, err, ErrNonZeroDelta)

	// the failed sequence unwound the pool and position writes
	pool, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)
	require.Zero(t, pool.Liquidity.Sign())

	pos, err := pm.GetPosition(stateDB, alice, -60, 60, [32]byte{})
	require.NoError(t, err)
	require.Zero(t, pos.Liquidity.Sign())

	// a later clean sequence cannot remove liquidity that was never kept
	err = pm.Unlock(stateDB, alice, func(seq *Sequence) error {
		params := ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(-1000),
		}
		_, err := pm.ModifyLiquidity(stateDB, key, params, nil)
		require.ErrorIs(t, err, ErrInsufficientLiquidity)
		return nil
	})
	require.NoError(t, err)
}

func TestFailedSequenceRevertsClaims(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})
	seedLiquidity(t, pm, stateDB, key, 1_000_000)

	managerClaim1 := pm.ClaimBalance(stateDB, key.Currency1, poolManagerAddr)

	// bob takes the swap output but never settles the input
	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		result, err := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100_000)}, nil)
		if err != nil {
			return err
		}
		return pm.Take(stateDB, key.Currency1, bob, new(big.Int).Neg(result.Delta.Amount1))
	})
	require.ErrorIs(t, err, ErrNonZeroDelta)

	// the take and the swap's pool write both unwound with the sequence
	require.Zero(t, pm.ClaimBalance(stateDB, key.Currency1, bob).Sign())
	require.Equal(t, 0, pm.ClaimBalance(stateDB, key.Currency1, poolManagerAddr).Cmp(managerClaim1))

	pool, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)
	require.Zero(t, pool.FeeGrowth0X128.Sign())
}

func TestUnlockReleasesOnError(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	boom := errors.New("callback failed")
	err := pm.Unlock(stateDB, alice, func(*Sequence) error { return boom })
	require.ErrorIs(t, err, boom)

	// gate must be open again
	require.NoError(t, pm.Unlock(stateDB, bob, func(*Sequence) error { return nil }))
}

// =========================================================================
// Swap pipeline
// =========================================================================

func TestSwapSettlesInSequence(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})
	seedLiquidity(t, pm, stateDB, key, 1000)

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		params := SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}
		result, err := pm.Swap(stateDB, key, params, nil)
		if err != nil {
			return err
		}

		require.Equal(t, 0, result.Delta.Amount0.Cmp(big.NewInt(100)))
		require.Equal(t, 0, result.Delta.Amount1.Cmp(big.NewInt(-90)))
		require.Equal(t, Fee030, result.LpFee)

		// ledger mirrors the realized delta
		require.Equal(t, 0, pm.CurrencyDelta(key.Currency0).Cmp(big.NewInt(100)))
		require.Equal(t, 0, pm.CurrencyDelta(key.Currency1).Cmp(big.NewInt(-90)))

		if err := pm.Settle(stateDB, key.Currency0, big.NewInt(100)); err != nil {
			return err
		}
		return pm.Take(stateDB, key.Currency1, bob, big.NewInt(90))
	})
	require.NoError(t, err)

	// bob holds the output as a claim
	require.Equal(t, 0, pm.ClaimBalance(stateDB, key.Currency1, bob).Cmp(big.NewInt(90)))
}

func TestSwapUninitializedPool(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	key := PoolKey{Currency0: token0, Currency1: token1, Fee: Fee030, TickSpacing: 60}
	err := pm.Unlock(stateDB, alice, func(*Sequence) error {
		_, err := pm.Swap(stateDB, key, SwapParams{AmountSpecified: big.NewInt(1)}, nil)
		return err
	})
	require.ErrorIs(t, err, ErrPoolNotInitialized)
}

func TestSwapHookCallbacks(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	hook := &recordingHook{permissions: Permissions{BeforeSwap: true, AfterSwap: true}}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)
	hook.calls = nil

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		result, err := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}, nil)
		if err != nil {
			return err
		}
		if err := pm.Settle(stateDB, key.Currency0, result.Delta.Amount0); err != nil {
			return err
		}
		return pm.Take(stateDB, key.Currency1, bob, new(big.Int).Neg(result.Delta.Amount1))
	})
	require.NoError(t, err)
	require.Equal(t, []string{"beforeSwap", "afterSwap"}, hook.calls)
}

func TestUnsetCallbacksNeverInvoked(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	// only donate callbacks granted: swap and liquidity must never call it
	hook := &recordingHook{permissions: Permissions{BeforeDonate: true}}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)
	hook.calls = nil

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		result, err := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}, nil)
		if err != nil {
			return err
		}
		if err := pm.Settle(stateDB, key.Currency0, result.Delta.Amount0); err != nil {
			return err
		}
		return pm.Take(stateDB, key.Currency1, bob, new(big.Int).Neg(result.Delta.Amount1))
	})
	require.NoError(t, err)
	require.Empty(t, hook.calls)
}

func TestSwapBeforeHookAborts(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	boom := errors.New("swap vetoed")
	hook := &recordingHook{
		permissions:   Permissions{BeforeSwap: true},
		beforeSwapErr: boom,
	}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)

	before, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)

	err = pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		_, swapErr := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}, nil)
		require.ErrorIs(t, swapErr, boom)

		// aborted operation left no ledger entries
		require.Zero(t, pm.CurrencyDelta(key.Currency0).Sign())
		require.Zero(t, pm.CurrencyDelta(key.Currency1).Sign())
		return nil
	})
	require.NoError(t, err)

	// and no state change
	after, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)
	require.Equal(t, 0, before.Liquidity.Cmp(after.Liquidity))
	require.Equal(t, 0, before.FeeGrowth0X128.Cmp(after.FeeGrowth0X128))
}

func TestSwapFeeOverride(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	override := uint24(0)
	hook := &recordingHook{
		permissions:   Permissions{BeforeSwap: true, SwapFeeOverride: true},
		beforeSwapRes: BeforeSwapResult{LpFeeOverride: &override},
	}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1_000_000)

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		result, err := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100_000)}, nil)
		if err != nil {
			return err
		}

		// the override took effect and the result reports it
		require.Equal(t, uint24(0), result.LpFee)
		// zero fee: full input hits the curve
		require.Equal(t, 0, result.Delta.Amount1.Cmp(big.NewInt(-90909)))

		if err := pm.Settle(stateDB, key.Currency0, result.Delta.Amount0); err != nil {
			return err
		}
		return pm.Take(stateDB, key.Currency1, bob, new(big.Int).Neg(result.Delta.Amount1))
	})
	require.NoError(t, err)
}

func TestSwapFeeOverrideUnauthorized(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	// hook returns an override without holding the capability bit
	override := uint24(100)
	hook := &recordingHook{
		permissions:   Permissions{BeforeSwap: true},
		beforeSwapRes: BeforeSwapResult{LpFeeOverride: &override},
	}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		_, swapErr := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}, nil)
		require.ErrorIs(t, swapErr, ErrHookUnauthorizedAdjustment)
		return nil
	})
	require.NoError(t, err)
}

func TestSwapFeeOverrideOutOfRange(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	override := FeeMax + 1
	hook := &recordingHook{
		permissions:   Permissions{BeforeSwap: true, SwapFeeOverride: true},
		beforeSwapRes: BeforeSwapResult{LpFeeOverride: &override},
	}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		_, swapErr := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}, nil)
		require.ErrorIs(t, swapErr, ErrFeeOverrideOutOfRange)
		return nil
	})
	require.NoError(t, err)
}

func TestSwapHookDeltaWithinCap(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	adjustment := NewBalanceDelta(big.NewInt(-10), big.NewInt(5))
	hook := &recordingHook{
		permissions: Permissions{AfterSwap: true, DeltaReturn: true},
		afterSwapRes: HookResult{
			Delta: &adjustment,
		},
	}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		result, err := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}, nil)
		if err != nil {
			return err
		}

		// core (100,-90) + adjustment (-10,5)
		require.Equal(t, 0, result.Delta.Amount0.Cmp(big.NewInt(90)))
		require.Equal(t, 0, result.Delta.Amount1.Cmp(big.NewInt(-85)))

		if err := pm.Settle(stateDB, key.Currency0, big.NewInt(90)); err != nil {
			return err
		}
		return pm.Take(stateDB, key.Currency1, bob, big.NewInt(85))
	})
	require.NoError(t, err)
}

func TestSwapHookDeltaExceedsCap(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	// realized delta will be (100,-90); 101 on currency0 breaks the cap
	adjustment := NewBalanceDelta(big.NewInt(101), big.NewInt(0))
	hook := &recordingHook{
		permissions:  Permissions{AfterSwap: true, DeltaReturn: true},
		afterSwapRes: HookResult{Delta: &adjustment},
	}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)

	before, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)

	err = pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		_, swapErr := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}, nil)
		require.ErrorIs(t, swapErr, ErrHookDeltaExceedsCap)

		// the whole operation rolled back, core delta included
		require.Zero(t, pm.CurrencyDelta(key.Currency0).Sign())
		require.Zero(t, pm.CurrencyDelta(key.Currency1).Sign())
		return nil
	})
	require.NoError(t, err)

	after, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)
	require.Equal(t, 0, before.FeeGrowth0X128.Cmp(after.FeeGrowth0X128))
}

func TestSwapHookDeltaUnauthorized(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	// AfterSwap callback granted, delta return not
	adjustment := NewBalanceDelta(big.NewInt(1), big.NewInt(0))
	hook := &recordingHook{
		permissions:  Permissions{AfterSwap: true},
		afterSwapRes: HookResult{Delta: &adjustment},
	}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		_, swapErr := pm.Swap(stateDB, key, SwapParams{ZeroForOne: true, AmountSpecified: big.NewInt(100)}, nil)
		require.ErrorIs(t, swapErr, ErrHookUnauthorizedAdjustment)
		return nil
	})
	require.NoError(t, err)
}

// =========================================================================
// ModifyLiquidity
// =========================================================================

func TestModifyLiquidityPosition(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})
	seedLiquidity(t, pm, stateDB, key, 1000)

	pos, err := pm.GetPosition(stateDB, alice, -60, 60, [32]byte{})
	require.NoError(t, err)
	require.Equal(t, 0, pos.Liquidity.Cmp(big.NewInt(1000)))

	pool, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)
	require.Equal(t, 0, pool.Liquidity.Cmp(big.NewInt(1000)))
}

func TestModifyLiquidityValidation(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})

	tests := []struct {
		name   string
		params ModifyLiquidityParams
		want   error
	}{
		{
			name:   "inverted range",
			params: ModifyLiquidityParams{TickLower: 60, TickUpper: -60, LiquidityDelta: big.NewInt(1)},
			want:   ErrInvalidTickRange,
		},
		{
			name:   "below min tick",
			params: ModifyLiquidityParams{TickLower: MinTick - 60, TickUpper: 0, LiquidityDelta: big.NewInt(1)},
			want:   ErrTickOutOfRange,
		},
		{
			name:   "unaligned ticks",
			params: ModifyLiquidityParams{TickLower: -61, TickUpper: 60, LiquidityDelta: big.NewInt(1)},
			want:   ErrInvalidTickRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pm.Unlock(stateDB, alice, func(*Sequence) error {
				_, err := pm.ModifyLiquidity(stateDB, key, tt.params, nil)
				require.ErrorIs(t, err, tt.want)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestRemoveMoreThanPosition(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})
	seedLiquidity(t, pm, stateDB, key, 1000)

	// bob owns no position; removing must fail and leave no ledger trace
	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		params := ModifyLiquidityParams{
			TickLower: -60, TickUpper: 60, LiquidityDelta: big.NewInt(-500),
		}
		_, err := pm.ModifyLiquidity(stateDB, key, params, nil)
		require.ErrorIs(t, err, ErrInsufficientLiquidity)
		require.Zero(t, pm.CurrencyDelta(key.Currency0).Sign())
		return nil
	})
	require.NoError(t, err)
}

// =========================================================================
// Donate
// =========================================================================

func TestDonate(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})
	seedLiquidity(t, pm, stateDB, key, 1_000_000)

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		delta, err := pm.Donate(stateDB, key, big.NewInt(1000), big.NewInt(2000), nil)
		if err != nil {
			return err
		}
		if err := pm.Settle(stateDB, key.Currency0, delta.Amount0); err != nil {
			return err
		}
		return pm.Settle(stateDB, key.Currency1, delta.Amount1)
	})
	require.NoError(t, err)

	pool, err := pm.GetPool(stateDB, key)
	require.NoError(t, err)
	require.Positive(t, pool.FeeGrowth0X128.Sign())
	require.Positive(t, pool.FeeGrowth1X128.Sign())

	// growth = amount * 2^128 / liquidity
	want0 := new(big.Int).Mul(big.NewInt(1000), Q128)
	want0.Div(want0, big.NewInt(1_000_000))
	require.Equal(t, 0, pool.FeeGrowth0X128.Cmp(want0))
}

func TestDonateNoLiquidity(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})

	err := pm.Unlock(stateDB, bob, func(*Sequence) error {
		_, err := pm.Donate(stateDB, key, big.NewInt(100), big.NewInt(100), nil)
		require.ErrorIs(t, err, ErrNoLiquidity)
		return nil
	})
	require.NoError(t, err)
}

func TestDonateNegativeAmount(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	key := newTestPool(t, pm, stateDB, common.Address{})
	seedLiquidity(t, pm, stateDB, key, 1000)

	err := pm.Unlock(stateDB, bob, func(*Sequence) error {
		_, err := pm.Donate(stateDB, key, big.NewInt(-1), big.NewInt(0), nil)
		require.ErrorIs(t, err, ErrInvalidInput)
		return nil
	})
	require.NoError(t, err)
}

func TestDonateHookCallbacks(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	hook := &recordingHook{permissions: Permissions{BeforeDonate: true, AfterDonate: true}}
	addr := installHook(t, pm, hook)
	key := newTestPool(t, pm, stateDB, addr)
	seedLiquidity(t, pm, stateDB, key, 1000)
	hook.calls = nil

	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		delta, err := pm.Donate(stateDB, key, big.NewInt(10), big.NewInt(0), nil)
		if err != nil {
			return err
		}
		return pm.Settle(stateDB, key.Currency0, delta.Amount0)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"beforeDonate", "afterDonate"}, hook.calls)
}

// =========================================================================
// Settlement
// =========================================================================

func TestSettleNative(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()
	stateDB.balances[alice] = uint256.NewInt(10_000)

	err := pm.Unlock(stateDB, alice, func(seq *Sequence) error {
		// a matched take and settle of native value
		if err := pm.Take(stateDB, NativeCurrency, alice, big.NewInt(0).SetInt64(500)); err != nil {
			return err
		}
		return pm.Settle(stateDB, NativeCurrency, big.NewInt(500))
	})
	require.NoError(t, err)

	// net zero: alice's balance is back where it started
	require.Equal(t, uint64(10_000), stateDB.GetBalance(alice).Uint64())
}

func TestTakeExceedsManagerClaims(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	// the manager holds no token0 claims: paying out must fail, not clamp
	err := pm.Unlock(stateDB, bob, func(seq *Sequence) error {
		takeErr := pm.Take(stateDB, token0, bob, big.NewInt(100))
		require.ErrorIs(t, takeErr, ErrInsufficientClaims)

		// the rejected take left no ledger entry to settle
		require.Zero(t, pm.CurrencyDelta(token0).Sign())
		return nil
	})
	require.NoError(t, err)

	require.Zero(t, pm.ClaimBalance(stateDB, token0, bob).Sign())
	require.Zero(t, pm.ClaimBalance(stateDB, token0, poolManagerAddr).Sign())
}

func TestSettleInvalidAmount(t *testing.T) {
	pm := NewPoolManager()
	stateDB := NewMockStateDB()

	err := pm.Unlock(stateDB, alice, func(*Sequence) error {
		require.ErrorIs(t, pm.Settle(stateDB, token0, big.NewInt(0)), ErrInvalidInput)
		require.ErrorIs(t, pm.Take(stateDB, token0, alice, big.NewInt(-5)), ErrInvalidInput)
		return nil
	})
	require.NoError(t, err)
}
