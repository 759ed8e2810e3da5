// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/lxpool/contract"
)

// Function selectors (first 4 bytes of keccak256 of function signature)
var (
	SelectorInitialize = selector("initialize(address,address,uint24,int24,address,uint160)")

	// View functions
	SelectorGetPool         = selector("getPool(address,address,uint24,int24,address)")
	SelectorGetHook         = selector("getHook(address,address,uint24,int24,address)")
	SelectorGetPosition     = selector("getPosition(address,int24,int24,bytes32)")
	SelectorCurrencyDelta   = selector("currencyDelta(address)")
	SelectorHookPermissions = selector("hookPermissions(address)")
)

func selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// LXPoolPrecompile is the stateful precompiled contract at LP-9010,
// backed by one shared manager.
var LXPoolPrecompile = NewPrecompile(NewPoolManager())

type lxPoolPrecompile struct {
	manager *PoolManager
}

// NewPrecompile wraps a pool manager as a stateful precompiled contract.
func NewPrecompile(manager *PoolManager) contract.StatefulPrecompiledContract {
	return &lxPoolPrecompile{manager: manager}
}

// Run executes the pool manager precompile. Balance-touching operations
// (swap, modify liquidity, donate, settle, take) only run inside an
// unlocked sequence, which the EVM surface reaches through the router; the
// raw calldata surface exposes pool creation and reads.
func (p *lxPoolPrecompile) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	stateDB := accessibleState.GetStateDB()

	if len(input) < 4 {
		return nil, suppliedGas, ErrInvalidInput
	}

	var sel [4]byte
	copy(sel[:], input[:4])
	args := input[4:]

	switch sel {
	case SelectorInitialize:
		return p.initialize(stateDB, caller, args, suppliedGas, readOnly)

	case SelectorGetPool:
		return p.getPool(stateDB, args, suppliedGas)
	case SelectorGetHook:
		return p.getHook(stateDB, args, suppliedGas)
	case SelectorGetPosition:
		return p.getPosition(stateDB, args, suppliedGas)
	case SelectorCurrencyDelta:
		return p.currencyDelta(args, suppliedGas)
	case SelectorHookPermissions:
		return p.hookPermissions(args, suppliedGas)

	default:
		return nil, suppliedGas, ErrInvalidInput
	}
}

func (p *lxPoolPrecompile) initialize(
	stateDB contract.StateDB,
	caller common.Address,
	args []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if suppliedGas < GasInitialize {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasInitialize

	if readOnly {
		return nil, remainingGas, ErrInvalidInput
	}

	key, rest, err := parsePoolKey(args)
	if err != nil {
		return nil, remainingGas, err
	}
	if len(rest) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}
	sqrtPriceX96 := new(big.Int).SetBytes(rest[:32])
	hookData := rest[32:]

	tick, err := p.manager.Initialize(stateDB, caller, key, sqrtPriceX96, hookData)
	if err != nil {
		return nil, remainingGas, err
	}

	return wordInt24(tick), remainingGas, nil
}

func (p *lxPoolPrecompile) getPool(
	stateDB contract.StateDB,
	args []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	if suppliedGas < GasViewCall {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasViewCall

	key, _, err := parsePoolKey(args)
	if err != nil {
		return nil, remainingGas, err
	}

	pool, err := p.manager.GetPool(stateDB, key)
	if err != nil {
		return nil, remainingGas, err
	}

	// sqrtPrice | tick | liquidity | feeGrowth0 | feeGrowth1
	result := make([]byte, 160)
	pool.SqrtPriceX96.FillBytes(result[0:32])
	copy(result[32:64], wordInt24(pool.Tick))
	pool.Liquidity.FillBytes(result[64:96])
	pool.FeeGrowth0X128.FillBytes(result[96:128])
	pool.FeeGrowth1X128.FillBytes(result[128:160])

	return result, remainingGas, nil
}

func (p *lxPoolPrecompile) getHook(
	stateDB contract.StateDB,
	args []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	if suppliedGas < GasViewCall {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasViewCall

	key, _, err := parsePoolKey(args)
	if err != nil {
		return nil, remainingGas, err
	}

	hookAddr, ok := p.manager.Registry().Binding(key.ID())
	if !ok {
		// zero address when the pool was never bound
		hookAddr, _ = p.manager.PersistedBinding(stateDB, key.ID())
	}

	result := make([]byte, 32)
	copy(result[12:], hookAddr.Bytes())
	return result, remainingGas, nil
}

func (p *lxPoolPrecompile) getPosition(
	stateDB contract.StateDB,
	args []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	if suppliedGas < GasViewCall {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasViewCall

	if len(args) < 128 {
		return nil, remainingGas, ErrInvalidInput
	}

	owner := common.BytesToAddress(args[12:32])
	tickLower := parseInt24(args[32:64])
	tickUpper := parseInt24(args[64:96])
	var salt [32]byte
	copy(salt[:], args[96:128])

	pos, err := p.manager.GetPosition(stateDB, owner, tickLower, tickUpper, salt)
	if err != nil {
		return nil, remainingGas, err
	}

	result := make([]byte, 32)
	pos.Liquidity.FillBytes(result)
	return result, remainingGas, nil
}

func (p *lxPoolPrecompile) currencyDelta(
	args []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	if suppliedGas < GasViewCall {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasViewCall

	if len(args) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}

	currency := Currency{Address: common.BytesToAddress(args[12:32])}
	delta := p.manager.CurrencyDelta(currency)

	return wordSigned(delta), remainingGas, nil
}

func (p *lxPoolPrecompile) hookPermissions(
	args []byte,
	suppliedGas uint64,
) ([]byte, uint64, error) {
	if suppliedGas < GasViewCall {
		return nil, 0, ErrInsufficientGas
	}
	remainingGas := suppliedGas - GasViewCall

	if len(args) < 32 {
		return nil, remainingGas, ErrInvalidInput
	}

	hookAddr := common.BytesToAddress(args[12:32])
	flags := FlagsFromAddress(hookAddr)

	result := make([]byte, 32)
	binary.BigEndian.PutUint16(result[30:], uint16(flags))
	return result, remainingGas, nil
}

// =========================================================================
// Calldata helpers
// =========================================================================

// parsePoolKey decodes the five-word pool key prefix of [args] and returns
// the remaining calldata.
func parsePoolKey(args []byte) (PoolKey, []byte, error) {
	if len(args) < 160 {
		return PoolKey{}, nil, ErrInvalidInput
	}

	key := PoolKey{
		Currency0:   Currency{Address: common.BytesToAddress(args[12:32])},
		Currency1:   Currency{Address: common.BytesToAddress(args[44:64])},
		Fee:         uint24(binary.BigEndian.Uint32(args[92:96]) & 0xffffff),
		TickSpacing: parseInt24(args[96:128]),
		Hooks:       common.BytesToAddress(args[140:160]),
	}

	return key, args[160:], nil
}

// parseInt24 reads a signed tick from a 32-byte two's complement word.
func parseInt24(word []byte) int24 {
	return int24(binary.BigEndian.Uint32(word[28:32]))
}

// wordInt24 encodes a signed tick as a sign-extended 32-byte word.
func wordInt24(tick int24) []byte {
	word := make([]byte, 32)
	if tick < 0 {
		for i := range word {
			word[i] = 0xff
		}
	}
	binary.BigEndian.PutUint32(word[28:], uint32(tick))
	return word
}

// wordSigned encodes a signed big.Int as a 32-byte two's complement word.
func wordSigned(v *big.Int) []byte {
	word := make([]byte, 32)
	if v.Sign() >= 0 {
		v.FillBytes(word)
		return word
	}

	// two's complement: 2^256 + v
	complement := new(big.Int).Lsh(big.NewInt(1), 256)
	complement.Add(complement, v)
	complement.FillBytes(word)
	return word
}
