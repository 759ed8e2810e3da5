// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract defines the interfaces between stateful precompiled
// contracts and the EVM that hosts them.
package contract

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"

	"github.com/luxfi/lxpool/precompileconfig"
)

// StateDB is the subset of EVM state access a precompile may use.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash) common.Hash

	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int
	SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int

	GetNonce(addr common.Address) uint64
	SetNonce(addr common.Address, nonce uint64, reason tracing.NonceChangeReason)

	Exist(addr common.Address) bool
	CreateAccount(addr common.Address)
}

// AccessibleState exposes the state reachable during precompile execution.
type AccessibleState interface {
	GetStateDB() StateDB
}

// ConfigurationBlockContext describes the block in which a precompile
// configuration is applied.
type ConfigurationBlockContext interface {
	Number() uint64
	Timestamp() uint64
}

// StatefulPrecompiledContract is the interface for executing a precompiled
// contract with access to state.
type StatefulPrecompiledContract interface {
	// Run executes the precompiled contract and returns the output, the
	// remaining gas, and an error if one occurred.
	Run(
		accessibleState AccessibleState,
		caller common.Address,
		addr common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) ([]byte, uint64, error)
}

// Configurator applies a precompile's activation config to state.
type Configurator interface {
	MakeConfig() precompileconfig.Config
	Configure(
		chainConfig precompileconfig.ChainConfig,
		cfg precompileconfig.Config,
		state StateDB,
		blockContext ConfigurationBlockContext,
	) error
}
