// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry documents the precompile address scheme for the LX DEX
// family and provides lookup helpers.
package registry

import (
	"github.com/luxfi/geth/common"
)

// ============================================================================
// DEX PRECOMPILE ADDRESS SCHEME - Aligned with LP Numbering (LP-9015)
// ============================================================================
//
// All LX DEX precompiles use trailing-significant 20-byte addresses:
//   Format: 0x0000000000000000000000000000000000LPNUM
//
// The address ends with the 16-bit LP number for easy identification.
//
// LP-9010: LXPool - singleton pool manager (Uniswap v4 style), the
//          component implemented by this repository.
// LP-9011: LXOracle - price aggregation (separate repository)
// LP-9012: LXRouter - multi-hop swap routing (router package)
// LP-9013: LXHooks - hook contract registry (pool package)
// LP-9014: LXFlash - flash loans via pool flash accounting

const (
	LXPoolAddress   = "0x0000000000000000000000000000000000009010" // LP-9010 LXPool (singleton AMM)
	LXOracleAddress = "0x0000000000000000000000000000000000009011" // LP-9011 LXOracle (price aggregation)
	LXRouterAddress = "0x0000000000000000000000000000000000009012" // LP-9012 LXRouter (swap routing)
	LXHooksAddress  = "0x0000000000000000000000000000000000009013" // LP-9013 LXHooks (hook registry)
	LXFlashAddress  = "0x0000000000000000000000000000000000009014" // LP-9014 LXFlash (flash loans)
)

// PrecompileInfo contains metadata about a precompile
type PrecompileInfo struct {
	Address     string
	Name        string
	Description string
	GasBase     uint64
	LPNumber    string
}

// DEXPrecompiles lists the DEX family precompiles with their metadata
var DEXPrecompiles = []PrecompileInfo{
	{LXPoolAddress, "LX_POOL", "Uniswap v4-style singleton AMM", 50000, "LP-9010"},
	{LXOracleAddress, "LX_ORACLE", "Price oracle aggregation", 15000, "LP-9011"},
	{LXRouterAddress, "LX_ROUTER", "Optimized swap routing", 10000, "LP-9012"},
	{LXHooksAddress, "LX_HOOKS", "Hook contract registry", 10000, "LP-9013"},
	{LXFlashAddress, "LX_FLASH", "Flash loan facility", 50000, "LP-9014"},
}

// GetPrecompileAddress returns the address for a precompile by name
func GetPrecompileAddress(name string) common.Address {
	for _, p := range DEXPrecompiles {
		if p.Name == name {
			return common.HexToAddress(p.Address)
		}
	}
	return common.Address{}
}

// IsDEXPrecompile returns true if [addr] belongs to the DEX family
func IsDEXPrecompile(addr common.Address) bool {
	for _, p := range DEXPrecompiles {
		if common.HexToAddress(p.Address) == addr {
			return true
		}
	}
	return false
}
