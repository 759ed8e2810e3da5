// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package modules registers stateful precompile modules at reserved
// addresses for the LX DEX family.
package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/lxpool/contract"
)

// Module is a stateful precompile bound to a fixed address.
type Module struct {
	// ConfigKey uniquely identifies the module's activation config.
	ConfigKey string
	// Address the precompile executes at.
	Address common.Address
	// Contract is the precompile implementation.
	Contract contract.StatefulPrecompiledContract
	// Configurator applies activation config to state.
	Configurator contract.Configurator
}

type moduleArray []Module

func (m moduleArray) Len() int      { return len(m) }
func (m moduleArray) Swap(i, j int) { m[i], m[j] = m[j], m[i] }
func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address.Bytes(), m[j].Address.Bytes()) < 0
}
