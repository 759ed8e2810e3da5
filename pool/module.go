// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"github.com/luxfi/geth/common"

	"github.com/luxfi/lxpool/contract"
	"github.com/luxfi/lxpool/modules"
	"github.com/luxfi/lxpool/precompileconfig"
)

var _ contract.Configurator = (*configurator)(nil)

// ConfigKey is the chain-config key activating the pool manager.
const ConfigKey = "lxPoolConfig"

// Module registers the pool manager precompile at LP-9010.
var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      common.HexToAddress(LXPoolAddress),
	Contract:     LXPoolPrecompile,
	Configurator: &configurator{},
}

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return &Config{}
}

// Configure ensures the manager's account exists so it can hold native
// balances for flash accounting.
func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	if !state.Exist(poolManagerAddr) {
		state.CreateAccount(poolManagerAddr)
	}
	return nil
}

// Config implements the precompileconfig.Config interface
type Config struct {
	Upgrade precompileconfig.Upgrade `json:"upgrade,omitempty"`
}

func (c *Config) Key() string {
	return ConfigKey
}

func (c *Config) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *Config) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	return c.Upgrade.Equal(&other.Upgrade)
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	return nil
}
