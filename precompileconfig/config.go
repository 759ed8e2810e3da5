// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the configuration interface for
// activating stateful precompiles via chain upgrades.
package precompileconfig

// Config is implemented by each precompile's activation config.
type Config interface {
	// Key returns the unique config key for this precompile.
	Key() string
	// Timestamp returns the activation time, or nil if never active.
	Timestamp() *uint64
	// IsDisabled returns true if the precompile is deactivated by this config.
	IsDisabled() bool
	// Equal reports whether the given config is equivalent.
	Equal(Config) bool
	// Verify checks the config against the chain configuration.
	Verify(ChainConfig) error
}

// ChainConfig is the subset of chain configuration visible to precompile
// activation.
type ChainConfig interface {
	// ChainTimestamp returns the current chain time in unix seconds.
	ChainTimestamp() uint64
}

// Upgrade carries the shared activation fields of a precompile config.
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp,omitempty"`
	Disable        bool    `json:"disable,omitempty"`
}

// Timestamp returns the activation timestamp, or nil if unset.
func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

// Equal reports whether two upgrades activate identically.
func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	if u.Disable != other.Disable {
		return false
	}
	if (u.BlockTimestamp == nil) != (other.BlockTimestamp == nil) {
		return false
	}
	return u.BlockTimestamp == nil || *u.BlockTimestamp == *other.BlockTimestamp
}
