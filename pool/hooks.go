// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Flags is the capability bitmap a hook address carries in its top two
// bytes. The top byte holds the eight callback bits; the second byte holds
// the adjustment-capability bits. Capabilities are a pure function of the
// address: there is no side table that could drift from it.
type Flags uint16

const (
	HookBeforeInitialize Flags = 1 << 15
	HookAfterInitialize  Flags = 1 << 14

	HookBeforeModifyLiquidity Flags = 1 << 13
	HookAfterModifyLiquidity  Flags = 1 << 12

	HookBeforeSwap Flags = 1 << 11
	HookAfterSwap  Flags = 1 << 10

	HookBeforeDonate Flags = 1 << 9
	HookAfterDonate  Flags = 1 << 8

	// HookSwapFeeOverride allows beforeSwap to override the LP fee.
	HookSwapFeeOverride Flags = 1 << 7
	// HookDeltaReturn allows callbacks to return a balance adjustment.
	HookDeltaReturn Flags = 1 << 6
)

// CallbackMask selects the eight callback bits (the address top byte).
const CallbackMask Flags = 0xff00

// AllHookFlags is every defined flag bit.
const AllHookFlags = CallbackMask | HookSwapFeeOverride | HookDeltaReturn

// Has returns true if all bits of [flag] are set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// CallbackByte returns the top address byte carrying the callback bits.
func (f Flags) CallbackByte() uint8 {
	return uint8(f >> 8)
}

// CallbacksFromByte rebuilds the callback flags from a top address byte.
// CallbacksFromByte(f.CallbackByte()) == f&CallbackMask for every f.
func CallbacksFromByte(b uint8) Flags {
	return Flags(b) << 8
}

// FlagsFromAddress extracts the capability bitmap from a hook address.
// Total: every address decodes, including the zero address (no flags).
func FlagsFromAddress(addr common.Address) Flags {
	return Flags(binary.BigEndian.Uint16(addr[0:2]))
}

// Permissions is the expanded view of a hook's capability flags.
type Permissions struct {
	BeforeInitialize      bool
	AfterInitialize       bool
	BeforeModifyLiquidity bool
	AfterModifyLiquidity  bool
	BeforeSwap            bool
	AfterSwap             bool
	BeforeDonate          bool
	AfterDonate           bool

	SwapFeeOverride bool
	DeltaReturn     bool
}

// EncodePermissions packs permissions into a Flags bitmap.
func EncodePermissions(p Permissions) Flags {
	var flags Flags

	if p.BeforeInitialize {
		flags |= HookBeforeInitialize
	}
	if p.AfterInitialize {
		flags |= HookAfterInitialize
	}
	if p.BeforeModifyLiquidity {
		flags |= HookBeforeModifyLiquidity
	}
	if p.AfterModifyLiquidity {
		flags |= HookAfterModifyLiquidity
	}
	if p.BeforeSwap {
		flags |= HookBeforeSwap
	}
	if p.AfterSwap {
		flags |= HookAfterSwap
	}
	if p.BeforeDonate {
		flags |= HookBeforeDonate
	}
	if p.AfterDonate {
		flags |= HookAfterDonate
	}
	if p.SwapFeeOverride {
		flags |= HookSwapFeeOverride
	}
	if p.DeltaReturn {
		flags |= HookDeltaReturn
	}

	return flags
}

// DecodePermissions unpacks a Flags bitmap.
func DecodePermissions(flags Flags) Permissions {
	return Permissions{
		BeforeInitialize:      flags&HookBeforeInitialize != 0,
		AfterInitialize:       flags&HookAfterInitialize != 0,
		BeforeModifyLiquidity: flags&HookBeforeModifyLiquidity != 0,
		AfterModifyLiquidity:  flags&HookAfterModifyLiquidity != 0,
		BeforeSwap:            flags&HookBeforeSwap != 0,
		AfterSwap:             flags&HookAfterSwap != 0,
		BeforeDonate:          flags&HookBeforeDonate != 0,
		AfterDonate:           flags&HookAfterDonate != 0,
		SwapFeeOverride:       flags&HookSwapFeeOverride != 0,
		DeltaReturn:           flags&HookDeltaReturn != 0,
	}
}

// ValidateHookAddress checks that a hook address encodes exactly the claimed
// permissions. Any single-bit divergence between the address and the claim
// is rejected, so a claimed capability set can never be installed under an
// address that does not carry it.
func ValidateHookAddress(addr common.Address, permissions Permissions) error {
	claimed := EncodePermissions(permissions)
	encoded := FlagsFromAddress(addr)

	if encoded != claimed {
		return fmt.Errorf("%w: address=%04x claimed=%04x",
			ErrHookInvalidAddress, uint16(encoded), uint16(claimed))
	}

	return nil
}

// GenerateHookAddress derives a hook address for the given permissions,
// CREATE2-style. The permission flags are stamped into the top two bytes;
// the rest comes from hashing deployer and salt.
func GenerateHookAddress(deployer common.Address, salt [32]byte, permissions Permissions) common.Address {
	flags := EncodePermissions(permissions)

	h := blake3.New()
	h.Write([]byte{0xff}) // CREATE2 prefix
	h.Write(deployer.Bytes())
	h.Write(salt[:])

	var hash [32]byte
	h.Digest().Read(hash[:])

	var addr common.Address
	copy(addr[:], hash[12:32])
	binary.BigEndian.PutUint16(addr[0:2], uint16(flags))

	return addr
}

// HookResult is a callback's optional balance adjustment. A nil Delta means
// no adjustment. Returning a non-nil Delta requires the HookDeltaReturn
// capability bit.
type HookResult struct {
	Delta *BalanceDelta
}

// BeforeSwapResult extends HookResult with an optional LP fee override,
// which requires the HookSwapFeeOverride capability bit.
type BeforeSwapResult struct {
	Delta         *BalanceDelta
	LpFeeOverride *uint24
}

// Hook is the callback surface of a pool extension. A callback is invoked
// iff its flag bit is set in the hook's address; unset callbacks are never
// invoked, not even to no-op. Any error aborts the surrounding operation.
//
// Implementations must not be trusted: every returned payload is validated
// against the hook's capability bits before it takes effect.
type Hook interface {
	// Permissions returns the capability set the implementation claims.
	// Registration fails unless the hook's address encodes exactly this.
	Permissions() Permissions

	BeforeInitialize(sender common.Address, key PoolKey, sqrtPriceX96 *big.Int, hookData []byte) error
	AfterInitialize(sender common.Address, key PoolKey, sqrtPriceX96 *big.Int, tick int24, hookData []byte) error

	BeforeModifyLiquidity(sender common.Address, key PoolKey, params ModifyLiquidityParams, hookData []byte) (HookResult, error)
	AfterModifyLiquidity(sender common.Address, key PoolKey, params ModifyLiquidityParams, delta BalanceDelta, hookData []byte) (HookResult, error)

	BeforeSwap(sender common.Address, key PoolKey, params SwapParams, hookData []byte) (BeforeSwapResult, error)
	AfterSwap(sender common.Address, key PoolKey, params SwapParams, delta BalanceDelta, hookData []byte) (HookResult, error)

	BeforeDonate(sender common.Address, key PoolKey, amount0, amount1 *big.Int, hookData []byte) error
	AfterDonate(sender common.Address, key PoolKey, amount0, amount1 *big.Int, hookData []byte) error
}

// BaseHook is a no-op Hook for embedding. Override the callbacks whose
// permission bits the hook address carries.
type BaseHook struct{}

func (BaseHook) Permissions() Permissions { return Permissions{} }

func (BaseHook) BeforeInitialize(common.Address, PoolKey, *big.Int, []byte) error {
	return nil
}

func (BaseHook) AfterInitialize(common.Address, PoolKey, *big.Int, int24, []byte) error {
	return nil
}

func (BaseHook) BeforeModifyLiquidity(common.Address, PoolKey, ModifyLiquidityParams, []byte) (HookResult, error) {
	return HookResult{}, nil
}

func (BaseHook) AfterModifyLiquidity(common.Address, PoolKey, ModifyLiquidityParams, BalanceDelta, []byte) (HookResult, error) {
	return HookResult{}, nil
}

func (BaseHook) BeforeSwap(common.Address, PoolKey, SwapParams, []byte) (BeforeSwapResult, error) {
	return BeforeSwapResult{}, nil
}

func (BaseHook) AfterSwap(common.Address, PoolKey, SwapParams, BalanceDelta, []byte) (HookResult, error) {
	return HookResult{}, nil
}

func (BaseHook) BeforeDonate(common.Address, PoolKey, *big.Int, *big.Int, []byte) error {
	return nil
}

func (BaseHook) AfterDonate(common.Address, PoolKey, *big.Int, *big.Int, []byte) error {
	return nil
}

// HookRegistry holds the callable surface for each hook address and the
// immutable pool-to-hook bindings. A binding is written exactly once, at
// pool initialization; there is no rebind or upgrade path.
type HookRegistry struct {
	mu sync.RWMutex

	// hooks maps hook addresses to their implementations
	hooks map[common.Address]Hook

	// bindings maps pool IDs to the hook address fixed at creation
	bindings map[PoolID]common.Address
}

// NewHookRegistry creates a new hook registry
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks:    make(map[common.Address]Hook),
		bindings: make(map[PoolID]common.Address),
	}
}

// Register installs a hook implementation at its address. The address must
// structurally encode the implementation's claimed permissions, whatever
// tooling produced it.
func (hr *HookRegistry) Register(addr common.Address, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("%w: nil implementation", ErrHookInvalidAddress)
	}
	if err := ValidateHookAddress(addr, hook.Permissions()); err != nil {
		return err
	}

	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.hooks[addr] = hook
	return nil
}

// Get returns the implementation registered at [addr].
func (hr *HookRegistry) Get(addr common.Address) (Hook, bool) {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	hook, ok := hr.hooks[addr]
	return hook, ok
}

// Bind fixes the hook address for a pool. The hook must already be
// registered; a second bind for the same pool fails.
func (hr *HookRegistry) Bind(id PoolID, addr common.Address) error {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	if bound, ok := hr.bindings[id]; ok {
		return fmt.Errorf("%w: bound to %s", ErrHookAlreadyBound, bound.Hex())
	}
	if _, ok := hr.hooks[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrHookNotRegistered, addr.Hex())
	}

	hr.bindings[id] = addr
	return nil
}

// Binding returns the hook address bound to a pool, if any.
func (hr *HookRegistry) Binding(id PoolID) (common.Address, bool) {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	addr, ok := hr.bindings[id]
	return addr, ok
}
