// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package router composes pool manager operations into multi-step plans
// that run inside a single sequence, so intermediate currencies never leave
// the manager and only the net amounts settle.
package router

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/lxpool/contract"
	"github.com/luxfi/lxpool/pool"
)

// Hop is one swap leg of a path. Each leg's output currency must be the
// next leg's input currency.
type Hop struct {
	Key        pool.PoolKey
	ZeroForOne bool
	HookData   []byte
}

// Router executes composite operations against one pool manager.
type Router struct {
	manager *pool.PoolManager
	logger  log.Logger
}

// New creates a router over [manager].
func New(manager *pool.PoolManager) *Router {
	return &Router{
		manager: manager,
		logger:  log.NewTestLogger(log.InfoLevel),
	}
}

// SetLogger replaces the router's logger.
func (r *Router) SetLogger(logger log.Logger) {
	r.logger = logger
}

// SwapExactIn swaps [amountIn] of the path's input currency through every
// hop and settles the whole path in one sequence: the input is paid in, the
// final output is taken to [recipient], and the intermediate legs cancel in
// the ledger. Any failed leg aborts the entire path.
func (r *Router) SwapExactIn(
	stateDB contract.StateDB,
	caller common.Address,
	path []Hop,
	amountIn *big.Int,
	recipient common.Address,
) (*big.Int, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", pool.ErrInvalidInput)
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", pool.ErrInvalidInput)
	}

	amountOut := big.NewInt(0)

	err := r.manager.Unlock(stateDB, caller, func(seq *pool.Sequence) error {
		amount := new(big.Int).Set(amountIn)

		for i, hop := range path {
			params := pool.SwapParams{
				ZeroForOne:      hop.ZeroForOne,
				AmountSpecified: amount,
			}

			result, err := r.manager.Swap(stateDB, hop.Key, params, hop.HookData)
			if err != nil {
				return fmt.Errorf("hop %d: %w", i, err)
			}

			// the leg's output is the next leg's input
			if hop.ZeroForOne {
				amount = new(big.Int).Neg(result.Delta.Amount1)
			} else {
				amount = new(big.Int).Neg(result.Delta.Amount0)
			}
			if amount.Sign() < 0 {
				return fmt.Errorf("hop %d: %w", i, pool.ErrInvalidInput)
			}
		}

		amountOut.Set(amount)

		inputCurrency := hopInput(path[0])
		outputCurrency := hopOutput(path[len(path)-1])

		if err := r.manager.Settle(stateDB, inputCurrency, amountIn); err != nil {
			return err
		}
		if amountOut.Sign() > 0 {
			if err := r.manager.Take(stateDB, outputCurrency, recipient, amountOut); err != nil {
				return err
			}
		}

		// intermediate currencies netted out inside the ledger; anything
		// left unbalanced fails settlement when the sequence closes
		return r.settleResidual(stateDB, seq, inputCurrency, outputCurrency)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("path swap",
		"caller", caller.Hex(),
		"hops", len(path),
		"amountIn", amountIn,
		"amountOut", amountOut,
	)

	return amountOut, nil
}

// AddLiquidity opens a sequence, modifies the position, and settles what
// the caller owes for both currencies.
func (r *Router) AddLiquidity(
	stateDB contract.StateDB,
	caller common.Address,
	key pool.PoolKey,
	params pool.ModifyLiquidityParams,
	hookData []byte,
) (pool.BalanceDelta, error) {
	var delta pool.BalanceDelta

	err := r.manager.Unlock(stateDB, caller, func(seq *pool.Sequence) error {
		var err error
		delta, err = r.manager.ModifyLiquidity(stateDB, key, params, hookData)
		if err != nil {
			return err
		}
		return r.settleDelta(stateDB, seq, key, delta)
	})
	if err != nil {
		return pool.ZeroBalanceDelta(), err
	}

	return delta, nil
}

// Donate opens a sequence, donates to the pool, and settles the amounts.
func (r *Router) Donate(
	stateDB contract.StateDB,
	caller common.Address,
	key pool.PoolKey,
	amount0, amount1 *big.Int,
	hookData []byte,
) error {
	return r.manager.Unlock(stateDB, caller, func(seq *pool.Sequence) error {
		delta, err := r.manager.Donate(stateDB, key, amount0, amount1, hookData)
		if err != nil {
			return err
		}
		return r.settleDelta(stateDB, seq, key, delta)
	})
}

// settleDelta reconciles one operation's delta: positive amounts settle
// into the pool, negative amounts are taken back to the caller.
func (r *Router) settleDelta(
	stateDB contract.StateDB,
	seq *pool.Sequence,
	key pool.PoolKey,
	delta pool.BalanceDelta,
) error {
	pay := func(currency pool.Currency, amount *big.Int) error {
		switch amount.Sign() {
		case 1:
			return r.manager.Settle(stateDB, currency, amount)
		case -1:
			owed := new(big.Int).Neg(amount)
			return r.manager.Take(stateDB, currency, seq.Caller(), owed)
		}
		return nil
	}

	if err := pay(key.Currency0, delta.Amount0); err != nil {
		return err
	}
	return pay(key.Currency1, delta.Amount1)
}

// settleResidual clears whatever the ledger still carries for the path's
// endpoints after the explicit settle and take. Hook adjustments can leave
// small residues on either endpoint currency.
func (r *Router) settleResidual(
	stateDB contract.StateDB,
	seq *pool.Sequence,
	input, output pool.Currency,
) error {
	for _, currency := range []pool.Currency{input, output} {
		residual := seq.Delta(currency)
		switch residual.Sign() {
		case 1:
			if err := r.manager.Settle(stateDB, currency, residual); err != nil {
				return err
			}
		case -1:
			owed := new(big.Int).Neg(residual)
			if err := r.manager.Take(stateDB, currency, seq.Caller(), owed); err != nil {
				return err
			}
		}
	}
	return nil
}

// hopInput returns the currency a hop consumes.
func hopInput(h Hop) pool.Currency {
	if h.ZeroForOne {
		return h.Key.Currency0
	}
	return h.Key.Currency1
}

// hopOutput returns the currency a hop produces.
func hopOutput(h Hop) pool.Currency {
	if h.ZeroForOne {
		return h.Key.Currency1
	}
	return h.Key.Currency0
}
