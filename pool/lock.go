// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

// Sequence is one unlocked span of execution: a top-level operation plus
// every call it synchronously triggers, including calls a hook makes back
// into the manager. All operations in a sequence share one ledger, and the
// sequence ends only when that ledger reconciles to zero.
//
// Sequence identity is the caller address. Re-entry by the holder nests;
// entry by anyone else fails immediately, with no queueing.
type Sequence struct {
	caller common.Address
	ledger *deltaLedger
	depth  int
	undo   []func()
}

// recordUndo registers a step that reverses one persisted write if the
// sequence fails. Operations record an undo for every pool, position,
// claim, and balance write they commit.
func (s *Sequence) recordUndo(fn func()) {
	s.undo = append(s.undo, fn)
}

// rollback reverses every recorded write, most recent first, restoring the
// observable state from before the sequence began.
func (s *Sequence) rollback() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}

// Caller returns the identity holding the gate for this sequence.
func (s *Sequence) Caller() common.Address {
	return s.caller
}

// Delta returns the sequence's current net amount for a currency.
// Positive means the caller owes the pool.
func (s *Sequence) Delta(currency Currency) *big.Int {
	return s.ledger.get(currency)
}

// Net returns every currency with a non-zero accumulator and its amount:
// what must still be settled or taken before the sequence can close.
func (s *Sequence) Net() map[Currency]*big.Int {
	return s.ledger.net()
}

// sequenceGate serializes sequences across the whole manager. One sequence
// at a time, over all pools.
type sequenceGate struct {
	mu     sync.Mutex
	active *Sequence
}

// enter acquires the gate for [caller]. If the gate is already held by the
// same caller the existing sequence is returned with its depth bumped; a
// foreign holder fails with ErrManagerLocked.
func (g *sequenceGate) enter(caller common.Address) (*Sequence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil {
		if g.active.caller != caller {
			return nil, fmt.Errorf("%w: held by %s", ErrManagerLocked, g.active.caller.Hex())
		}
		g.active.depth++
		return g.active, nil
	}

	seq := &Sequence{
		caller: caller,
		ledger: newDeltaLedger(),
		depth:  1,
	}
	g.active = seq
	return seq, nil
}

// exit releases one level of the gate. The gate opens when the outermost
// enter unwinds; exit runs on every path out of a sequence, so a failed
// operation can never leave the manager permanently locked.
func (g *sequenceGate) exit(seq *Sequence) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != seq {
		return
	}
	seq.depth--
	if seq.depth <= 0 {
		g.active = nil
	}
}

// current returns the active sequence, or nil when unlocked.
func (g *sequenceGate) current() *Sequence {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
