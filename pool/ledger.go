// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"
	"math/big"
)

// deltaLedger accumulates signed per-currency balance changes over the
// lifetime of one sequence. Every write is journaled so an aborted
// operation can revert exactly its own entries while the rest of the
// sequence's accumulation stands.
type deltaLedger struct {
	deltas  map[Currency]*big.Int
	journal []journalEntry
}

// journalEntry records one prior accumulator value for rollback.
type journalEntry struct {
	currency Currency
	prev     *big.Int // nil = currency was untouched before this write
}

func newDeltaLedger() *deltaLedger {
	return &deltaLedger{
		deltas: make(map[Currency]*big.Int),
	}
}

// add folds a signed amount into the currency's accumulator.
func (l *deltaLedger) add(currency Currency, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}

	current, ok := l.deltas[currency]
	if ok {
		l.journal = append(l.journal, journalEntry{currency, new(big.Int).Set(current)})
		l.deltas[currency] = new(big.Int).Add(current, amount)
	} else {
		l.journal = append(l.journal, journalEntry{currency, nil})
		l.deltas[currency] = new(big.Int).Set(amount)
	}
}

// get returns a copy of the currency's accumulator.
func (l *deltaLedger) get(currency Currency) *big.Int {
	if delta, ok := l.deltas[currency]; ok {
		return new(big.Int).Set(delta)
	}
	return big.NewInt(0)
}

// checkpoint marks the current journal position for a later revert.
func (l *deltaLedger) checkpoint() int {
	return len(l.journal)
}

// revert undoes every write made since the checkpoint, in reverse order.
func (l *deltaLedger) revert(checkpoint int) {
	for i := len(l.journal) - 1; i >= checkpoint; i-- {
		entry := l.journal[i]
		if entry.prev == nil {
			delete(l.deltas, entry.currency)
		} else {
			l.deltas[entry.currency] = entry.prev
		}
	}
	l.journal = l.journal[:checkpoint]
}

// net returns every currency with a non-zero accumulator.
func (l *deltaLedger) net() map[Currency]*big.Int {
	out := make(map[Currency]*big.Int)
	for currency, delta := range l.deltas {
		if delta.Sign() != 0 {
			out[currency] = new(big.Int).Set(delta)
		}
	}
	return out
}

// verifySettled fails unless every accumulator reconciled to zero. This is
// the backstop that turns unaccounted value extraction into a hard abort.
func (l *deltaLedger) verifySettled() error {
	for currency, delta := range l.deltas {
		if delta.Sign() != 0 {
			return fmt.Errorf("%w: currency=%s, delta=%s",
				ErrNonZeroDelta, currency.Address.Hex(), delta.String())
		}
	}
	return nil
}
